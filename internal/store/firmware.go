package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/stefanposs/webmacs/infrastructure/database"
	"github.com/stefanposs/webmacs/infrastructure/errors"
	"github.com/stefanposs/webmacs/internal/model"
)

// allowedFirmwareTransitions is the OTA state machine's transition table
// (§4.H). Keys are "from" statuses; values are the statuses a row in that
// status may move to. FirmwareCompleted may only be rolled back, and
// FirmwareFailed and FirmwareRolledBack may only be retried back to
// Pending.
var allowedFirmwareTransitions = map[model.FirmwareStatus][]model.FirmwareStatus{
	model.FirmwarePending:     {model.FirmwareDownloading, model.FirmwareCompleted, model.FirmwareFailed},
	model.FirmwareDownloading: {model.FirmwareVerifying, model.FirmwareFailed},
	model.FirmwareVerifying:   {model.FirmwareApplying, model.FirmwareFailed},
	model.FirmwareApplying:    {model.FirmwareCompleted, model.FirmwareFailed},
	model.FirmwareCompleted:   {model.FirmwareRolledBack},
	model.FirmwareFailed:      {model.FirmwarePending},
	model.FirmwareRolledBack:  {model.FirmwarePending},
}

// CanTransitionFirmware reports whether a FirmwareUpdate may move from one
// status to another.
func CanTransitionFirmware(from, to model.FirmwareStatus) bool {
	for _, allowed := range allowedFirmwareTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CreateFirmwareUpdate registers a new firmware version in FirmwarePending.
func (s *Store) CreateFirmwareUpdate(ctx context.Context, version, changelog string) (model.FirmwareUpdate, error) {
	f := model.FirmwareUpdate{
		PublicID:  newPublicID(),
		Version:   version,
		Changelog: changelog,
		Status:    model.FirmwarePending,
	}
	row := s.gw.Querier(ctx).QueryRowContext(ctx, `
		INSERT INTO firmware_updates (public_id, version, changelog, status)
		VALUES ($1, $2, $3, $4) RETURNING id
	`, f.PublicID, f.Version, f.Changelog, f.Status)
	if err := row.Scan(&f.ID); err != nil {
		if database.IsUniqueViolation(err) {
			return model.FirmwareUpdate{}, errors.Conflict("this firmware version is already registered")
		}
		return model.FirmwareUpdate{}, err
	}
	return f, nil
}

// GetFirmwareUpdateByPublicID fetches a single FirmwareUpdate.
func (s *Store) GetFirmwareUpdateByPublicID(ctx context.Context, publicID string) (model.FirmwareUpdate, error) {
	var f model.FirmwareUpdate
	err := s.gw.Querier(ctx).GetContext(ctx, &f, `
		SELECT id, public_id, version, changelog, status, file_path, file_hash_sha256,
		       file_size_bytes, started_on, completed_on, error_message
		FROM firmware_updates WHERE public_id=$1
	`, publicID)
	if err == sql.ErrNoRows {
		return model.FirmwareUpdate{}, errors.NotFound("firmware_update", publicID)
	}
	return f, err
}

// ListFirmwareUpdates returns a page of FirmwareUpdates, newest version
// registration first.
func (s *Store) ListFirmwareUpdates(ctx context.Context, page database.Page) ([]model.FirmwareUpdate, int, error) {
	var total int
	if err := s.gw.Querier(ctx).GetContext(ctx, &total, `SELECT COUNT(*) FROM firmware_updates`); err != nil {
		return nil, 0, err
	}
	var updates []model.FirmwareUpdate
	err := s.gw.Querier(ctx).SelectContext(ctx, &updates, `
		SELECT id, public_id, version, changelog, status, file_path, file_hash_sha256,
		       file_size_bytes, started_on, completed_on, error_message
		FROM firmware_updates ORDER BY id DESC LIMIT $1 OFFSET $2
	`, page.PageSize, (page.Page-1)*page.PageSize)
	return updates, total, err
}

// TransitionFirmwareUpdate moves a FirmwareUpdate to a new status, applying
// any of the optional field updates the caller supplies for that
// transition (file metadata on verifying, started_on on downloading,
// completed_on/error_message on the terminal states). Rejects any
// transition not present in allowedFirmwareTransitions.
func (s *Store) TransitionFirmwareUpdate(ctx context.Context, publicID string, to model.FirmwareStatus, fields FirmwareTransitionFields) (model.FirmwareUpdate, error) {
	var result model.FirmwareUpdate
	err := s.gw.WithTx(ctx, func(ctx context.Context) error {
		current, err := s.GetFirmwareUpdateByPublicID(ctx, publicID)
		if err != nil {
			return err
		}
		if !CanTransitionFirmware(current.Status, to) {
			return errors.InvalidTransition(string(current.Status), string(to))
		}
		if fields.FilePath != nil {
			current.FilePath = fields.FilePath
		}
		if fields.FileHashSHA256 != nil {
			current.FileHashSHA256 = fields.FileHashSHA256
		}
		if fields.FileSizeBytes != nil {
			current.FileSizeBytes = fields.FileSizeBytes
		}
		if fields.StartedOn != nil {
			current.StartedOn = fields.StartedOn
		}
		if fields.CompletedOn != nil {
			current.CompletedOn = fields.CompletedOn
		}
		if fields.ErrorMessage != nil {
			current.ErrorMessage = fields.ErrorMessage
		}
		current.Status = to

		_, err = s.gw.Querier(ctx).ExecContext(ctx, `
			UPDATE firmware_updates
			SET status=$2, file_path=$3, file_hash_sha256=$4, file_size_bytes=$5,
			    started_on=$6, completed_on=$7, error_message=$8
			WHERE public_id=$1
		`, publicID, current.Status, current.FilePath, current.FileHashSHA256, current.FileSizeBytes,
			current.StartedOn, current.CompletedOn, current.ErrorMessage)
		if err != nil {
			return err
		}
		result = current
		return nil
	})
	return result, err
}

// FirmwareTransitionFields carries the optional side-fields a firmware
// state transition may set alongside its new status.
type FirmwareTransitionFields struct {
	FilePath       *string
	FileHashSHA256 *string
	FileSizeBytes  *int64
	StartedOn      *time.Time
	CompletedOn    *time.Time
	ErrorMessage   *string
}

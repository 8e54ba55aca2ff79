package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/stefanposs/webmacs/infrastructure/database"
	"github.com/stefanposs/webmacs/infrastructure/errors"
	"github.com/stefanposs/webmacs/internal/model"
)

// CreateEvent inserts a new Event, minting its public_id.
func (s *Store) CreateEvent(ctx context.Context, e model.Event) (model.Event, error) {
	e.PublicID = newPublicID()
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now

	row := s.gw.Querier(ctx).QueryRowContext(ctx, `
		INSERT INTO events (public_id, name, min_value, max_value, unit, type, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, e.PublicID, e.Name, e.Min, e.Max, e.Unit, e.Type, e.UserID, e.CreatedAt, e.UpdatedAt)

	if err := row.Scan(&e.ID); err != nil {
		if database.IsUniqueViolation(err) {
			return model.Event{}, errors.Conflict("an event with this name already exists")
		}
		return model.Event{}, err
	}
	return e, nil
}

// GetEventByPublicID fetches a single Event or returns errors.KindNotFound.
func (s *Store) GetEventByPublicID(ctx context.Context, publicID string) (model.Event, error) {
	var e model.Event
	err := s.gw.Querier(ctx).GetContext(ctx, &e, `
		SELECT id, public_id, name, min_value, max_value, unit, type, user_id, created_at, updated_at
		FROM events WHERE public_id = $1
	`, publicID)
	if err == sql.ErrNoRows {
		return model.Event{}, errors.NotFound("event", publicID)
	}
	return e, err
}

// GetEventIDByPublicID resolves an Event's surrogate key, used when
// building foreign-key references for inserts.
func (s *Store) GetEventIDByPublicID(ctx context.Context, publicID string) (int64, error) {
	var id int64
	err := s.gw.Querier(ctx).QueryRowContext(ctx,
		`SELECT id FROM events WHERE public_id = $1`, publicID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, errors.NotFound("event", publicID)
	}
	return id, err
}

// ListEvents returns a page of Events ordered by name.
func (s *Store) ListEvents(ctx context.Context, page database.Page) ([]model.Event, int, error) {
	var total int
	if err := s.gw.Querier(ctx).GetContext(ctx, &total, `SELECT COUNT(*) FROM events`); err != nil {
		return nil, 0, err
	}

	var events []model.Event
	err := s.gw.Querier(ctx).SelectContext(ctx, &events, `
		SELECT id, public_id, name, min_value, max_value, unit, type, user_id, created_at, updated_at
		FROM events ORDER BY name LIMIT $1 OFFSET $2
	`, page.PageSize, (page.Page-1)*page.PageSize)
	return events, total, err
}

// EventUpdate is a sparse partial-update input: only non-nil fields are
// written (spec §4.B).
type EventUpdate struct {
	Name *string
	Min  **float64
	Max  **float64
	Unit *string
	Type *model.EventType
}

// UpdateEvent applies a sparse partial update to an Event.
func (s *Store) UpdateEvent(ctx context.Context, publicID string, u EventUpdate) (model.Event, error) {
	existing, err := s.GetEventByPublicID(ctx, publicID)
	if err != nil {
		return model.Event{}, err
	}
	if u.Name != nil {
		existing.Name = *u.Name
	}
	if u.Min != nil {
		existing.Min = *u.Min
	}
	if u.Max != nil {
		existing.Max = *u.Max
	}
	if u.Unit != nil {
		existing.Unit = *u.Unit
	}
	if u.Type != nil {
		existing.Type = *u.Type
	}
	existing.UpdatedAt = time.Now().UTC()

	_, err = s.gw.Querier(ctx).ExecContext(ctx, `
		UPDATE events SET name=$2, min_value=$3, max_value=$4, unit=$5, type=$6, updated_at=$7
		WHERE public_id=$1
	`, publicID, existing.Name, existing.Min, existing.Max, existing.Unit, existing.Type, existing.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return model.Event{}, errors.Conflict("an event with this name already exists")
		}
		return model.Event{}, err
	}
	return existing, nil
}

// DeleteEvent removes an Event and cascades per spec §3: Datapoints are
// deleted, Widget/event links are nulled (external collaborator, not
// modeled here), and referencing Rules are deleted.
func (s *Store) DeleteEvent(ctx context.Context, publicID string) error {
	return s.gw.WithTx(ctx, func(ctx context.Context) error {
		id, err := s.GetEventIDByPublicID(ctx, publicID)
		if err != nil {
			return err
		}
		if _, err := s.gw.Querier(ctx).ExecContext(ctx, `DELETE FROM rules WHERE event_id=$1`, id); err != nil {
			return err
		}
		if _, err := s.gw.Querier(ctx).ExecContext(ctx, `DELETE FROM datapoints WHERE event_id=$1`, id); err != nil {
			return err
		}
		if _, err := s.gw.Querier(ctx).ExecContext(ctx, `UPDATE channel_mappings SET event_id=NULL WHERE event_id=$1`, id); err != nil {
			return err
		}
		result, err := s.gw.Querier(ctx).ExecContext(ctx, `DELETE FROM events WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return errors.NotFound("event", publicID)
		}
		return nil
	})
}

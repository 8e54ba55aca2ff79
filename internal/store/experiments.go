package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/stefanposs/webmacs/infrastructure/database"
	"github.com/stefanposs/webmacs/infrastructure/errors"
	"github.com/stefanposs/webmacs/internal/model"
)

// CreateExperiment inserts a new Experiment with StoppedOn=nil.
func (s *Store) CreateExperiment(ctx context.Context, name string) (model.Experiment, error) {
	e := model.Experiment{
		PublicID:  newPublicID(),
		Name:      name,
		StartedOn: time.Now().UTC(),
	}
	row := s.gw.Querier(ctx).QueryRowContext(ctx, `
		INSERT INTO experiments (public_id, name, started_on, stopped_on)
		VALUES ($1, $2, $3, NULL) RETURNING id
	`, e.PublicID, e.Name, e.StartedOn)
	if err := row.Scan(&e.ID); err != nil {
		if database.IsUniqueViolation(err) {
			return model.Experiment{}, errors.Conflict("an experiment with this name already exists")
		}
		return model.Experiment{}, err
	}
	return e, nil
}

// GetActiveExperiment returns the single Experiment with StoppedOn=nil, if
// any. Used by the ingestion pipeline (§4.F step 2) to tag inserted
// datapoints.
func (s *Store) GetActiveExperiment(ctx context.Context) (*model.Experiment, error) {
	var e model.Experiment
	err := s.gw.Querier(ctx).GetContext(ctx, &e, `
		SELECT id, public_id, name, started_on, stopped_on
		FROM experiments WHERE stopped_on IS NULL LIMIT 1
	`)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// StopExperiment performs the experiment's only terminal transition:
// stopped_on = now.
func (s *Store) StopExperiment(ctx context.Context, publicID string) (model.Experiment, error) {
	now := time.Now().UTC()
	result, err := s.gw.Querier(ctx).ExecContext(ctx, `
		UPDATE experiments SET stopped_on=$2 WHERE public_id=$1 AND stopped_on IS NULL
	`, publicID, now)
	if err != nil {
		return model.Experiment{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return model.Experiment{}, errors.InvalidTransition("active", "stopped")
	}
	var e model.Experiment
	err = s.gw.Querier(ctx).GetContext(ctx, &e, `
		SELECT id, public_id, name, started_on, stopped_on FROM experiments WHERE public_id=$1
	`, publicID)
	return e, err
}

// ListExperiments returns a page of Experiments, most recently started first.
func (s *Store) ListExperiments(ctx context.Context, page database.Page) ([]model.Experiment, int, error) {
	var total int
	if err := s.gw.Querier(ctx).GetContext(ctx, &total, `SELECT COUNT(*) FROM experiments`); err != nil {
		return nil, 0, err
	}
	var experiments []model.Experiment
	err := s.gw.Querier(ctx).SelectContext(ctx, &experiments, `
		SELECT id, public_id, name, started_on, stopped_on
		FROM experiments ORDER BY started_on DESC LIMIT $1 OFFSET $2
	`, page.PageSize, (page.Page-1)*page.PageSize)
	return experiments, total, err
}

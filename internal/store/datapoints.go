package store

import (
	"context"
	"strings"
	"time"

	"github.com/stefanposs/webmacs/infrastructure/database"
	"github.com/stefanposs/webmacs/internal/model"
)

// DatapointInsert is one row to bulk-insert; EventID is the resolved
// surrogate key for EventPublicID (resolved by the caller via the plugin
// registry / event lookup before calling BulkInsertDatapoints).
type DatapointInsert struct {
	Value              float64
	EventID            int64
	EventPublicID      string
	ExperimentID       *int64
	ExperimentPublicID *string
}

// BulkInsertDatapoints inserts all rows in a single statement sharing one
// "now" timestamp (spec §4.F step 3). Returns the inserted Datapoints with
// their minted public_ids, in input order.
func (s *Store) BulkInsertDatapoints(ctx context.Context, rows []DatapointInsert) ([]model.Datapoint, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()

	var sb strings.Builder
	sb.WriteString(`INSERT INTO datapoints (public_id, value, timestamp, event_id, experiment_id) VALUES `)
	args := make([]interface{}, 0, len(rows)*5)
	out := make([]model.Datapoint, len(rows))

	for i, r := range rows {
		publicID := newPublicID()
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 5
		sb.WriteString(positionalTuple(base+1, 5))
		args = append(args, publicID, r.Value, now, r.EventID, r.ExperimentID)

		out[i] = model.Datapoint{
			PublicID:           publicID,
			Value:              r.Value,
			Timestamp:          now,
			EventID:            r.EventID,
			EventPublicID:      r.EventPublicID,
			ExperimentID:       r.ExperimentID,
			ExperimentPublicID: r.ExperimentPublicID,
		}
	}
	sb.WriteString(` RETURNING id`)

	result, err := s.gw.Querier(ctx).QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer result.Close()

	i := 0
	for result.Next() {
		if i >= len(out) {
			break
		}
		if err := result.Scan(&out[i].ID); err != nil {
			return nil, err
		}
		i++
	}
	return out, result.Err()
}

// positionalTuple renders "($n, $n+1, ..., $n+width-1)".
func positionalTuple(start, width int) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i := 0; i < width; i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('$')
		sb.WriteString(itoa(start + i))
	}
	sb.WriteByte(')')
	return sb.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// LatestDatapointRow is one row of GET /datapoints/latest: the most recent
// reading per event.
type LatestDatapointRow struct {
	Value              float64   `db:"value"`
	EventPublicID      string    `db:"event_public_id"`
	Timestamp          time.Time `db:"timestamp"`
	ExperimentPublicID *string   `db:"experiment_public_id"`
}

// ListLatestDatapoints returns one row per Event: its most recent reading.
func (s *Store) ListLatestDatapoints(ctx context.Context) ([]LatestDatapointRow, error) {
	var rows []LatestDatapointRow
	err := s.gw.Querier(ctx).SelectContext(ctx, &rows, `
		SELECT DISTINCT ON (d.event_id)
			d.value, e.public_id AS event_public_id, d.timestamp, x.public_id AS experiment_public_id
		FROM datapoints d
		JOIN events e ON e.id = d.event_id
		LEFT JOIN experiments x ON x.id = d.experiment_id
		ORDER BY d.event_id, d.timestamp DESC
	`)
	return rows, err
}

// ListDatapointsByEvent returns a paginated, time-descending page of
// Datapoints for one event.
func (s *Store) ListDatapointsByEvent(ctx context.Context, eventPublicID string, page database.Page) ([]model.Datapoint, int, error) {
	eventID, err := s.GetEventIDByPublicID(ctx, eventPublicID)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.gw.Querier(ctx).GetContext(ctx, &total, `SELECT COUNT(*) FROM datapoints WHERE event_id=$1`, eventID); err != nil {
		return nil, 0, err
	}

	type row struct {
		ID                 int64     `db:"id"`
		PublicID           string    `db:"public_id"`
		Value              float64   `db:"value"`
		Timestamp          time.Time `db:"timestamp"`
		EventID            int64     `db:"event_id"`
		ExperimentID       *int64    `db:"experiment_id"`
		EventPublicID      string    `db:"event_public_id"`
		ExperimentPublicID *string   `db:"experiment_public_id"`
	}
	var rows []row
	err = s.gw.Querier(ctx).SelectContext(ctx, &rows, `
		SELECT d.id, d.public_id, d.value, d.timestamp, d.event_id, d.experiment_id,
		       e.public_id AS event_public_id, x.public_id AS experiment_public_id
		FROM datapoints d
		JOIN events e ON e.id = d.event_id
		LEFT JOIN experiments x ON x.id = d.experiment_id
		WHERE d.event_id = $1
		ORDER BY d.timestamp DESC LIMIT $2 OFFSET $3
	`, eventID, page.PageSize, (page.Page-1)*page.PageSize)
	if err != nil {
		return nil, 0, err
	}

	out := make([]model.Datapoint, len(rows))
	for i, r := range rows {
		out[i] = model.Datapoint{
			ID: r.ID, PublicID: r.PublicID, Value: r.Value, Timestamp: r.Timestamp,
			EventID: r.EventID, EventPublicID: r.EventPublicID,
			ExperimentID: r.ExperimentID, ExperimentPublicID: r.ExperimentPublicID,
		}
	}
	return out, total, nil
}

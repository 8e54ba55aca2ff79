package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/stefanposs/webmacs/infrastructure/database"
	"github.com/stefanposs/webmacs/infrastructure/errors"
	"github.com/stefanposs/webmacs/infrastructure/logging"
	"github.com/stefanposs/webmacs/internal/model"
)

// CreateWebhook inserts a new Webhook subscription.
func (s *Store) CreateWebhook(ctx context.Context, w model.Webhook) (model.Webhook, error) {
	w.PublicID = newPublicID()
	eventsRaw, err := json.Marshal(w.Events)
	if err != nil {
		return model.Webhook{}, errors.Wrap(errors.KindInvalidInput, "invalid events list", err)
	}
	row := s.gw.Querier(ctx).QueryRowContext(ctx, `
		INSERT INTO webhooks (public_id, url, secret, events, enabled, user_id)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id
	`, w.PublicID, w.URL, w.Secret, eventsRaw, w.Enabled, w.UserID)
	if err := row.Scan(&w.ID); err != nil {
		if database.IsUniqueViolation(err) {
			return model.Webhook{}, errors.Conflict("a webhook with this URL already exists")
		}
		return model.Webhook{}, err
	}
	w.EventsRaw = eventsRaw
	return w, nil
}

// GetWebhookByPublicID fetches a single Webhook.
func (s *Store) GetWebhookByPublicID(ctx context.Context, publicID string) (model.Webhook, error) {
	var w model.Webhook
	err := s.gw.Querier(ctx).GetContext(ctx, &w, `
		SELECT id, public_id, url, secret, events, enabled, user_id
		FROM webhooks WHERE public_id=$1
	`, publicID)
	if err == sql.ErrNoRows {
		return model.Webhook{}, errors.NotFound("webhook", publicID)
	}
	if err != nil {
		return model.Webhook{}, err
	}
	_ = json.Unmarshal(w.EventsRaw, &w.Events)
	return w, nil
}

// ListWebhooks returns a page of Webhooks.
func (s *Store) ListWebhooks(ctx context.Context, page database.Page) ([]model.Webhook, int, error) {
	var total int
	if err := s.gw.Querier(ctx).GetContext(ctx, &total, `SELECT COUNT(*) FROM webhooks`); err != nil {
		return nil, 0, err
	}
	var webhooks []model.Webhook
	err := s.gw.Querier(ctx).SelectContext(ctx, &webhooks, `
		SELECT id, public_id, url, secret, events, enabled, user_id
		FROM webhooks ORDER BY id LIMIT $1 OFFSET $2
	`, page.PageSize, (page.Page-1)*page.PageSize)
	if err != nil {
		return nil, 0, err
	}
	for i := range webhooks {
		_ = json.Unmarshal(webhooks[i].EventsRaw, &webhooks[i].Events)
	}
	return webhooks, total, nil
}

// DeleteWebhook removes a Webhook subscription. Its deliveries cascade via
// the deliveries table's foreign key.
func (s *Store) DeleteWebhook(ctx context.Context, publicID string) error {
	result, err := s.gw.Querier(ctx).ExecContext(ctx, `DELETE FROM webhooks WHERE public_id=$1`, publicID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.NotFound("webhook", publicID)
	}
	return nil
}

// webhookRow is the subset of a Webhook row needed by the dispatcher's
// fan-out query, with the raw events blob still encoded.
type webhookRow struct {
	ID        int64   `db:"id"`
	PublicID  string  `db:"public_id"`
	URL       string  `db:"url"`
	Secret    *string `db:"secret"`
	EventsRaw []byte  `db:"events"`
}

// ListEnabledWebhooksForEventType implements the dispatcher's fan-out query
// (§4.D): all enabled Webhooks whose events set contains eventType. Any
// subscription whose events blob fails to parse is logged and skipped
// rather than failing the whole fan-out.
func (s *Store) ListEnabledWebhooksForEventType(ctx context.Context, eventType string) ([]model.Webhook, error) {
	var rows []webhookRow
	err := s.gw.Querier(ctx).SelectContext(ctx, &rows, `
		SELECT id, public_id, url, secret, events FROM webhooks WHERE enabled=true
	`)
	if err != nil {
		return nil, err
	}
	out := make([]model.Webhook, 0, len(rows))
	for _, r := range rows {
		var events []string
		if err := json.Unmarshal(r.EventsRaw, &events); err != nil {
			logging.Default().WithContext(ctx).WithField("webhook_id", r.PublicID).
				WithError(err).Warn("skipping webhook with unparseable events blob")
			continue
		}
		for _, e := range events {
			if e == eventType {
				out = append(out, model.Webhook{
					ID: r.ID, PublicID: r.PublicID, URL: r.URL, Secret: r.Secret,
					Events: events, EventsRaw: r.EventsRaw,
				})
				break
			}
		}
	}
	return out, nil
}

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/stefanposs/webmacs/infrastructure/database"
	"github.com/stefanposs/webmacs/infrastructure/errors"
	"github.com/stefanposs/webmacs/internal/model"
)

// CreateWebhookDelivery inserts a pending delivery row before the first
// attempt is made (§4.D), so a crash mid-delivery still leaves a record.
func (s *Store) CreateWebhookDelivery(ctx context.Context, webhookID int64, eventType string, payload []byte) (model.WebhookDelivery, error) {
	d := model.WebhookDelivery{
		PublicID:  newPublicID(),
		WebhookID: webhookID,
		EventType: eventType,
		Payload:   payload,
		Status:    model.DeliveryPending,
		CreatedAt: time.Now().UTC(),
	}
	row := s.gw.Querier(ctx).QueryRowContext(ctx, `
		INSERT INTO webhook_deliveries (public_id, webhook_id, event_type, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6) RETURNING id
	`, d.PublicID, d.WebhookID, d.EventType, d.Payload, d.Status, d.CreatedAt)
	if err := row.Scan(&d.ID); err != nil {
		return model.WebhookDelivery{}, err
	}
	return d, nil
}

// RecordDeliveryAttempt updates a delivery after one HTTP attempt. Passing
// delivered=true moves it to DeliveryDelivered; otherwise the caller
// decides via maxAttemptsReached whether to mark it DeliveryDeadLetter or
// leave it DeliveryPending for the next retry.
func (s *Store) RecordDeliveryAttempt(ctx context.Context, publicID string, statusCode *int, attemptErr *string, delivered, maxAttemptsReached bool) error {
	status := model.DeliveryPending
	var deliveredOn *time.Time
	switch {
	case delivered:
		status = model.DeliveryDelivered
		now := time.Now().UTC()
		deliveredOn = &now
	case maxAttemptsReached:
		status = model.DeliveryDeadLetter
	}
	result, err := s.gw.Querier(ctx).ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET attempts = attempts + 1, status=$2, last_status_code=$3, last_error=$4, delivered_on=$5
		WHERE public_id=$1
	`, publicID, status, statusCode, attemptErr, deliveredOn)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.NotFound("webhook_delivery", publicID)
	}
	return nil
}

// ListDeliveriesForWebhook returns a status-filtered, paginated page of
// deliveries for GET /webhooks/{id}/deliveries. An empty status lists all.
func (s *Store) ListDeliveriesForWebhook(ctx context.Context, webhookPublicID string, status model.DeliveryStatus, page database.Page) ([]model.WebhookDelivery, int, error) {
	var webhookID int64
	err := s.gw.Querier(ctx).QueryRowContext(ctx, `SELECT id FROM webhooks WHERE public_id=$1`, webhookPublicID).Scan(&webhookID)
	if err == sql.ErrNoRows {
		return nil, 0, errors.NotFound("webhook", webhookPublicID)
	}
	if err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM webhook_deliveries WHERE webhook_id=$1`
	listQuery := `
		SELECT id, public_id, webhook_id, event_type, payload, status, attempts,
		       last_status_code, last_error, delivered_on, created_at
		FROM webhook_deliveries WHERE webhook_id=$1
	`
	args := []interface{}{webhookID}
	if status != "" {
		countQuery += ` AND status=$2`
		listQuery += ` AND status=$2 ORDER BY created_at DESC LIMIT $3 OFFSET $4`
		args = append(args, status)
	} else {
		listQuery += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	}

	var total int
	countArgs := append([]interface{}{}, args...)
	if err := s.gw.Querier(ctx).GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, err
	}

	listArgs := append(args, page.PageSize, (page.Page-1)*page.PageSize)
	var deliveries []model.WebhookDelivery
	err = s.gw.Querier(ctx).SelectContext(ctx, &deliveries, listQuery, listArgs...)
	return deliveries, total, err
}

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/stefanposs/webmacs/infrastructure/database"
	"github.com/stefanposs/webmacs/infrastructure/errors"
	"github.com/stefanposs/webmacs/internal/model"
)

// CreateRule inserts a new Rule after checking its invariant: between and
// not_between rules require threshold_high, with threshold_high >=
// threshold (see DESIGN.md).
func (s *Store) CreateRule(ctx context.Context, r model.Rule) (model.Rule, error) {
	if r.Operator.RequiresThresholdHigh() {
		if r.ThresholdHigh == nil || *r.ThresholdHigh < r.Threshold {
			return model.Rule{}, errors.InvalidInput("threshold_high",
				"threshold_high is required and must be >= threshold for between/not_between")
		}
	}
	r.PublicID = newPublicID()
	row := s.gw.Querier(ctx).QueryRowContext(ctx, `
		INSERT INTO rules (public_id, name, event_id, operator, threshold, threshold_high,
			action_type, webhook_event_type, enabled, cooldown_seconds, last_triggered_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id
	`, r.PublicID, r.Name, r.EventID, r.Operator, r.Threshold, r.ThresholdHigh,
		r.ActionType, r.WebhookEventType, r.Enabled, r.CooldownSeconds, r.LastTriggeredAt)
	if err := row.Scan(&r.ID); err != nil {
		if database.IsUniqueViolation(err) {
			return model.Rule{}, errors.Conflict("a rule with this name already exists")
		}
		return model.Rule{}, err
	}
	return r, nil
}

// GetEnabledRulesForEvent fetches all enabled Rules targeting one Event,
// for the trigger flow (§4.E step 1).
func (s *Store) GetEnabledRulesForEvent(ctx context.Context, eventPublicID string) ([]model.Rule, error) {
	var rules []model.Rule
	err := s.gw.Querier(ctx).SelectContext(ctx, &rules, `
		SELECT r.id, r.public_id, r.name, e.public_id AS event_public_id, r.event_id, r.operator,
		       r.threshold, r.threshold_high, r.action_type, r.webhook_event_type, r.enabled,
		       r.cooldown_seconds, r.last_triggered_at
		FROM rules r
		JOIN events e ON e.id = r.event_id
		WHERE e.public_id = $1 AND r.enabled = true
	`, eventPublicID)
	return rules, err
}

// SetRuleLastTriggeredAt flushes the cooldown timestamp immediately,
// closing the cooldown race before the rule's action fires (§4.E step 2c).
// Returns an optimistic-concurrency style check: it only succeeds if the
// row's last_triggered_at is unchanged since it was read (lastSeen), which
// catches two concurrent evaluators racing to fire the same rule.
func (s *Store) SetRuleLastTriggeredAt(ctx context.Context, publicID string, lastSeen *time.Time, now time.Time) (bool, error) {
	var result sql.Result
	var err error
	if lastSeen == nil {
		result, err = s.gw.Querier(ctx).ExecContext(ctx, `
			UPDATE rules SET last_triggered_at=$2 WHERE public_id=$1 AND last_triggered_at IS NULL
		`, publicID, now)
	} else {
		result, err = s.gw.Querier(ctx).ExecContext(ctx, `
			UPDATE rules SET last_triggered_at=$3 WHERE public_id=$1 AND last_triggered_at=$2
		`, publicID, *lastSeen, now)
	}
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}

// ListRules returns a page of Rules.
func (s *Store) ListRules(ctx context.Context, page database.Page) ([]model.Rule, int, error) {
	var total int
	if err := s.gw.Querier(ctx).GetContext(ctx, &total, `SELECT COUNT(*) FROM rules`); err != nil {
		return nil, 0, err
	}
	var rules []model.Rule
	err := s.gw.Querier(ctx).SelectContext(ctx, &rules, `
		SELECT r.id, r.public_id, r.name, e.public_id AS event_public_id, r.event_id, r.operator,
		       r.threshold, r.threshold_high, r.action_type, r.webhook_event_type, r.enabled,
		       r.cooldown_seconds, r.last_triggered_at
		FROM rules r JOIN events e ON e.id = r.event_id
		ORDER BY r.name LIMIT $1 OFFSET $2
	`, page.PageSize, (page.Page-1)*page.PageSize)
	return rules, total, err
}

// GetRuleByPublicID fetches a single Rule.
func (s *Store) GetRuleByPublicID(ctx context.Context, publicID string) (model.Rule, error) {
	var r model.Rule
	err := s.gw.Querier(ctx).GetContext(ctx, &r, `
		SELECT r.id, r.public_id, r.name, e.public_id AS event_public_id, r.event_id, r.operator,
		       r.threshold, r.threshold_high, r.action_type, r.webhook_event_type, r.enabled,
		       r.cooldown_seconds, r.last_triggered_at
		FROM rules r JOIN events e ON e.id = r.event_id
		WHERE r.public_id = $1
	`, publicID)
	if err == sql.ErrNoRows {
		return model.Rule{}, errors.NotFound("rule", publicID)
	}
	return r, err
}

package rules

import (
	"context"
	"time"

	"github.com/stefanposs/webmacs/infrastructure/logging"
	"github.com/stefanposs/webmacs/internal/model"
	"github.com/stefanposs/webmacs/internal/webhook"
)

// RuleStore is the subset of the persistence gateway the engine needs.
type RuleStore interface {
	GetEnabledRulesForEvent(ctx context.Context, eventPublicID string) ([]model.Rule, error)
	SetRuleLastTriggeredAt(ctx context.Context, publicID string, lastSeen *time.Time, now time.Time) (bool, error)
}

// Dispatcher is the subset of the webhook dispatcher the engine needs for
// the webhook action.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventType string, payload *webhook.Payload)
}

// Engine runs the trigger flow for each ingested datapoint.
type Engine struct {
	store      RuleStore
	dispatcher Dispatcher
	logger     *logging.Logger
	now        func() time.Time
}

// New constructs an Engine.
func New(store RuleStore, dispatcher Dispatcher, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewFromEnv("rules")
	}
	return &Engine{store: store, dispatcher: dispatcher, logger: logger, now: time.Now}
}

// Evaluate runs the full trigger flow for one (event_public_id, value)
// pair (§4.E) and returns the number of rules that triggered.
func (e *Engine) Evaluate(ctx context.Context, eventPublicID string, value float64) (int, error) {
	enabledRules, err := e.store.GetEnabledRulesForEvent(ctx, eventPublicID)
	if err != nil {
		return 0, err
	}

	triggered := 0
	for _, r := range enabledRules {
		if !EvalRule(value, r) {
			continue
		}
		if inCooldown(r, e.now()) {
			continue
		}

		ok, err := e.store.SetRuleLastTriggeredAt(ctx, r.PublicID, r.LastTriggeredAt, e.now().UTC())
		if err != nil {
			e.logger.WithContext(ctx).WithError(err).WithField("rule_id", r.PublicID).
				Warn("failed to flush rule cooldown timestamp")
			continue
		}
		if !ok {
			// Another evaluator won the race to fire this rule first.
			continue
		}

		triggered++
		e.execute(ctx, r, eventPublicID, value)
	}
	return triggered, nil
}

func inCooldown(r model.Rule, now time.Time) bool {
	if r.LastTriggeredAt == nil {
		return false
	}
	return now.Sub(*r.LastTriggeredAt) < time.Duration(r.CooldownSeconds)*time.Second
}

func (e *Engine) execute(ctx context.Context, r model.Rule, eventPublicID string, value float64) {
	switch r.ActionType {
	case model.RuleActionLog:
		e.logger.WithContext(ctx).WithField("rule_id", r.PublicID).
			WithField("event_id", eventPublicID).WithField("value", value).
			Warn("rule triggered")
	case model.RuleActionWebhook:
		eventType := model.DefaultWebhookEventType
		if r.WebhookEventType != nil && *r.WebhookEventType != "" {
			eventType = *r.WebhookEventType
		}
		payload := webhook.NewPayload(eventType,
			webhook.KV{Key: "rule", Value: r.Name},
			webhook.KV{Key: "operator", Value: r.Operator},
			webhook.KV{Key: "threshold", Value: r.Threshold},
			webhook.KV{Key: "sensor", Value: eventPublicID},
			webhook.KV{Key: "value", Value: value},
		)
		e.dispatcher.Dispatch(ctx, eventType, payload)
	}
}

package ingest

import (
	"context"
	"time"

	"github.com/stefanposs/webmacs/infrastructure/logging"
	"github.com/stefanposs/webmacs/internal/model"
	"github.com/stefanposs/webmacs/internal/store"
	"github.com/stefanposs/webmacs/internal/webhook"
)

// DatapointInput is one datapoint as submitted by a controller (§4.F.3).
type DatapointInput struct {
	Value         float64
	EventPublicID string
}

// Result is the ingestion outcome reported to the caller (§6's
// /datapoints/batch response and §8 Property 1).
type Result struct {
	Accepted   []model.Datapoint
	Rejected   int
	Triggered  int
}

// ActiveEventResolver answers the plugin registry's membership question.
type ActiveEventResolver interface {
	ActiveEventIDs(ctx context.Context, eventPublicIDs []string) (map[string]bool, error)
}

// RuleEvaluator runs the trigger flow for one (event, value) pair.
type RuleEvaluator interface {
	Evaluate(ctx context.Context, eventPublicID string, value float64) (int, error)
}

// Dispatcher fires webhook deliveries.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventType string, payload *webhook.Payload)
}

// Broadcaster sends a message to a topic's subscribers.
type Broadcaster interface {
	Broadcast(topic string, payload interface{})
}

// frontendTopic is the broadcast hub topic browser dashboards subscribe to.
const frontendTopic = "frontend"

// sensorReadingEventType is the webhook event type fired per accepted
// datapoint, throttled by §4.F.1.
const sensorReadingEventType = "sensor.reading"

// Pipeline implements the ingestion hot path (§4.F).
type Pipeline struct {
	store       *store.Store
	registry    ActiveEventResolver
	rules       RuleEvaluator
	dispatcher  Dispatcher
	hub         Broadcaster
	webhookGate *ThrottleGate
	broadcastGate *ThrottleGate
	logger      *logging.Logger
}

// Config bundles Pipeline's collaborators and throttle intervals.
type Config struct {
	Store              *store.Store
	Registry           ActiveEventResolver
	Rules              RuleEvaluator
	Dispatcher         Dispatcher
	Hub                Broadcaster
	Logger             *logging.Logger
	WebhookInterval    float64 // seconds, clamped to [1,60]
	BroadcastInterval  float64 // seconds, not clamped; 0 selects DefaultBroadcastInterval
}

// New constructs a Pipeline.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewFromEnv("ingest")
	}
	webhookSeconds := Clamp(cfg.WebhookInterval, 1, 60)
	if cfg.WebhookInterval == 0 {
		webhookSeconds = DefaultSensorWebhookInterval.Seconds()
	}
	broadcastSeconds := cfg.BroadcastInterval
	if broadcastSeconds == 0 {
		broadcastSeconds = DefaultBroadcastInterval.Seconds()
	}
	return &Pipeline{
		store:         cfg.Store,
		registry:      cfg.Registry,
		rules:         cfg.Rules,
		dispatcher:    cfg.Dispatcher,
		hub:           cfg.Hub,
		logger:        logger,
		webhookGate:   NewThrottleGate(secondsToDuration(webhookSeconds)),
		broadcastGate: NewThrottleGate(secondsToDuration(broadcastSeconds)),
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// IngestBatch runs the full ingestion pipeline over a batch of datapoints
// (§4.F). N is validated against the batch size cap (500 by default) by
// the HTTP batch endpoint and the controller channel before this is called.
func (p *Pipeline) IngestBatch(ctx context.Context, inputs []DatapointInput) (Result, error) {
	uniqueEvents := make([]string, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		if _, ok := seen[in.EventPublicID]; ok {
			continue
		}
		seen[in.EventPublicID] = struct{}{}
		uniqueEvents = append(uniqueEvents, in.EventPublicID)
	}

	active, err := p.registry.ActiveEventIDs(ctx, uniqueEvents)
	if err != nil {
		return Result{}, err
	}

	accepted := make([]DatapointInput, 0, len(inputs))
	rejected := 0
	for _, in := range inputs {
		if active[in.EventPublicID] {
			accepted = append(accepted, in)
		} else {
			rejected++
		}
	}

	if len(accepted) == 0 {
		return Result{Rejected: rejected}, nil
	}

	var persisted []model.Datapoint
	err = p.store.WithTx(ctx, func(ctx context.Context) error {
		experiment, err := p.store.GetActiveExperiment(ctx)
		if err != nil {
			return err
		}
		var experimentID *int64
		var experimentPublicID *string
		if experiment != nil {
			experimentID = &experiment.ID
			experimentPublicID = &experiment.PublicID
		}

		eventIDs := make(map[string]int64, len(seen))
		rows := make([]store.DatapointInsert, 0, len(accepted))
		for _, in := range accepted {
			id, ok := eventIDs[in.EventPublicID]
			if !ok {
				id, err = p.store.GetEventIDByPublicID(ctx, in.EventPublicID)
				if err != nil {
					return err
				}
				eventIDs[in.EventPublicID] = id
			}
			rows = append(rows, store.DatapointInsert{
				Value:              in.Value,
				EventID:            id,
				EventPublicID:      in.EventPublicID,
				ExperimentID:       experimentID,
				ExperimentPublicID: experimentPublicID,
			})
		}

		persisted, err = p.store.BulkInsertDatapoints(ctx, rows)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	p.fireWebhooks(ctx, persisted)
	triggered := p.evaluateRules(ctx, persisted)
	p.broadcast(ctx, persisted)

	return Result{Accepted: persisted, Rejected: rejected, Triggered: triggered}, nil
}

// fireWebhooks applies the per-event throttle gate and detaches a
// background dispatch for each admitted datapoint (§4.F step 4).
func (p *Pipeline) fireWebhooks(ctx context.Context, datapoints []model.Datapoint) {
	for _, dp := range datapoints {
		if !p.webhookGate.Admit(dp.EventPublicID) {
			continue
		}
		payload := webhook.NewPayload(sensorReadingEventType,
			webhook.KV{Key: "sensor", Value: dp.EventPublicID},
			webhook.KV{Key: "value", Value: dp.Value},
		)
		go p.dispatcher.Dispatch(context.WithoutCancel(ctx), sensorReadingEventType, payload)
	}
}

// evaluateRules deduplicates to the last value per event in the batch and
// evaluates each exactly once (§4.F step 5, §8 Property 2). Evaluator
// errors are caught and logged, never aborting ingestion.
func (p *Pipeline) evaluateRules(ctx context.Context, datapoints []model.Datapoint) int {
	lastValue := make(map[string]float64)
	order := make([]string, 0)
	for _, dp := range datapoints {
		if _, ok := lastValue[dp.EventPublicID]; !ok {
			order = append(order, dp.EventPublicID)
		}
		lastValue[dp.EventPublicID] = dp.Value
	}

	total := 0
	for _, eventPublicID := range order {
		n, err := p.rules.Evaluate(ctx, eventPublicID, lastValue[eventPublicID])
		if err != nil {
			p.logger.WithContext(ctx).WithError(err).WithField("event_id", eventPublicID).
				Warn("rule evaluation failed")
			continue
		}
		total += n
	}
	return total
}

// broadcast applies the broadcast throttle gate and sends one batched
// message per admitted event to the frontend topic (§4.F step 6).
func (p *Pipeline) broadcast(ctx context.Context, datapoints []model.Datapoint) {
	events := make([]string, 0, len(datapoints))
	seen := make(map[string]struct{})
	for _, dp := range datapoints {
		if _, ok := seen[dp.EventPublicID]; ok {
			continue
		}
		seen[dp.EventPublicID] = struct{}{}
		events = append(events, dp.EventPublicID)
	}

	admitted := p.broadcastGate.AdmitSet(events)
	if len(admitted) == 0 {
		return
	}

	filtered := make([]model.Datapoint, 0, len(datapoints))
	for _, dp := range datapoints {
		if admitted[dp.EventPublicID] {
			filtered = append(filtered, dp)
		}
	}
	if len(filtered) == 0 {
		return
	}

	p.hub.Broadcast(frontendTopic, map[string]interface{}{
		"type":       "datapoints_batch",
		"datapoints": filtered,
	})
}

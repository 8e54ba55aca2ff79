// Package webhook implements the webhook dispatcher (§4.D): fan-out to
// subscribed URLs with at-least-once delivery, HMAC signing, bounded
// concurrency, and exponential backoff.
package webhook

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/stefanposs/webmacs/infrastructure/httputil"
	"github.com/stefanposs/webmacs/infrastructure/logging"
	"github.com/stefanposs/webmacs/infrastructure/ratelimit"
	"github.com/stefanposs/webmacs/internal/model"
)

// MaxRetries bounds delivery attempts per webhook. With BackoffBase=2 the
// cumulative backoff (2+4+8+16 = 30s) stays well under the 5-minute cap.
const MaxRetries = 5

// BackoffBase is the exponential backoff base (seconds): wait =
// BackoffBase^attempt between attempts.
const BackoffBase = 2

const requestTimeout = 10 * time.Second

// DeliveryStore is the subset of the persistence gateway the dispatcher
// needs.
type DeliveryStore interface {
	ListEnabledWebhooksForEventType(ctx context.Context, eventType string) ([]model.Webhook, error)
	CreateWebhookDelivery(ctx context.Context, webhookID int64, eventType string, payload []byte) (model.WebhookDelivery, error)
	RecordDeliveryAttempt(ctx context.Context, publicID string, statusCode *int, attemptErr *string, delivered, maxAttemptsReached bool) error
}

// Dispatcher fans out webhook deliveries under a bounded concurrency
// semaphore shared by every in-flight delivery task, and a shared outbound
// rate limit so a burst of triggered rules can't hammer a flaky downstream
// receiver all at once.
type Dispatcher struct {
	store  DeliveryStore
	client *ratelimit.RateLimitedClient
	sem    chan struct{}
	logger *logging.Logger
	sleep  func(time.Duration)
}

// New constructs a Dispatcher. permits bounds concurrent in-flight HTTP
// deliveries (10-20 per the concurrency model); the outbound rate is
// capped at permits*2 requests/second across all deliveries combined.
func New(store DeliveryStore, permits int, logger *logging.Logger) *Dispatcher {
	if permits <= 0 {
		permits = 15
	}
	if logger == nil {
		logger = logging.NewFromEnv("webhook")
	}
	httpClient := &http.Client{Timeout: requestTimeout, Transport: httputil.DefaultTransportWithMinTLS12()}
	limited := ratelimit.NewRateLimitedClient(httpClient, ratelimit.RateLimitConfig{
		RequestsPerSecond: float64(permits) * 2,
		Burst:             permits * 4,
	})
	return &Dispatcher{
		store:  store,
		client: limited,
		sem:    make(chan struct{}, permits),
		logger: logger,
		sleep:  time.Sleep,
	}
}

// Dispatch fans out payload to every enabled Webhook subscribed to
// eventType. Each matching webhook is delivered in its own goroutine;
// Dispatch itself returns immediately without waiting for deliveries to
// complete (action execution must never block ingestion or rule
// evaluation, per §4.E/§4.F).
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, payload *Payload) {
	hooks, err := d.store.ListEnabledWebhooksForEventType(ctx, eventType)
	if err != nil {
		d.logger.WithContext(ctx).WithError(err).Warn("webhook fan-out query failed")
		return
	}
	if len(hooks) == 0 {
		return
	}

	body, err := payload.Bytes()
	if err != nil {
		d.logger.WithContext(ctx).WithError(err).Warn("webhook payload marshal failed")
		return
	}

	for _, hook := range hooks {
		hook := hook
		go d.deliver(context.WithoutCancel(ctx), hook, eventType, body)
	}
}

// deliver runs the full per-webhook delivery lifecycle in its own
// goroutine/task, as described by §4.D.
func (d *Dispatcher) deliver(ctx context.Context, hook model.Webhook, eventType string, body []byte) {
	d.sem <- struct{}{}
	defer func() { <-d.sem }()

	delivery, err := d.store.CreateWebhookDelivery(ctx, hook.ID, eventType, body)
	if err != nil {
		d.logger.WithContext(ctx).WithError(err).WithField("webhook_id", hook.PublicID).
			Warn("webhook delivery row creation failed")
		return
	}

	for attempt := 1; attempt <= MaxRetries; attempt++ {
		statusCode, attemptErr := d.attempt(ctx, hook, body)
		delivered := attemptErr == nil && statusCode < 300
		final := attempt == MaxRetries

		var errMsg *string
		if attemptErr != nil {
			msg := attemptErr.Error()
			errMsg = &msg
		}
		var code *int
		if statusCode != 0 {
			code = &statusCode
		}

		if err := d.store.RecordDeliveryAttempt(ctx, delivery.PublicID, code, errMsg, delivered, final && !delivered); err != nil {
			d.logger.WithContext(ctx).WithError(err).Warn("webhook delivery status update failed")
		}
		d.logger.LogWebhookDelivery(ctx, hook.PublicID, attempt, statusCode, attemptErr)

		if delivered || final {
			return
		}

		wait := backoffDuration(attempt)
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.sleep(wait)
	}
}

func backoffDuration(attempt int) time.Duration {
	seconds := 1
	for i := 0; i < attempt; i++ {
		seconds *= BackoffBase
	}
	return time.Duration(seconds) * time.Second
}

// attempt performs one signed HTTP POST. statusCode is 0 on a transport
// error (no response received).
func (d *Dispatcher) attempt(ctx context.Context, hook model.Webhook, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	timestamp := time.Now().UTC().Unix()
	req.Header.Set("X-Webhook-Timestamp", TimestampHeader(timestamp))
	if hook.Secret != nil {
		req.Header.Set("X-Webhook-Signature", Sign(*hook.Secret, timestamp, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

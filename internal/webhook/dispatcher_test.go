package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stefanposs/webmacs/internal/model"
)

type fakeDeliveryStore struct {
	mu          sync.Mutex
	hooks       []model.Webhook
	deliveries  []model.WebhookDelivery
	attempts    []attemptRecord
	deliveryErr error
}

type attemptRecord struct {
	publicID   string
	statusCode *int
	attemptErr *string
	delivered  bool
	maxReached bool
}

func (f *fakeDeliveryStore) ListEnabledWebhooksForEventType(ctx context.Context, eventType string) ([]model.Webhook, error) {
	return f.hooks, nil
}

func (f *fakeDeliveryStore) CreateWebhookDelivery(ctx context.Context, webhookID int64, eventType string, payload []byte) (model.WebhookDelivery, error) {
	if f.deliveryErr != nil {
		return model.WebhookDelivery{}, f.deliveryErr
	}
	d := model.WebhookDelivery{PublicID: "delivery-1", WebhookID: webhookID, EventType: eventType, Payload: payload}
	f.mu.Lock()
	f.deliveries = append(f.deliveries, d)
	f.mu.Unlock()
	return d, nil
}

func (f *fakeDeliveryStore) RecordDeliveryAttempt(ctx context.Context, publicID string, statusCode *int, attemptErr *string, delivered, maxAttemptsReached bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, attemptRecord{publicID, statusCode, attemptErr, delivered, maxAttemptsReached})
	return nil
}

func (f *fakeDeliveryStore) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.attempts)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestDispatcher_Dispatch_DeliversToEnabledHooks(t *testing.T) {
	var received int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	secret := "shh"
	store := &fakeDeliveryStore{hooks: []model.Webhook{
		{ID: 1, PublicID: "hook-1", URL: srv.URL, Secret: &secret, Enabled: true},
	}}
	d := New(store, 5, nil)

	d.Dispatch(context.Background(), "sensor.threshold_exceeded", NewPayload("sensor.threshold_exceeded"))

	waitFor(t, time.Second, func() bool { return store.attemptCount() == 1 })
	if !store.attempts[0].delivered {
		t.Error("expected the delivery to be recorded as successful")
	}
}

func TestDispatcher_Dispatch_NoHooksIsNoOp(t *testing.T) {
	store := &fakeDeliveryStore{}
	d := New(store, 5, nil)
	d.Dispatch(context.Background(), "sensor.threshold_exceeded", NewPayload("sensor.threshold_exceeded"))
	time.Sleep(20 * time.Millisecond)
	if store.attemptCount() != 0 {
		t.Fatal("expected no delivery attempts when there are no enabled hooks")
	}
}

func TestDispatcher_Deliver_RetriesAndGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := &fakeDeliveryStore{hooks: []model.Webhook{{ID: 1, PublicID: "hook-1", URL: srv.URL, Enabled: true}}}
	d := New(store, 5, nil)
	d.sleep = func(time.Duration) {} // skip real backoff waits in the test

	d.Dispatch(context.Background(), "sensor.threshold_exceeded", NewPayload("sensor.threshold_exceeded"))

	waitFor(t, time.Second, func() bool { return store.attemptCount() == MaxRetries })
	last := store.attempts[len(store.attempts)-1]
	if last.delivered {
		t.Error("expected the final attempt to still be a failure")
	}
	if !last.maxReached {
		t.Error("expected maxAttemptsReached on the final failed attempt")
	}
}

func TestBackoffDuration_Grows(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 1; attempt <= MaxRetries; attempt++ {
		d := backoffDuration(attempt)
		if d <= prev {
			t.Fatalf("backoffDuration(%d) = %v, expected strictly greater than previous %v", attempt, d, prev)
		}
		prev = d
	}
}

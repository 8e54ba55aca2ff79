package ingest

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/stefanposs/webmacs/infrastructure/database"
	"github.com/stefanposs/webmacs/internal/store"
	"github.com/stefanposs/webmacs/internal/webhook"
)

type fakeRegistry struct {
	active map[string]bool
}

func (f *fakeRegistry) ActiveEventIDs(ctx context.Context, eventPublicIDs []string) (map[string]bool, error) {
	return f.active, nil
}

type fakeRules struct {
	triggered int
	calls     []string
}

func (f *fakeRules) Evaluate(ctx context.Context, eventPublicID string, value float64) (int, error) {
	f.calls = append(f.calls, eventPublicID)
	return f.triggered, nil
}

type fakeDispatcher struct {
	dispatched int
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, eventType string, payload *webhook.Payload) {
	f.dispatched++
}

type fakeBroadcaster struct {
	topics []string
}

func (f *fakeBroadcaster) Broadcast(topic string, payload interface{}) {
	f.topics = append(f.topics, topic)
}

func newTestPipelineStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	sqlxDB := sqlx.NewDb(db, "postgres")
	return store.New(database.NewGateway(sqlxDB)), mock
}

func TestPipeline_IngestBatch_RejectsUnknownEvents(t *testing.T) {
	s, _ := newTestPipelineStore(t)
	registry := &fakeRegistry{active: map[string]bool{}}
	p := New(Config{Store: s, Registry: registry, Rules: &fakeRules{}, Dispatcher: &fakeDispatcher{}, Hub: &fakeBroadcaster{}})

	result, err := p.IngestBatch(context.Background(), []DatapointInput{{Value: 1, EventPublicID: "unknown"}})
	if err != nil {
		t.Fatalf("IngestBatch returned error: %v", err)
	}
	if result.Rejected != 1 || len(result.Accepted) != 0 {
		t.Errorf("result = %+v, want all rejected", result)
	}
}

func TestPipeline_IngestBatch_AcceptsAndPersists(t *testing.T) {
	s, mock := newTestPipelineStore(t)
	registry := &fakeRegistry{active: map[string]bool{"evt-1": true}}
	rules := &fakeRules{triggered: 1}
	dispatcher := &fakeDispatcher{}
	hub := &fakeBroadcaster{}
	p := New(Config{Store: s, Registry: registry, Rules: rules, Dispatcher: dispatcher, Hub: hub, WebhookInterval: 1, BroadcastInterval: 1})

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, public_id, name, started_on, stopped_on\s+FROM experiments WHERE stopped_on IS NULL LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "public_id", "name", "started_on", "stopped_on"}))
	mock.ExpectQuery(`SELECT id FROM events WHERE public_id = \$1`).
		WithArgs("evt-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectQuery(`INSERT INTO datapoints`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectCommit()

	result, err := p.IngestBatch(context.Background(), []DatapointInput{{Value: 99.5, EventPublicID: "evt-1"}})
	if err != nil {
		t.Fatalf("IngestBatch returned error: %v", err)
	}
	if len(result.Accepted) != 1 {
		t.Fatalf("expected 1 accepted datapoint, got %d", len(result.Accepted))
	}
	if result.Accepted[0].EventID != 42 {
		t.Errorf("EventID = %d, want 42", result.Accepted[0].EventID)
	}
	if result.Triggered != 1 {
		t.Errorf("Triggered = %d, want 1", result.Triggered)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

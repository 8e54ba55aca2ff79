package store

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/stefanposs/webmacs/infrastructure/database"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	sqlxDB := sqlx.NewDb(db, "postgres")
	return New(database.NewGateway(sqlxDB)), mock
}

func TestStore_GetEnabledRulesForEvent(t *testing.T) {
	s, mock := newTestStore(t)

	rows := sqlmock.NewRows([]string{
		"id", "public_id", "name", "event_public_id", "event_id", "operator",
		"threshold", "threshold_high", "action_type", "webhook_event_type", "enabled",
		"cooldown_seconds", "last_triggered_at",
	}).AddRow(1, "rule-1", "high temp", "evt-1", 1, "gt", 30.0, nil, "webhook", nil, true, 60, nil)

	mock.ExpectQuery(`SELECT .* FROM rules r\s+JOIN events e ON e\.id = r\.event_id\s+WHERE e\.public_id = \$1 AND r\.enabled = true`).
		WithArgs("evt-1").
		WillReturnRows(rows)

	rules, err := s.GetEnabledRulesForEvent(context.Background(), "evt-1")
	if err != nil {
		t.Fatalf("GetEnabledRulesForEvent returned error: %v", err)
	}
	if len(rules) != 1 || rules[0].PublicID != "rule-1" {
		t.Errorf("rules = %+v, want one rule with public_id rule-1", rules)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestStore_SetRuleLastTriggeredAt_WinsRace(t *testing.T) {
	s, mock := newTestStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE rules SET last_triggered_at=\$2 WHERE public_id=\$1 AND last_triggered_at IS NULL`).
		WithArgs("rule-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	won, err := s.SetRuleLastTriggeredAt(context.Background(), "rule-1", nil, now)
	if err != nil {
		t.Fatalf("SetRuleLastTriggeredAt returned error: %v", err)
	}
	if !won {
		t.Error("expected the update to win when one row was affected")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestStore_SetRuleLastTriggeredAt_LosesRace(t *testing.T) {
	s, mock := newTestStore(t)
	last := time.Now().UTC().Add(-time.Minute)
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE rules SET last_triggered_at=\$3 WHERE public_id=\$1 AND last_triggered_at=\$2`).
		WithArgs("rule-1", last, now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := s.SetRuleLastTriggeredAt(context.Background(), "rule-1", &last, now)
	if err != nil {
		t.Fatalf("SetRuleLastTriggeredAt returned error: %v", err)
	}
	if won {
		t.Error("expected the update to lose when zero rows were affected (another evaluator won)")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestStore_GetRuleByPublicID_NotFound(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT .* FROM rules r JOIN events e ON e\.id = r\.event_id\s+WHERE r\.public_id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "public_id", "name", "event_public_id", "event_id", "operator",
			"threshold", "threshold_high", "action_type", "webhook_event_type", "enabled",
			"cooldown_seconds", "last_triggered_at",
		}))

	if _, err := s.GetRuleByPublicID(context.Background(), "missing"); err == nil {
		t.Error("expected a not-found error for a missing rule")
	}
}

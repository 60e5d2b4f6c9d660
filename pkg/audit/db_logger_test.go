package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestLogCheck(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("INSERT INTO permission_check_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	logger := NewDBLogger(db)
	record := &PermissionCheckLog{
		SubjectID:        "u-1",
		ClientID:         "portal",
		Resource:         "orders",
		RequestedScopes:  "@r@u",
		GrantedScopes:    "@r",
		Allowed:          false,
		ProcessingTimeMs: 12,
	}
	if err := logger.LogCheck(context.Background(), record); err != nil {
		t.Fatalf("LogCheck failed: %v", err)
	}
	if record.ID != 7 {
		t.Errorf("expected id 7, got %d", record.ID)
	}
	if record.CheckedAt.IsZero() {
		t.Error("expected checked_at to be filled in")
	}
}

// Rejected checks carry an error code but still produce a row.
func TestLogCheck_RejectedRequest(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("INSERT INTO permission_check_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(8))

	logger := NewDBLogger(db)
	record := &PermissionCheckLog{
		ClientID:  "portal",
		Allowed:   false,
		ErrorCode: "invalid_token",
	}
	if err := logger.LogCheck(context.Background(), record); err != nil {
		t.Fatalf("LogCheck failed: %v", err)
	}
}

func TestQuery_Filters(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	columns := []string{
		"id", "subject_id", "client_id", "resource", "requested_scopes", "granted_scopes",
		"allowed", "error_code", "error_message", "processing_time_ms",
		"ip_address", "user_agent", "request_id", "checked_at",
	}
	rows := sqlmock.NewRows(columns).
		AddRow(2, "u-1", "portal", "orders", "@r", "@r", true, "", "", 3, "10.0.0.1", "curl", "req-2", now).
		AddRow(1, "u-1", "portal", "orders", "@d", "", false, "", "", 2, "10.0.0.1", "curl", "req-1", now.Add(-time.Minute))
	mock.ExpectQuery("SELECT (.+) FROM permission_check_logs").
		WithArgs("u-1", "portal", DefaultQueryLimit).
		WillReturnRows(rows)

	logger := NewDBLogger(db)
	records, err := logger.Query(context.Background(), QueryFilter{SubjectID: "u-1", ClientID: "portal"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != 2 {
		t.Errorf("expected newest record first, got id %d", records[0].ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestQuery_LimitCapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM permission_check_logs").
		WithArgs(MaxQueryLimit).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "subject_id", "client_id", "resource", "requested_scopes", "granted_scopes",
			"allowed", "error_code", "error_message", "processing_time_ms",
			"ip_address", "user_agent", "request_id", "checked_at",
		}))

	logger := NewDBLogger(db)
	if _, err := logger.Query(context.Background(), QueryFilter{Limit: 50000}); err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCleanup(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("DELETE FROM permission_check_logs").
		WillReturnResult(sqlmock.NewResult(0, 120))

	logger := NewDBLogger(db)
	removed, err := logger.Cleanup(context.Background(), 90)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if removed != 120 {
		t.Errorf("expected 120 rows removed, got %d", removed)
	}
}

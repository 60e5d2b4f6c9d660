package grants

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/sentinel-iam/sentinel/pkg/scope"
)

func TestCreateGrant(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("INSERT INTO permission_grants").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	store := NewStore(db)
	grant := &Grant{
		SubjectType: SubjectUser,
		SubjectID:   "u-1",
		ResourceID:  10,
		Scopes:      scope.NewSet("r", "u"),
		IsEnabled:   true,
	}
	if err := store.CreateGrant(context.Background(), grant); err != nil {
		t.Fatalf("CreateGrant failed: %v", err)
	}
	if grant.ID != 42 {
		t.Errorf("expected id 42, got %d", grant.ID)
	}
	if grant.GrantedAt.IsZero() {
		t.Error("expected granted_at to be set")
	}
}

func TestCreateGrant_Invalid(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	store := NewStore(db)

	tests := []struct {
		name  string
		grant Grant
	}{
		{"bad subject type", Grant{SubjectType: "robot", SubjectID: "r2", ResourceID: 10, Scopes: scope.NewSet("r")}},
		{"missing subject id", Grant{SubjectType: SubjectUser, ResourceID: 10, Scopes: scope.NewSet("r")}},
		{"missing resource", Grant{SubjectType: SubjectUser, SubjectID: "u-1", Scopes: scope.NewSet("r")}},
		{"empty scopes", Grant{SubjectType: SubjectUser, SubjectID: "u-1", ResourceID: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := tt.grant
			if err := store.CreateGrant(context.Background(), &g); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCreateGrantBatch_AllPersist(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO permission_grants").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery("INSERT INTO permission_grants").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectCommit()

	store := NewStore(db)
	batch := []*Grant{
		{SubjectType: SubjectUser, SubjectID: "u-1", ResourceID: 10, Scopes: scope.NewSet("r"), IsEnabled: true},
		{SubjectType: SubjectGroup, SubjectID: "g-ops", ResourceID: 12, Scopes: scope.NewSet("e"), IsEnabled: true},
	}

	result, err := store.CreateGrantBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("CreateGrantBatch failed: %v", err)
	}
	if result.Granted != 2 || result.Failed != 0 {
		t.Errorf("expected 2 granted / 0 failed, got %d / %d", result.Granted, result.Failed)
	}
	if batch[0].ID != 1 || batch[1].ID != 2 {
		t.Errorf("expected ids assigned after commit, got %d / %d", batch[0].ID, batch[1].ID)
	}
	if batch[0].GrantedAt.IsZero() || batch[1].GrantedAt.IsZero() {
		t.Error("expected granted_at set on every grant")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// A failing row rolls back the whole batch: nothing persists and every
// grant counts as failed.
func TestCreateGrantBatch_RollsBackOnAnyFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO permission_grants").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery("INSERT INTO permission_grants").
		WillReturnError(errForeignKey{})
	mock.ExpectRollback()

	store := NewStore(db)
	batch := []*Grant{
		{SubjectType: SubjectUser, SubjectID: "u-1", ResourceID: 10, Scopes: scope.NewSet("r"), IsEnabled: true},
		{SubjectType: SubjectUser, SubjectID: "u-1", ResourceID: 999, Scopes: scope.NewSet("r"), IsEnabled: true},
	}

	result, err := store.CreateGrantBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("CreateGrantBatch failed: %v", err)
	}
	if result.Granted != 0 {
		t.Errorf("expected 0 granted, got %d", result.Granted)
	}
	if result.Failed != 2 {
		t.Errorf("expected every grant counted as failed, got %d", result.Failed)
	}
	if batch[0].ID != 0 {
		t.Errorf("expected no id assigned to a rolled-back grant, got %d", batch[0].ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

type errForeignKey struct{}

func (errForeignKey) Error() string { return "violates foreign key constraint" }

// An invalid grant rejects the batch before any database work.
func TestCreateGrantBatch_InvalidGrantRejectsBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	result, err := store.CreateGrantBatch(context.Background(), []*Grant{
		{SubjectType: SubjectUser, SubjectID: "u-1", ResourceID: 10, Scopes: scope.NewSet("r")},
		{SubjectType: "robot", SubjectID: "r2", ResourceID: 10, Scopes: scope.NewSet("r")},
	})
	if err != nil {
		t.Fatalf("CreateGrantBatch failed: %v", err)
	}
	if result.Granted != 0 || result.Failed != 2 {
		t.Errorf("expected 0 granted / 2 failed, got %d / %d", result.Granted, result.Failed)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expected no database activity for a rejected batch: %v", err)
	}
}

func TestDeleteGrant(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("DELETE FROM permission_grants").WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM permission_grants").WithArgs(int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewStore(db)

	existed, err := store.DeleteGrant(context.Background(), 42)
	if err != nil {
		t.Fatalf("DeleteGrant failed: %v", err)
	}
	if !existed {
		t.Error("expected delete of existing grant to report true")
	}

	existed, err = store.DeleteGrant(context.Background(), 99)
	if err != nil {
		t.Fatalf("DeleteGrant failed: %v", err)
	}
	if existed {
		t.Error("expected delete of missing grant to report false")
	}
}

func TestGetActiveGrantsForResource_DecodesScopes(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "subject_type", "subject_id", "subject_name", "resource_id",
		"scopes", "inherit_to_children", "is_enabled", "granted_by", "granted_at", "expires_at",
	}).
		AddRow(1, "user", "u-1", "Alice", 10, "@r@u", false, true, "admin", now, nil).
		AddRow(2, "organization", "org-1", "", 10, `["r","e"]`, true, true, "", now, nil)
	mock.ExpectQuery("SELECT (.+) FROM permission_grants").WillReturnRows(rows)

	store := NewStore(db)
	grants, err := store.GetActiveGrantsForResource(context.Background(), 10, "u-1", nil, []string{"org-1"})
	if err != nil {
		t.Fatalf("GetActiveGrantsForResource failed: %v", err)
	}
	if len(grants) != 2 {
		t.Fatalf("expected 2 grants, got %d", len(grants))
	}
	if !grants[0].Scopes.Equal(scope.NewSet("r", "u")) {
		t.Errorf("expected canonical scopes r,u, got %v", grants[0].Scopes.Codes())
	}
	// Legacy JSON-array scope rows decode too.
	if !grants[1].Scopes.Equal(scope.NewSet("r", "e")) {
		t.Errorf("expected legacy scopes r,e, got %v", grants[1].Scopes.Codes())
	}
	if !grants[1].InheritToChildren {
		t.Error("expected inherit_to_children to scan")
	}
}

func TestGetActiveGrantsForSubject_SpansClients(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "subject_type", "subject_id", "subject_name", "resource_id",
		"client_id", "code", "scopes", "inherit_to_children", "is_enabled",
		"granted_by", "granted_at", "expires_at",
	}).
		AddRow(1, "user", "u-1", "Alice", 10, "billing", "invoices", "@r", false, true, "", now, nil).
		AddRow(2, "group", "g-ops", "Operations", 20, "portal", "orders", "@e", false, true, "", now, nil)
	mock.ExpectQuery("SELECT (.+) FROM permission_grants").WillReturnRows(rows)

	store := NewStore(db)
	grants, err := store.GetActiveGrantsForSubject(context.Background(), "u-1", []string{"g-ops"}, nil)
	if err != nil {
		t.Fatalf("GetActiveGrantsForSubject failed: %v", err)
	}
	if len(grants) != 2 {
		t.Fatalf("expected 2 grants, got %d", len(grants))
	}
	if grants[0].ClientID != "billing" || grants[0].ResourceCode != "invoices" {
		t.Errorf("expected owning client and code on the grant, got %+v", grants[0])
	}
	if grants[1].ClientID != "portal" || grants[1].SubjectName != "Operations" {
		t.Errorf("unexpected second grant: %+v", grants[1])
	}
}

package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/testimonial-hub/testimonials-backend/internal/db/models"
)

var apiKeyCols = []string{
	"id", "name", "description", "key_hash", "key_prefix", "allowed_domains",
	"rate_limit_per_hour", "is_active", "usage_count", "created_by", "last_used_at", "created_at",
}

func sampleKeyRow(id, prefix string, domains []byte) *sqlmock.Rows {
	return sqlmock.NewRows(apiKeyCols).
		AddRow(id, "Widget Key", nil, "$2a$12$hash", prefix, domains, 1000, true, int64(0), nil, nil, time.Now())
}

func newAPIKeyRepo(t *testing.T) (*APIKeyRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewAPIKeyRepository(db), mock
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestAPIKeyCreate_MarshalsDomains(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectExec("INSERT INTO api_keys").
		WithArgs(sqlmock.AnyArg(), "Widget Key", nil, "$2a$12$hash", "twk_abc123",
			[]byte(`["example.com"]`), 1000, true, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	key := &models.APIKey{
		Name:             "Widget Key",
		KeyHash:          "$2a$12$hash",
		KeyPrefix:        "twk_abc123",
		AllowedDomains:   []string{"example.com"},
		RateLimitPerHour: 1000,
		IsActive:         true,
	}
	if err := repo.Create(context.Background(), key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.ID == "" {
		t.Error("Create did not assign an ID")
	}
}

func TestAPIKeyCreate_EmptyDomainsStoredAsNull(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectExec("INSERT INTO api_keys").
		WithArgs(sqlmock.AnyArg(), "Unrestricted", nil, "$2a$12$hash", "twk_xyz789",
			nil, 1000, true, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	key := &models.APIKey{
		Name:             "Unrestricted",
		KeyHash:          "$2a$12$hash",
		KeyPrefix:        "twk_xyz789",
		RateLimitPerHour: 1000,
		IsActive:         true,
	}
	if err := repo.Create(context.Background(), key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// GetByPrefix / ListActiveRestricted
// ---------------------------------------------------------------------------

func TestAPIKeyGetByPrefix_UnmarshalsDomains(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectQuery("SELECT.*FROM api_keys.*WHERE key_prefix").
		WithArgs("twk_abc123").
		WillReturnRows(sampleKeyRow("key-1", "twk_abc123", []byte(`["example.com","client-site.io"]`)))

	keys, err := repo.GetByPrefix(context.Background(), "twk_abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("len = %d, want 1", len(keys))
	}
	if len(keys[0].AllowedDomains) != 2 {
		t.Errorf("AllowedDomains = %v, want 2 entries", keys[0].AllowedDomains)
	}
}

func TestAPIKeyGetByPrefix_NoMatch(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectQuery("SELECT.*FROM api_keys.*WHERE key_prefix").
		WithArgs("twk_none").
		WillReturnRows(sqlmock.NewRows(apiKeyCols))

	keys, err := repo.GetByPrefix(context.Background(), "twk_none")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("len = %d, want 0", len(keys))
	}
}

func TestAPIKeyListActiveRestricted_NullDomainsExcludedByQuery(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectQuery("SELECT.*FROM api_keys.*is_active = TRUE AND allowed_domains IS NOT NULL").
		WillReturnRows(sampleKeyRow("key-1", "twk_abc123", []byte(`["example.com"]`)))

	keys, err := repo.ListActiveRestricted(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("len = %d, want 1", len(keys))
	}
	if !keys[0].HasDomainRestrictions() {
		t.Error("expected key with domain restrictions")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Update / Delete / RecordUsage
// ---------------------------------------------------------------------------

func TestAPIKeyUpdate_ReturnsUpdatedRow(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectQuery("UPDATE api_keys.*RETURNING").
		WithArgs("key-1", "Renamed", nil, []byte(`["example.com"]`), 500, false).
		WillReturnRows(sqlmock.NewRows(apiKeyCols).
			AddRow("key-1", "Renamed", nil, "$2a$12$hash", "twk_abc123",
				[]byte(`["example.com"]`), 500, false, int64(3), nil, nil, time.Now()))

	updated, err := repo.Update(context.Background(), &models.APIKey{
		ID:               "key-1",
		Name:             "Renamed",
		AllowedDomains:   []string{"example.com"},
		RateLimitPerHour: 500,
		IsActive:         false,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated == nil {
		t.Fatal("expected updated key, got nil")
	}
	if updated.IsActive {
		t.Error("IsActive = true, want false")
	}
}

func TestAPIKeyUpdate_NotFound(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectQuery("UPDATE api_keys.*RETURNING").
		WithArgs("missing", "X", nil, nil, 1000, true).
		WillReturnRows(sqlmock.NewRows(apiKeyCols))

	updated, err := repo.Update(context.Background(), &models.APIKey{
		ID:               "missing",
		Name:             "X",
		RateLimitPerHour: 1000,
		IsActive:         true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated != nil {
		t.Errorf("expected nil for missing key, got %+v", updated)
	}
}

func TestAPIKeyDelete(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectExec("DELETE FROM api_keys").
		WithArgs("key-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := repo.Delete(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !deleted {
		t.Error("Delete = false, want true")
	}
}

func TestAPIKeyRecordUsage(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectExec("UPDATE api_keys.*usage_count = usage_count \\+ 1").
		WithArgs("key-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.RecordUsage(context.Background(), "key-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestAPIKeyList_JoinsCreatorName(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	cols := append(append([]string{}, apiKeyCols...), "created_by_name")
	mock.ExpectQuery("SELECT.*FROM api_keys ak.*LEFT JOIN users u").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("key-1", "Widget Key", nil, "$2a$12$hash", "twk_abc123",
				nil, 1000, true, int64(12), "user-1", nil, time.Now(), "Alice"))

	keys, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("len = %d, want 1", len(keys))
	}
	if keys[0].CreatedByName == nil || *keys[0].CreatedByName != "Alice" {
		t.Errorf("CreatedByName = %v, want Alice", keys[0].CreatedByName)
	}
	if keys[0].AllowedDomains != nil {
		t.Errorf("AllowedDomains = %v, want nil for NULL column", keys[0].AllowedDomains)
	}
}

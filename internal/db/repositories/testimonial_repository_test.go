package repositories

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/testimonial-hub/testimonials-backend/internal/db/models"
)

var adminCols = []string{
	"id", "full_name", "email", "testimonial_text", "star_rating", "source_type",
	"status", "is_featured", "is_visible", "ip_address", "submitted_at", "approved_at",
	"updated_at", "deleted_at",
}

var publicCols = []string{
	"id", "full_name", "testimonial_text", "star_rating", "source_type", "approved_at", "is_featured",
}

func newTestimonialRepo(t *testing.T) (*TestimonialRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewTestimonialRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func approvedRow(id int64) []driverValue {
	now := time.Now()
	return []driverValue{
		id, "Alice", "alice@example.com", "Great service from start to finish, would hire again.",
		5, "Agency Client", "approved", false, true, nil, now, now, now, nil,
	}
}

type driverValue = driver.Value

// ---------------------------------------------------------------------------
// ListPublic / CountPublic
// ---------------------------------------------------------------------------

func TestListPublic_ReturnsRows(t *testing.T) {
	repo, mock := newTestimonialRepo(t)
	now := time.Now()
	rows := sqlmock.NewRows(publicCols).
		AddRow(int64(2), "Bob", "Transformed how our team works day to day, fantastic.", 5, "Skool Community Member", now, true).
		AddRow(int64(1), "Alice", "Great service from start to finish, would hire again.", 4, "Agency Client", now, false)
	mock.ExpectQuery("SELECT.*FROM testimonials.*status = 'approved' AND is_visible = TRUE AND deleted_at IS NULL").
		WithArgs(10, 0).
		WillReturnRows(rows)

	list, err := repo.ListPublic(context.Background(), false, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if !list[0].IsFeatured {
		t.Error("expected featured row first")
	}
}

func TestListPublic_FeaturedOnlyAddsPredicate(t *testing.T) {
	repo, mock := newTestimonialRepo(t)
	mock.ExpectQuery("SELECT.*FROM testimonials.*is_featured = TRUE").
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows(publicCols))

	list, err := repo.ListPublic(context.Background(), true, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("len = %d, want 0", len(list))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCountPublic(t *testing.T) {
	repo, mock := newTestimonialRepo(t)
	mock.ExpectQuery("SELECT COUNT.*FROM testimonials").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	total, err := repo.CountPublic(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 7 {
		t.Errorf("total = %d, want 7", total)
	}
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreate_FillsGeneratedFields(t *testing.T) {
	repo, mock := newTestimonialRepo(t)
	now := time.Now()
	mock.ExpectQuery("INSERT INTO testimonials.*RETURNING").
		WithArgs("Alice", "alice@example.com", "Great service from start to finish, would hire again.", 5, "Agency Client", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "is_featured", "is_visible", "submitted_at", "updated_at"}).
			AddRow(int64(42), "pending", false, true, now, now))

	tm := &models.Testimonial{
		FullName:        "Alice",
		Email:           "alice@example.com",
		TestimonialText: "Great service from start to finish, would hire again.",
		StarRating:      5,
		SourceType:      "Agency Client",
	}
	if err := repo.Create(context.Background(), tm); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tm.ID != 42 {
		t.Errorf("ID = %d, want 42", tm.ID)
	}
	if tm.Status != models.StatusPending {
		t.Errorf("Status = %s, want pending", tm.Status)
	}
}

// ---------------------------------------------------------------------------
// Approve / Reject — conditional transitions
// ---------------------------------------------------------------------------

func TestApprove_PendingRowTransitions(t *testing.T) {
	repo, mock := newTestimonialRepo(t)
	mock.ExpectQuery("UPDATE testimonials.*status = 'approved'.*WHERE id = .* AND status = 'pending' AND deleted_at IS NULL.*RETURNING").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(adminCols).AddRow(approvedRow(1)...))

	updated, err := repo.Approve(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated == nil {
		t.Fatal("expected updated row, got nil")
	}
	if updated.Status != models.StatusApproved {
		t.Errorf("Status = %s, want approved", updated.Status)
	}
}

func TestApprove_AlreadyProcessedMatchesZeroRows(t *testing.T) {
	repo, mock := newTestimonialRepo(t)
	// The row exists but is no longer pending; the predicate matches nothing.
	mock.ExpectQuery("UPDATE testimonials.*RETURNING").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(adminCols))

	updated, err := repo.Approve(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated != nil {
		t.Errorf("expected nil for already-processed row, got %+v", updated)
	}
}

func TestReject_PendingRowTransitions(t *testing.T) {
	repo, mock := newTestimonialRepo(t)
	row := approvedRow(3)
	row[6] = "rejected"
	mock.ExpectQuery("UPDATE testimonials.*status = 'rejected'.*RETURNING").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(adminCols).AddRow(row...))

	updated, err := repo.Reject(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated == nil || updated.Status != models.StatusRejected {
		t.Errorf("expected rejected row, got %+v", updated)
	}
}

// ---------------------------------------------------------------------------
// SetFeatured / SetVisibility
// ---------------------------------------------------------------------------

func TestSetFeatured_OnlyApprovedRows(t *testing.T) {
	repo, mock := newTestimonialRepo(t)
	row := approvedRow(1)
	row[7] = true
	mock.ExpectQuery("UPDATE testimonials.*SET is_featured.*status = 'approved' AND deleted_at IS NULL.*RETURNING").
		WithArgs(int64(1), true).
		WillReturnRows(sqlmock.NewRows(adminCols).AddRow(row...))

	updated, err := repo.SetFeatured(context.Background(), 1, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated == nil || !updated.IsFeatured {
		t.Errorf("expected featured row, got %+v", updated)
	}
}

func TestSetFeatured_PendingRowNotEligible(t *testing.T) {
	repo, mock := newTestimonialRepo(t)
	mock.ExpectQuery("UPDATE testimonials.*SET is_featured.*RETURNING").
		WithArgs(int64(9), true).
		WillReturnRows(sqlmock.NewRows(adminCols))

	updated, err := repo.SetFeatured(context.Background(), 9, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated != nil {
		t.Errorf("expected nil for non-approved row, got %+v", updated)
	}
}

func TestSetVisibility(t *testing.T) {
	repo, mock := newTestimonialRepo(t)
	row := approvedRow(1)
	row[8] = false
	mock.ExpectQuery("UPDATE testimonials.*SET is_visible.*RETURNING").
		WithArgs(int64(1), false).
		WillReturnRows(sqlmock.NewRows(adminCols).AddRow(row...))

	updated, err := repo.SetVisibility(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated == nil || updated.IsVisible {
		t.Errorf("expected hidden row, got %+v", updated)
	}
}

// ---------------------------------------------------------------------------
// SoftDelete
// ---------------------------------------------------------------------------

func TestSoftDelete_StampsOnce(t *testing.T) {
	repo, mock := newTestimonialRepo(t)
	mock.ExpectExec("UPDATE testimonials.*SET deleted_at.*deleted_at IS NULL").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := repo.SoftDelete(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !deleted {
		t.Error("SoftDelete = false, want true")
	}
}

func TestSoftDelete_AlreadyDeleted(t *testing.T) {
	repo, mock := newTestimonialRepo(t)
	mock.ExpectExec("UPDATE testimonials.*SET deleted_at").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.SoftDelete(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted {
		t.Error("SoftDelete = true for already-deleted row, want false")
	}
}

// ---------------------------------------------------------------------------
// ListAdmin / CountByStatus
// ---------------------------------------------------------------------------

func TestListAdmin_StatusFilter(t *testing.T) {
	repo, mock := newTestimonialRepo(t)
	row := approvedRow(1)
	row[6] = "pending"
	mock.ExpectQuery("SELECT.*FROM testimonials.*deleted_at IS NULL AND status =").
		WithArgs("pending", 20, 0).
		WillReturnRows(sqlmock.NewRows(adminCols).AddRow(row...))

	list, err := repo.ListAdmin(context.Background(), "pending", 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1", len(list))
	}
	if list[0].Status != models.StatusPending {
		t.Errorf("Status = %s, want pending", list[0].Status)
	}
}

func TestCountByStatus_ZeroFillsMissing(t *testing.T) {
	repo, mock := newTestimonialRepo(t)
	mock.ExpectQuery("SELECT status, COUNT.*GROUP BY status").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("approved", 4))

	counts, err := repo.CountByStatus(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts[models.StatusApproved] != 4 {
		t.Errorf("approved = %d, want 4", counts[models.StatusApproved])
	}
	if counts[models.StatusPending] != 0 {
		t.Errorf("pending = %d, want 0", counts[models.StatusPending])
	}
	if counts[models.StatusRejected] != 0 {
		t.Errorf("rejected = %d, want 0", counts[models.StatusRejected])
	}
}

// testimonial_repository.go implements TestimonialRepository, covering the public
// listing projection, submission inserts, and the conditional moderation updates.
// Every state transition is a single UPDATE whose WHERE clause encodes the
// required prior state, so concurrent moderation actions settle by row-level
// atomicity: the loser matches zero rows and is reported as not found.
package repositories

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/testimonial-hub/testimonials-backend/internal/db/models"
)

// TestimonialRepository handles testimonial database operations
type TestimonialRepository struct {
	db *sqlx.DB
}

// NewTestimonialRepository creates a new TestimonialRepository
func NewTestimonialRepository(db *sqlx.DB) *TestimonialRepository {
	return &TestimonialRepository{db: db}
}

const publicColumns = `id, full_name, testimonial_text, star_rating, source_type, approved_at, is_featured`

const adminColumns = `id, full_name, email, testimonial_text, star_rating, source_type,
	status, is_featured, is_visible, ip_address, submitted_at, approved_at, updated_at, deleted_at`

// ListPublic returns approved, visible, non-deleted testimonials for the public
// listing and widget endpoints. When featuredOnly is set, only featured rows are
// returned. Featured rows sort first, then newest approval.
func (r *TestimonialRepository) ListPublic(ctx context.Context, featuredOnly bool, limit, offset int) ([]*models.PublicTestimonial, error) {
	query := `
		SELECT ` + publicColumns + `
		FROM testimonials
		WHERE status = 'approved' AND is_visible = TRUE AND deleted_at IS NULL
	`
	if featuredOnly {
		query += ` AND is_featured = TRUE`
	}
	query += `
		ORDER BY is_featured DESC, approved_at DESC
		LIMIT $1 OFFSET $2
	`

	testimonials := make([]*models.PublicTestimonial, 0)
	err := r.db.SelectContext(ctx, &testimonials, query, limit, offset)
	if err != nil {
		return nil, err
	}

	return testimonials, nil
}

// CountPublic returns the number of rows visible to the public listing with the
// same filters as ListPublic.
func (r *TestimonialRepository) CountPublic(ctx context.Context, featuredOnly bool) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM testimonials
		WHERE status = 'approved' AND is_visible = TRUE AND deleted_at IS NULL
	`
	if featuredOnly {
		query += ` AND is_featured = TRUE`
	}

	var total int
	err := r.db.GetContext(ctx, &total, query)
	return total, err
}

// ListAdmin returns non-deleted testimonials for the moderation panel, newest
// submission first, optionally filtered by status.
func (r *TestimonialRepository) ListAdmin(ctx context.Context, status string, limit, offset int) ([]*models.Testimonial, error) {
	testimonials := make([]*models.Testimonial, 0)

	if status != "" {
		query := `
			SELECT ` + adminColumns + `
			FROM testimonials
			WHERE deleted_at IS NULL AND status = $1
			ORDER BY submitted_at DESC
			LIMIT $2 OFFSET $3
		`
		if err := r.db.SelectContext(ctx, &testimonials, query, status, limit, offset); err != nil {
			return nil, err
		}
		return testimonials, nil
	}

	query := `
		SELECT ` + adminColumns + `
		FROM testimonials
		WHERE deleted_at IS NULL
		ORDER BY submitted_at DESC
		LIMIT $1 OFFSET $2
	`
	if err := r.db.SelectContext(ctx, &testimonials, query, limit, offset); err != nil {
		return nil, err
	}
	return testimonials, nil
}

// CountByStatus returns non-deleted row counts keyed by status for the
// moderation panel header.
func (r *TestimonialRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM testimonials
		WHERE deleted_at IS NULL
		GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{
		models.StatusPending:  0,
		models.StatusApproved: 0,
		models.StatusRejected: 0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}

	return counts, rows.Err()
}

// Create inserts a new pending testimonial from a public submission and fills
// in the generated id and timestamps.
func (r *TestimonialRepository) Create(ctx context.Context, t *models.Testimonial) error {
	query := `
		INSERT INTO testimonials (full_name, email, testimonial_text, star_rating, source_type, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, status, is_featured, is_visible, submitted_at, updated_at
	`

	return r.db.QueryRowxContext(ctx, query,
		t.FullName,
		t.Email,
		t.TestimonialText,
		t.StarRating,
		t.SourceType,
		t.IPAddress,
	).Scan(
		&t.ID,
		&t.Status,
		&t.IsFeatured,
		&t.IsVisible,
		&t.SubmittedAt,
		&t.UpdatedAt,
	)
}

// Approve transitions a pending testimonial to approved, stamping approved_at.
// Returns nil (not an error) when the row is absent, deleted, or not pending;
// the caller reports that as not found or already processed.
func (r *TestimonialRepository) Approve(ctx context.Context, id int64) (*models.Testimonial, error) {
	query := `
		UPDATE testimonials
		SET status = 'approved', approved_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND deleted_at IS NULL
		RETURNING ` + adminColumns + `
	`
	return r.conditionalUpdate(ctx, query, id)
}

// Reject transitions a pending testimonial to rejected. Same zero-row
// conflation as Approve.
func (r *TestimonialRepository) Reject(ctx context.Context, id int64) (*models.Testimonial, error) {
	query := `
		UPDATE testimonials
		SET status = 'rejected', updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND deleted_at IS NULL
		RETURNING ` + adminColumns + `
	`
	return r.conditionalUpdate(ctx, query, id)
}

// SetFeatured toggles the featured flag. Only approved, non-deleted rows are
// eligible.
func (r *TestimonialRepository) SetFeatured(ctx context.Context, id int64, featured bool) (*models.Testimonial, error) {
	query := `
		UPDATE testimonials
		SET is_featured = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'approved' AND deleted_at IS NULL
		RETURNING ` + adminColumns + `
	`
	return r.conditionalUpdate(ctx, query, id, featured)
}

// SetVisibility toggles the visibility flag. Only approved, non-deleted rows
// are eligible.
func (r *TestimonialRepository) SetVisibility(ctx context.Context, id int64, visible bool) (*models.Testimonial, error) {
	query := `
		UPDATE testimonials
		SET is_visible = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'approved' AND deleted_at IS NULL
		RETURNING ` + adminColumns + `
	`
	return r.conditionalUpdate(ctx, query, id, visible)
}

// SoftDelete stamps deleted_at, excluding the row from all subsequent reads.
// Returns false when the row is absent or already deleted.
func (r *TestimonialRepository) SoftDelete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE testimonials
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// conditionalUpdate runs an UPDATE ... RETURNING statement whose predicate
// encodes the required prior state. A zero-row match comes back as (nil, nil).
func (r *TestimonialRepository) conditionalUpdate(ctx context.Context, query string, args ...interface{}) (*models.Testimonial, error) {
	t := &models.Testimonial{}
	err := r.db.GetContext(ctx, t, query, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// api_key_repository.go implements APIKeyRepository, providing database queries
// for widget API key creation, prefix-indexed lookup, origin-only resolution
// candidates, and usage accounting.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/testimonial-hub/testimonials-backend/internal/db/models"
)

// APIKeyRepository handles API key database operations
type APIKeyRepository struct {
	db *sql.DB
}

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Create creates a new API key
func (r *APIKeyRepository) Create(ctx context.Context, apiKey *models.APIKey) error {
	apiKey.ID = uuid.New().String()
	apiKey.CreatedAt = time.Now()

	domainsJSON, err := marshalDomains(apiKey.AllowedDomains)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO api_keys (id, name, description, key_hash, key_prefix, allowed_domains,
		                      rate_limit_per_hour, is_active, usage_count, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10)
	`

	_, err = r.db.ExecContext(ctx, query,
		apiKey.ID,
		apiKey.Name,
		apiKey.Description,
		apiKey.KeyHash,
		apiKey.KeyPrefix,
		domainsJSON,
		apiKey.RateLimitPerHour,
		apiKey.IsActive,
		apiKey.CreatedBy,
		apiKey.CreatedAt,
	)

	return err
}

// GetByID retrieves an API key by ID
func (r *APIKeyRepository) GetByID(ctx context.Context, keyID string) (*models.APIKey, error) {
	query := `
		SELECT id, name, description, key_hash, key_prefix, allowed_domains,
		       rate_limit_per_hour, is_active, usage_count, created_by, last_used_at, created_at
		FROM api_keys
		WHERE id = $1
	`

	apiKey, err := scanAPIKey(r.db.QueryRowContext(ctx, query, keyID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return apiKey, nil
}

// List retrieves all API keys with the creator's name joined in, newest first
func (r *APIKeyRepository) List(ctx context.Context) ([]*models.APIKey, error) {
	query := `
		SELECT ak.id, ak.name, ak.description, ak.key_hash, ak.key_prefix, ak.allowed_domains,
		       ak.rate_limit_per_hour, ak.is_active, ak.usage_count, ak.created_by, ak.last_used_at,
		       ak.created_at, u.name AS created_by_name
		FROM api_keys ak
		LEFT JOIN users u ON ak.created_by = u.id
		ORDER BY ak.created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	apiKeys := make([]*models.APIKey, 0)
	for rows.Next() {
		apiKey := &models.APIKey{}
		var domainsJSON []byte

		err := rows.Scan(
			&apiKey.ID,
			&apiKey.Name,
			&apiKey.Description,
			&apiKey.KeyHash,
			&apiKey.KeyPrefix,
			&domainsJSON,
			&apiKey.RateLimitPerHour,
			&apiKey.IsActive,
			&apiKey.UsageCount,
			&apiKey.CreatedBy,
			&apiKey.LastUsedAt,
			&apiKey.CreatedAt,
			&apiKey.CreatedByName,
		)
		if err != nil {
			return nil, err
		}
		if err := unmarshalDomains(domainsJSON, apiKey); err != nil {
			return nil, err
		}
		apiKeys = append(apiKeys, apiKey)
	}

	return apiKeys, rows.Err()
}

// GetByPrefix retrieves API keys matching a display prefix (for key-secret
// authentication). The prefix is indexed, so at most a handful of candidate
// rows come back for the bcrypt comparison. Newest first so a freshly rotated
// key is checked before its retired sibling.
func (r *APIKeyRepository) GetByPrefix(ctx context.Context, keyPrefix string) ([]*models.APIKey, error) {
	query := `
		SELECT id, name, description, key_hash, key_prefix, allowed_domains,
		       rate_limit_per_hour, is_active, usage_count, created_by, last_used_at, created_at
		FROM api_keys
		WHERE key_prefix = $1
		ORDER BY created_at DESC
	`
	return r.queryKeys(ctx, query, keyPrefix)
}

// ListActiveRestricted retrieves active keys that carry a domain allow-list,
// for origin-only widget resolution. Ordered newest first: when two keys claim
// overlapping domains, the most recently created key wins.
func (r *APIKeyRepository) ListActiveRestricted(ctx context.Context) ([]*models.APIKey, error) {
	query := `
		SELECT id, name, description, key_hash, key_prefix, allowed_domains,
		       rate_limit_per_hour, is_active, usage_count, created_by, last_used_at, created_at
		FROM api_keys
		WHERE is_active = TRUE AND allowed_domains IS NOT NULL
		ORDER BY created_at DESC
	`
	return r.queryKeys(ctx, query)
}

// Update updates an API key's editable fields. Returns the updated row, or nil
// if no key matched.
func (r *APIKeyRepository) Update(ctx context.Context, apiKey *models.APIKey) (*models.APIKey, error) {
	domainsJSON, err := marshalDomains(apiKey.AllowedDomains)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE api_keys
		SET name = $2, description = $3, allowed_domains = $4, rate_limit_per_hour = $5, is_active = $6
		WHERE id = $1
		RETURNING id, name, description, key_hash, key_prefix, allowed_domains,
		          rate_limit_per_hour, is_active, usage_count, created_by, last_used_at, created_at
	`

	updated, err := scanAPIKey(r.db.QueryRowContext(ctx, query,
		apiKey.ID,
		apiKey.Name,
		apiKey.Description,
		domainsJSON,
		apiKey.RateLimitPerHour,
		apiKey.IsActive,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes an API key. Returns true if a row was deleted.
func (r *APIKeyRepository) Delete(ctx context.Context, keyID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, keyID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// RecordUsage increments usage_count and stamps last_used_at after a
// successful authorization. Never called on failed resolutions.
func (r *APIKeyRepository) RecordUsage(ctx context.Context, keyID string) error {
	query := `
		UPDATE api_keys
		SET usage_count = usage_count + 1, last_used_at = $2
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, keyID, time.Now())
	return err
}

// queryKeys runs a multi-row API key query without joined fields.
func (r *APIKeyRepository) queryKeys(ctx context.Context, query string, args ...interface{}) ([]*models.APIKey, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	apiKeys := make([]*models.APIKey, 0)
	for rows.Next() {
		apiKey := &models.APIKey{}
		var domainsJSON []byte

		err := rows.Scan(
			&apiKey.ID,
			&apiKey.Name,
			&apiKey.Description,
			&apiKey.KeyHash,
			&apiKey.KeyPrefix,
			&domainsJSON,
			&apiKey.RateLimitPerHour,
			&apiKey.IsActive,
			&apiKey.UsageCount,
			&apiKey.CreatedBy,
			&apiKey.LastUsedAt,
			&apiKey.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if err := unmarshalDomains(domainsJSON, apiKey); err != nil {
			return nil, err
		}
		apiKeys = append(apiKeys, apiKey)
	}

	return apiKeys, rows.Err()
}

// scanAPIKey scans a single-row result without joined fields.
func scanAPIKey(row *sql.Row) (*models.APIKey, error) {
	apiKey := &models.APIKey{}
	var domainsJSON []byte

	err := row.Scan(
		&apiKey.ID,
		&apiKey.Name,
		&apiKey.Description,
		&apiKey.KeyHash,
		&apiKey.KeyPrefix,
		&domainsJSON,
		&apiKey.RateLimitPerHour,
		&apiKey.IsActive,
		&apiKey.UsageCount,
		&apiKey.CreatedBy,
		&apiKey.LastUsedAt,
		&apiKey.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalDomains(domainsJSON, apiKey); err != nil {
		return nil, err
	}
	return apiKey, nil
}

// marshalDomains encodes the allow-list as JSONB, mapping an empty list to SQL
// NULL so an unrestricted key is stored the same way whether the caller passed
// nil or an empty slice.
func marshalDomains(domains []string) (interface{}, error) {
	if len(domains) == 0 {
		return nil, nil
	}
	return json.Marshal(domains)
}

// unmarshalDomains decodes the JSONB allow-list; NULL stays a nil slice.
func unmarshalDomains(data []byte, apiKey *models.APIKey) error {
	if len(data) == 0 {
		apiKey.AllowedDomains = nil
		return nil
	}
	return json.Unmarshal(data, &apiKey.AllowedDomains)
}

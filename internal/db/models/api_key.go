package models

import "time"

// APIKey represents a domain-scoped widget credential
type APIKey struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`                  // Friendly name (e.g., "Marketing Site Widget")
	Description      *string    `json:"description,omitempty"` // Optional human-friendly description
	KeyHash          string     `json:"-"`                     // Bcrypt hash of the full key
	KeyPrefix        string     `json:"key_prefix"`            // First 10 chars for display (e.g., "twk_abc123")
	AllowedDomains   []string   `json:"allowed_domains"`       // JSONB array of domain suffixes; nil means unrestricted
	RateLimitPerHour int        `json:"rate_limit_per_hour"`   // Informational quota shown in the admin panel
	IsActive         bool       `json:"is_active"`
	UsageCount       int64      `json:"usage_count"`
	CreatedBy        *string    `json:"created_by,omitempty"` // Admin user who created this key
	LastUsedAt       *time.Time `json:"last_used_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	// Joined fields (not stored in api_keys table)
	CreatedByName *string `json:"created_by_name,omitempty"` // Creator's name (joined from users table)
}

// HasDomainRestrictions reports whether the key carries a non-empty domain
// allow-list. Only restricted keys participate in origin-only resolution.
func (k *APIKey) HasDomainRestrictions() bool {
	return len(k.AllowedDomains) > 0
}

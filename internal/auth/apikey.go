// Package auth provides authentication primitives for the testimonials backend.
// Three mechanisms are supported: JWTs (issued on admin login, stateless
// verification), API keys (long-lived widget credentials with bcrypt hashing and
// per-key domain allow-lists), and per-user CSRF tokens for state-changing
// admin requests. See internal/middleware for the request-time logic that uses
// these primitives.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKeyLength is the length of the random part of the API key in bytes
	APIKeyLength = 32

	// DisplayPrefixLength is the number of characters to show in displays
	DisplayPrefixLength = 10

	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12
)

// GenerateAPIKey creates a new random API key with the given prefix
// Returns: full key (to show once), bcrypt hash (to store), display prefix
func GenerateAPIKey(prefix string) (key string, hash string, displayPrefix string, err error) {
	randomBytes := make([]byte, APIKeyLength)
	_, err = rand.Read(randomBytes)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	// Encode to base64 (URL-safe)
	randomPart := base64.RawURLEncoding.EncodeToString(randomBytes)

	// Construct full key: prefix_randomPart. The configured prefix already ends
	// with an underscore ("twk_") so no separator is inserted here.
	fullKey := prefix + randomPart

	// Hash the full key with bcrypt
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), BcryptCost)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to hash API key: %w", err)
	}

	// Generate display prefix (first N characters of full key)
	displayPrefixStr := fullKey
	if len(fullKey) > DisplayPrefixLength {
		displayPrefixStr = fullKey[:DisplayPrefixLength]
	}

	return fullKey, string(hashBytes), displayPrefixStr, nil
}

// ValidateAPIKey checks if a provided key matches the stored hash
func ValidateAPIKey(providedKey, storedHash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(providedKey))
	return err == nil
}

// ExtractAPIKeyFromHeader extracts the API key from an X-API-Key or
// Authorization header value. Both "twk_abc..." and "Bearer twk_abc..." forms
// are accepted so embed snippets can use either convention.
func ExtractAPIKeyFromHeader(header string) (string, error) {
	if header == "" {
		return "", errors.New("API key header is empty")
	}

	key := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if key == "" {
		return "", errors.New("API key is empty")
	}

	return key, nil
}

// NormalizeOrigin reduces an Origin or Referer header value to a bare lowercase
// hostname for comparison against a key's domain allow-list. Scheme, port, path,
// and a single leading "www." are discarded. Returns "" if the value cannot be
// parsed as a URL with a host.
func NormalizeOrigin(origin string) string {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return ""
	}
	if !strings.Contains(origin, "://") {
		origin = "https://" + origin
	}
	u, err := url.Parse(origin)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// DomainMatches reports whether the normalized request hostname is covered by a
// single allow-list entry. An entry matches its exact hostname and any subdomain
// of it: "example.com" covers "example.com" and "app.example.com" but never
// "evilexample.com" (the suffix match requires a dot boundary).
func DomainMatches(host, allowed string) bool {
	allowed = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(allowed)), "www.")
	if host == "" || allowed == "" {
		return false
	}
	if host == allowed {
		return true
	}
	return strings.HasSuffix(host, "."+allowed)
}

// IsLoopbackHost reports whether the normalized hostname is a local development
// host. Loopback origins are always allowed through widget authorization so
// embed snippets can be tested before a key's domains are configured.
func IsLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// OriginAllowed reports whether the normalized request hostname is covered by
// any entry in the key's domain allow-list. An empty allow-list matches nothing;
// loopback hosts are always allowed.
func OriginAllowed(host string, allowedDomains []string) bool {
	if IsLoopbackHost(host) {
		return true
	}
	for _, d := range allowedDomains {
		if DomainMatches(host, d) {
			return true
		}
	}
	return false
}

package auth

import (
	"sync"

	"github.com/google/uuid"

	"github.com/testimonial-hub/testimonials-backend/internal/telemetry"
)

// CSRFTokenCap bounds the in-memory token registry. When full, the entry for
// the oldest-inserted user is evicted to make room, so memory stays constant
// regardless of how many admins log in over the process lifetime.
const CSRFTokenCap = 100

// CSRFStore maps each admin user to their current CSRF token. A user holds one
// token at a time; re-issuing replaces it. Tokens stay valid until replaced or
// evicted, so a page can make many mutating requests off a single verify call.
type CSRFStore interface {
	// Issue creates a fresh token for the user, replacing any existing one.
	Issue(userID string) string
	// Validate reports whether token is the user's current token.
	Validate(userID, token string) bool
	// Len reports the number of users with a registered token.
	Len() int
}

// MemoryCSRFStore is a bounded in-memory CSRFStore. Eviction is FIFO on
// insertion order, not LRU, so a long-lived session can lose its token under
// heavy login churn and must re-verify. Accepted tradeoff for a secondary
// defense layer.
type MemoryCSRFStore struct {
	mu     sync.Mutex
	tokens map[string]string // user id -> current token
	order  []string          // user ids, oldest insertion first
	cap    int
}

// NewMemoryCSRFStore constructs a store with the default cap.
func NewMemoryCSRFStore() *MemoryCSRFStore {
	return &MemoryCSRFStore{
		tokens: make(map[string]string, CSRFTokenCap),
		order:  make([]string, 0, CSRFTokenCap),
		cap:    CSRFTokenCap,
	}
}

func (s *MemoryCSRFStore) Issue(userID string) string {
	token := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[userID]; exists {
		// Replacing keeps the user's original insertion position.
		s.tokens[userID] = token
		return token
	}

	if len(s.order) >= s.cap {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.tokens, oldest)
		telemetry.CSRFEvictionsTotal.Inc()
	}

	s.tokens[userID] = token
	s.order = append(s.order, userID)
	return token
}

func (s *MemoryCSRFStore) Validate(userID, token string) bool {
	if userID == "" || token == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tokens[userID]
	return ok && current == token
}

func (s *MemoryCSRFStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

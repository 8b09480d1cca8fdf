package admin

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/testimonial-hub/testimonials-backend/internal/config"
	"github.com/testimonial-hub/testimonials-backend/internal/db/repositories"
	"github.com/testimonial-hub/testimonials-backend/internal/middleware"
)

// apiKeySQLCols are the columns returned by single-key SELECT queries.
var apiKeySQLCols = []string{
	"id", "name", "description", "key_hash", "key_prefix", "allowed_domains",
	"rate_limit_per_hour", "is_active", "usage_count", "created_by", "last_used_at", "created_at",
}

// apiKeyListCols adds the joined creator name used by List.
var apiKeyListCols = append(append([]string{}, apiKeySQLCols...), "created_by_name")

func newAPIKeyRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewAPIKeyHandlers(&config.Config{}, repositories.NewAPIKeyRepository(db))

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.ContextUserID, "user-1") })
	r.GET("/api-keys", h.ListAPIKeysHandler())
	r.POST("/api-keys", h.CreateAPIKeyHandler())
	r.PATCH("/api-keys/:id", h.UpdateAPIKeyHandler())
	r.DELETE("/api-keys/:id", h.DeleteAPIKeyHandler())
	return mock, r
}

func TestListAPIKeys_NeverIncludesHash(t *testing.T) {
	mock, r := newAPIKeyRouter(t)
	mock.ExpectQuery("SELECT.*FROM api_keys.*LEFT JOIN users").
		WillReturnRows(sqlmock.NewRows(apiKeyListCols).AddRow(
			"key-1", "Site Widget", nil, "$2a$12$hash", "twk_abc123", []byte(`["example.com"]`),
			1000, true, int64(42), "user-1", nil, time.Now(), "Admin",
		))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api-keys", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "$2a$12$") {
		t.Error("key hash leaked in listing response")
	}
	keys, _ := getJSON(w)["api_keys"].([]interface{})
	if len(keys) != 1 {
		t.Fatalf("api_keys len = %d, want 1", len(keys))
	}
	key := keys[0].(map[string]interface{})
	if key["key_prefix"] != "twk_abc123" {
		t.Errorf("key_prefix = %v, want twk_abc123", key["key_prefix"])
	}
}

func TestCreateAPIKey_ReturnsSecretOnce(t *testing.T) {
	mock, r := newAPIKeyRouter(t)
	mock.ExpectExec("INSERT INTO api_keys").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api-keys",
		jsonBody(gin.H{"name": "Site Widget"}))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body = %s", w.Code, w.Body.String())
	}
	body := getJSON(w)
	secret, _ := body["key"].(string)
	if !strings.HasPrefix(secret, "twk_") {
		t.Errorf("key = %q, want twk_ prefix", secret)
	}
	key, _ := body["api_key"].(map[string]interface{})
	if key["key_prefix"] != secret[:10] {
		t.Errorf("key_prefix = %v, want first 10 chars of generated secret", key["key_prefix"])
	}
	if _, present := body["warning"]; present {
		t.Error("unexpected overlap warning for key without domains")
	}
}

func TestCreateAPIKey_WarnsOnDomainOverlap(t *testing.T) {
	mock, r := newAPIKeyRouter(t)
	// Overlap check runs before the insert and finds an active key already
	// serving example.com.
	mock.ExpectQuery("SELECT.*FROM api_keys.*allowed_domains IS NOT NULL").
		WillReturnRows(sqlmock.NewRows(apiKeySQLCols).AddRow(
			"key-1", "Older Widget", nil, "$2a$12$hash", "twk_old123", []byte(`["example.com"]`),
			1000, true, int64(0), nil, nil, time.Now(),
		))
	mock.ExpectExec("INSERT INTO api_keys").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api-keys",
		jsonBody(gin.H{"name": "Newer Widget", "allowed_domains": []string{"example.com"}}))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body = %s", w.Code, w.Body.String())
	}
	warning, _ := getJSON(w)["warning"].(string)
	if !strings.Contains(warning, "Older Widget") {
		t.Errorf("warning = %q, want mention of the overlapped key", warning)
	}
}

func TestCreateAPIKey_MissingName(t *testing.T) {
	_, r := newAPIKeyRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api-keys", jsonBody(gin.H{}))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUpdateAPIKey_DeactivatesKey(t *testing.T) {
	mock, r := newAPIKeyRouter(t)
	mock.ExpectQuery("SELECT.*FROM api_keys.*WHERE id").
		WillReturnRows(sqlmock.NewRows(apiKeySQLCols).AddRow(
			"key-1", "Site Widget", nil, "$2a$12$hash", "twk_abc123", nil,
			1000, true, int64(0), nil, nil, time.Now(),
		))
	mock.ExpectQuery("UPDATE api_keys.*SET name.*RETURNING").
		WillReturnRows(sqlmock.NewRows(apiKeySQLCols).AddRow(
			"key-1", "Site Widget", nil, "$2a$12$hash", "twk_abc123", nil,
			1000, false, int64(0), nil, nil, time.Now(),
		))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPatch, "/api-keys/key-1",
		jsonBody(gin.H{"is_active": false}))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", w.Code, w.Body.String())
	}
	key, _ := getJSON(w)["api_key"].(map[string]interface{})
	if key["is_active"] != false {
		t.Errorf("is_active = %v, want false", key["is_active"])
	}
}

func TestUpdateAPIKey_NotFound(t *testing.T) {
	mock, r := newAPIKeyRouter(t)
	mock.ExpectQuery("SELECT.*FROM api_keys.*WHERE id").
		WillReturnRows(sqlmock.NewRows(apiKeySQLCols))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPatch, "/api-keys/ghost",
		jsonBody(gin.H{"is_active": false}))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestDeleteAPIKey_Success(t *testing.T) {
	mock, r := newAPIKeyRouter(t)
	mock.ExpectExec("DELETE FROM api_keys WHERE id").
		WithArgs("key-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/api-keys/key-1", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200, body = %s", w.Code, w.Body.String())
	}
}

func TestDeleteAPIKey_NotFound(t *testing.T) {
	mock, r := newAPIKeyRouter(t)
	mock.ExpectExec("DELETE FROM api_keys WHERE id").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/api-keys/ghost", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loophr/internal/domain/auth"
	"loophr/internal/platform/metrics"
)

const testSecret = "test-secret"

func issueToken(t *testing.T, roles []string) string {
	t.Helper()
	token, err := auth.GenerateToken(testSecret, auth.Claims{
		UserID: "11111111-1111-1111-1111-111111111111",
		Name:   "Test User",
		Roles:  roles,
	}, time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func TestAuthAttachesUser(t *testing.T) {
	var got auth.UserContext
	var ok bool
	handler := Auth(testSecret, metrics.New())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = GetUser(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, []string{"admin"}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !ok {
		t.Fatal("user not attached to context")
	}
	if got.Name != "Test User" || len(got.Roles) != 1 || got.Roles[0] != "admin" {
		t.Fatalf("unexpected user context: %+v", got)
	}
}

func TestAuthIgnoresGarbageToken(t *testing.T) {
	registry := metrics.New()
	handler := Auth(testSecret, registry)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUser(r.Context()); ok {
			t.Fatal("garbage token produced a user context")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got := registry.Snapshot().AuthFailures; got != 1 {
		t.Fatalf("auth failures = %d, want 1", got)
	}
}

func TestRequireAuthRejectsAnonymous(t *testing.T) {
	handler := RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler reached without authentication")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireCapabilityForbidsEmployee(t *testing.T) {
	protected := Auth(testSecret, metrics.New())(
		RequireCapability(func(c auth.Capabilities) bool { return c.ManageUsers })(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})))

	req := httptest.NewRequest(http.MethodPost, "/users", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, []string{"employee"}))
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("employee status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/users", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, []string{"admin"}))
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("admin status = %d, want 204", rec.Code)
	}
}

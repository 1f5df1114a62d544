package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tanzheen/church-book-exchange/internal/middleware"
	"github.com/tanzheen/church-book-exchange/internal/utils"
)

func TestJWTAuthMiddleware(t *testing.T) {
	utils.InitJwtSecret("test-secret")

	var gotCallerID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCallerID = middleware.CallerID(r)
		w.WriteHeader(http.StatusOK)
	})
	protected := middleware.JWTAuthMiddleware(next)

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/books/user/mybooks", nil)
		w := httptest.NewRecorder()

		protected.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected status Unauthorized, got %d", w.Code)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/books/user/mybooks", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		w := httptest.NewRecorder()

		protected.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected status Unauthorized, got %d", w.Code)
		}
	})

	t.Run("valid token reaches handler with caller id", func(t *testing.T) {
		token, err := utils.GenerateJWT("user-123")
		if err != nil {
			t.Fatalf("GenerateJWT() error = %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/books/user/mybooks", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		protected.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status OK, got %d", w.Code)
		}
		if gotCallerID != "user-123" {
			t.Errorf("expected caller id user-123, got %q", gotCallerID)
		}
	})
}

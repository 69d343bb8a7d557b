// internal/api/middleware/auth_test.go
package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/newthinker/arena/internal/api/response"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

func TestAPIKeyAuth(t *testing.T) {
	tests := []struct {
		name       string
		apiKey     string
		path       string
		headers    map[string]string
		wantStatus int
	}{
		{
			name:       "valid header key",
			apiKey:     "secret-key",
			path:       "/api/v1/competitions",
			headers:    map[string]string{"X-API-Key": "secret-key"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid bearer token",
			apiKey:     "secret-key",
			path:       "/api/v1/competitions",
			headers:    map[string]string{"Authorization": "Bearer secret-key"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing key",
			apiKey:     "secret-key",
			path:       "/api/v1/competitions",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong key",
			apiKey:     "secret-key",
			path:       "/api/v1/competitions",
			headers:    map[string]string{"X-API-Key": "wrong-key"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "basic auth is not a bearer token",
			apiKey:     "secret-key",
			path:       "/api/v1/competitions",
			headers:    map[string]string{"Authorization": "Basic secret-key"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "public path",
			apiKey:     "secret-key",
			path:       "/api/health",
			wantStatus: http.StatusOK,
		},
		{
			name:       "auth disabled",
			apiKey:     "",
			path:       "/api/v1/competitions",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := APIKeyAuth(tt.apiKey, "/api/health")(okHandler())

			req := httptest.NewRequest("GET", tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()

			wrapped.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

func TestAPIKeyAuth_ErrorBody(t *testing.T) {
	wrapped := APIKeyAuth("secret-key")(okHandler())

	req := httptest.NewRequest("GET", "/api/v1/competitions", nil)
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	var resp response.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Error.Code != "UNAUTHORIZED" {
		t.Errorf("expected UNAUTHORIZED, got %s", resp.Error.Code)
	}
}

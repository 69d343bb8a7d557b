package metrics

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// serveLogged runs one request through LoggingMiddleware in front of the
// competition routes and returns the decoded log line.
func serveLogged(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	logger := zap.New(zapcore.NewCore(encoder, zapcore.AddSync(&buf), zapcore.InfoLevel))

	rec := httptest.NewRecorder()
	LoggingMiddleware(logger)(competitionMux()).ServeHTTP(rec, req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "log: %s", buf.String())
	return rec, entry
}

func TestLoggingMiddleware_LogsRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/competitions/c42/leaderboard", nil)
	req.RemoteAddr = "192.168.1.1:12345"

	_, entry := serveLogged(t, req)

	assert.Equal(t, "http request", entry["msg"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/api/v1/competitions/c42/leaderboard", entry["path"])
	assert.Equal(t, "/api/v1/competitions/{id}/leaderboard", entry["route"])
	assert.Equal(t, 200.0, entry["status"])
	assert.Equal(t, "192.168.1.1:12345", entry["client_ip"])
	assert.Contains(t, entry, "duration_ms")
}

func TestLoggingMiddleware_Status(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		want   float64
	}{
		{"created", "POST", "/api/v1/competitions", 201},
		{"conflict", "POST", "/api/v1/competitions/c1/start", 409},
		{"not found", "GET", "/api/v1/nothing", 404},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, entry := serveLogged(t, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, int(tt.want), rec.Code)
			assert.Equal(t, tt.want, entry["status"])
		})
	}
}

func TestLoggingMiddleware_RequestID(t *testing.T) {
	t.Run("generated", func(t *testing.T) {
		rec, entry := serveLogged(t, httptest.NewRequest("POST", "/api/v1/competitions", nil))
		id := rec.Header().Get(RequestIDHeader)
		require.NotEmpty(t, id)
		assert.Equal(t, id, entry["request_id"])
	})

	t.Run("reused", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/competitions", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rec, entry := serveLogged(t, req)
		assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
		assert.Equal(t, "abc-123", entry["request_id"])
	})
}

func TestLoggingMiddleware_ForwardedClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/competitions/c1/leaderboard", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.50, 10.0.0.2")
	req.RemoteAddr = "10.0.0.1:54321"

	_, entry := serveLogged(t, req)
	assert.Equal(t, "203.0.113.50", entry["client_ip"])
}

package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// testLogEntry represents a parsed JSON log entry for testing.
type testLogEntry struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Size      int    `json:"size"`
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	ErrorCode string `json:"error_code"`
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func parseLogEntry(t *testing.T, buf *bytes.Buffer) testLogEntry {
	t.Helper()
	var entry testLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v, log: %s", err, buf.String())
	}
	return entry
}

func TestLogging_BasicFields(t *testing.T) {
	buf := &bytes.Buffer{}

	handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/plaques?status=visited", nil))

	entry := parseLogEntry(t, buf)
	if entry.Method != "GET" || entry.Path != "/plaques" {
		t.Errorf("method/path = %s %s", entry.Method, entry.Path)
	}
	if entry.Status != 200 {
		t.Errorf("expected default status 200, got %d", entry.Status)
	}
	if entry.LatencyMS < 0 {
		t.Errorf("expected latency_ms >= 0, got %d", entry.LatencyMS)
	}
	if entry.Size != 5 {
		t.Errorf("expected size 5, got %d", entry.Size)
	}
	if entry.Level != "INFO" || entry.Msg != "request completed" {
		t.Errorf("level/msg = %s %q", entry.Level, entry.Msg)
	}
}

func TestLogging_Levels(t *testing.T) {
	tests := []struct {
		status    int
		code      string
		wantLevel string
		wantCode  string
	}{
		{status: http.StatusCreated, code: "ignored", wantLevel: "INFO"},
		{status: http.StatusConflict, code: "already_visited", wantLevel: "WARN", wantCode: "already_visited"},
		{status: http.StatusBadGateway, code: "upload_failed", wantLevel: "ERROR", wantCode: "upload_failed"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			buf := &bytes.Buffer{}
			handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				UpdateResponseContext(w, SetErrorCode(r.Context(), tt.code))
				w.WriteHeader(tt.status)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/plaques/1/visit", nil))

			entry := parseLogEntry(t, buf)
			if entry.Level != tt.wantLevel {
				t.Errorf("level = %s, want %s", entry.Level, tt.wantLevel)
			}
			if entry.ErrorCode != tt.wantCode {
				t.Errorf("error_code = %q, want %q", entry.ErrorCode, tt.wantCode)
			}
			if tt.wantCode == "" && strings.Contains(buf.String(), "error_code") {
				t.Error("error_code should not be logged for 2xx responses")
			}
		})
	}
}

func TestLogging_AllFieldsThroughWrappers(t *testing.T) {
	buf := &bytes.Buffer{}

	// HTTPMetrics sits between Logging and the handler in the server chain.
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := SetUserID(r.Context(), "walker")
		ctx = SetErrorCode(ctx, "not_visited")
		UpdateResponseContext(w, ctx)
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"x"}`))
	})
	handler := RequestID(Logging(newTestLogger(buf))(HTTPMetrics(NewMetrics())(inner)))

	req := httptest.NewRequest(http.MethodDelete, "/plaques/7/visit", nil)
	req.Header.Set(RequestIDHeader, "req-id-789")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := parseLogEntry(t, buf)
	if entry.RequestID != "req-id-789" {
		t.Errorf("request_id = %q", entry.RequestID)
	}
	if entry.UserID != "walker" {
		t.Errorf("user_id = %q, want walker", entry.UserID)
	}
	if entry.ErrorCode != "not_visited" {
		t.Errorf("error_code = %q, want not_visited", entry.ErrorCode)
	}
	if entry.Size != 13 {
		t.Errorf("size = %d, want 13", entry.Size)
	}
}

func TestLogging_UserIDFromRequestContext(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req = req.WithContext(SetUserID(req.Context(), "outer-user"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if entry := parseLogEntry(t, buf); entry.UserID != "outer-user" {
		t.Errorf("user_id = %q, want outer-user", entry.UserID)
	}
}

func TestUpdateResponseContext_WithoutLogging(t *testing.T) {
	// No-op on writers the logging middleware does not own.
	UpdateResponseContext(httptest.NewRecorder(), SetErrorCode(context.Background(), "x"))
}

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"production", "development", ""} {
		if NewLogger(env) == nil {
			t.Errorf("NewLogger(%q) returned nil", env)
		}
	}
	if NewLogger("production").Enabled(context.Background(), slog.LevelDebug) {
		t.Error("production logger should not log at debug level")
	}
	if !NewLogger("development").Enabled(context.Background(), slog.LevelDebug) {
		t.Error("development logger should log at debug level")
	}
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	if GetUserID(ctx) != "" || GetErrorCode(ctx) != "" {
		t.Error("expected empty values on bare context")
	}

	ctx = SetErrorCode(SetUserID(ctx, "walker"), "not_found")
	if GetUserID(ctx) != "walker" || GetErrorCode(ctx) != "not_found" {
		t.Errorf("got user=%q code=%q", GetUserID(ctx), GetErrorCode(ctx))
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)
	n, err := rw.Write([]byte("test response body"))

	if err != nil || n != 18 || rw.size != 18 {
		t.Errorf("Write() = %d, %v; size %d", n, err, rw.size)
	}
	if rw.statusCode != http.StatusCreated || rec.Code != http.StatusCreated {
		t.Errorf("status = %d/%d, want 201", rw.statusCode, rec.Code)
	}
	if _, _, err := rw.Hijack(); err == nil {
		t.Error("expected Hijack() to fail on a recorder")
	}
}

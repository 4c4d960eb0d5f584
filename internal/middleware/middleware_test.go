package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hemantsingh443/allchat-sub000/internal/domain"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
	"github.com/hemantsingh443/allchat-sub000/internal/frame"
	"github.com/hemantsingh443/allchat-sub000/internal/httputil"
)

type fakeVerifier struct {
	tokens map[string]string
}

func (v *fakeVerifier) VerifyToken(token string) (*models.AuthClaims, error) {
	userID, ok := v.tokens[token]
	if !ok {
		return nil, domain.ErrUnauthorized
	}
	claims := &models.AuthClaims{Role: "authenticated"}
	claims.Subject = userID
	return claims, nil
}

func (v *fakeVerifier) Close() error { return nil }

func TestAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	verifier := &fakeVerifier{tokens: map[string]string{"good": "alice"}}

	var gotUser string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = httputil.GetUserID(r)
		w.WriteHeader(http.StatusOK)
	})
	h := Auth(verifier, logger)(next)

	tests := []struct {
		name       string
		method     string
		path       string
		header     string
		wantStatus int
		wantUser   string
	}{
		{"valid token", http.MethodGet, "/api/chats", "Bearer good", http.StatusOK, "alice"},
		{"missing token", http.MethodGet, "/api/chats", "", http.StatusUnauthorized, ""},
		{"wrong scheme", http.MethodGet, "/api/chats", "Basic good", http.StatusUnauthorized, ""},
		{"bad token", http.MethodPost, "/api/chat", "Bearer forged", http.StatusUnauthorized, ""},
		{"health is public", http.MethodGet, "/health", "", http.StatusOK, ""},
		{"models is public", http.MethodGet, "/api/models", "", http.StatusOK, ""},
		{"guest is public", http.MethodPost, "/api/guest/chat", "", http.StatusOK, ""},
		{"share is public", http.MethodGet, "/api/share/abc", "", http.StatusOK, ""},
		{"preflight is public", http.MethodOptions, "/api/chats", "", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser = ""
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if gotUser != tt.wantUser {
				t.Errorf("user = %q, want %q", gotUser, tt.wantUser)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chats", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestRecoveryMidStream(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fw := frame.NewWriter(w)
		w.Header().Set("Content-Type", frame.ContentType)
		w.WriteHeader(http.StatusOK)
		_ = fw.Send(frame.ContentWord{Content: "partial"})
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	events := frame.NewDecoder(logger).Feed(rec.Body.Bytes())
	if len(events) != 2 {
		t.Fatalf("got %d frames, want 2", len(events))
	}
	errFrame, ok := events[1].(frame.Error)
	if !ok {
		t.Fatalf("last frame = %T, want frame.Error", events[1])
	}
	if errFrame.Code != frame.CodeInternal {
		t.Errorf("code = %q, want %q", errFrame.Code, frame.CodeInternal)
	}
}

func TestRequestLoggerRequestID(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var seen string
	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = httputil.RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if seen == "" {
		t.Fatal("no request id in context")
	}
	if got := rec.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("header = %q, context = %q", got, seen)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "caller-id")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "caller-id" {
		t.Errorf("request id = %q, want caller-id", seen)
	}
}

func TestRequestLoggerKeepsFlusher(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var flushable bool
	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, flushable = w.(http.Flusher)
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if !flushable {
		t.Error("wrapped writer does not implement http.Flusher")
	}
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d", rec.Code)
	}
}

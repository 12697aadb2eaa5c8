package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/EmpoweredVote/geo-backend/internal/middleware"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// call wraps a simple 200-OK inner handler in the provided middleware and
// returns the recorded response.
func call(t *testing.T, mw func(http.Handler) http.Handler, method, origin string) *httptest.ResponseRecorder {
	t.Helper()

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(method, "/boundaries", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	mw(inner).ServeHTTP(rec, req)
	return rec
}

// TestCORS_AllowedOrigin verifies an allow-listed origin is echoed back.
func TestCORS_AllowedOrigin(t *testing.T) {
	mw := middleware.CORS([]string{"https://maps.example"})
	rec := call(t, mw, http.MethodGet, "https://maps.example")

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://maps.example" {
		t.Errorf("expected origin echoed, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

// TestCORS_UnknownOrigin verifies an unknown origin gets no allow header.
func TestCORS_UnknownOrigin(t *testing.T) {
	mw := middleware.CORS([]string{"https://maps.example"})
	rec := call(t, mw, http.MethodGet, "https://evil.example")

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no allow header, got %q", got)
	}
}

// TestCORS_Preflight verifies OPTIONS short-circuits with 204.
func TestCORS_Preflight(t *testing.T) {
	mw := middleware.CORS([]string{"https://maps.example"})
	rec := call(t, mw, http.MethodOptions, "https://maps.example")

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

// TestRateLimit_Exhausted verifies requests past the burst receive 429.
func TestRateLimit_Exhausted(t *testing.T) {
	mw := middleware.RateLimit(0.001, 2)
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := make([]int, 3)
	for i := range codes {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes[i] = rec.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("burst requests should pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", codes[2])
	}
}

// TestRateLimit_Disabled verifies a zero rate passes everything through.
func TestRateLimit_Disabled(t *testing.T) {
	mw := middleware.RateLimit(0, 0)
	for i := 0; i < 10; i++ {
		if rec := call(t, mw, http.MethodGet, ""); rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}
}

// TestAccessLog_RecordsStatus verifies the logged status matches the response.
func TestAccessLog_RecordsStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := chi.NewRouter()
	r.Use(middleware.AccessLog(zap.New(core)))
	r.Get("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	entries := logs.FilterMessage("http_access").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 access line, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["status"]; got != int64(http.StatusNotFound) {
		t.Errorf("expected status 404, got %v", got)
	}
}

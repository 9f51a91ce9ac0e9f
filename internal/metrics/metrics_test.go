package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestGateCounters(t *testing.T) {
	t.Parallel()

	m := New()
	m.FrameObserved("accepted")
	m.FrameObserved("throttled")
	m.FrameObserved("throttled")
	m.FeedbackCompleted("ok", 1200*time.Millisecond)
	m.VerdictsPruned(4)
	m.VerdictsPruned(0)

	if got := testutil.ToFloat64(m.frames.WithLabelValues("throttled")); got != 2 {
		t.Fatalf("throttled frames = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.feedback.WithLabelValues("ok")); got != 1 {
		t.Fatalf("ok feedback = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.prunedVerdicts); got != 4 {
		t.Fatalf("pruned = %v, want 4", got)
	}
}

func TestConnectionGauge(t *testing.T) {
	t.Parallel()

	m := New()
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	if got := testutil.ToFloat64(m.activeSessions); got != 1 {
		t.Fatalf("connections = %v, want 1", got)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	t.Parallel()

	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/poses/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/poses/unknown", nil))

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("/api/poses/{id}", "404")); got != 1 {
		t.Fatalf("route counter = %v, want 1", got)
	}

	srv := httptest.NewServer(r)
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "yogguru_http_requests_total") {
		t.Fatalf("exposition missing request counter:\n%s", body)
	}
}

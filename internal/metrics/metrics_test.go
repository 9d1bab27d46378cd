package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/abdul-hamid-achik/frameset/internal/storage"
)

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"GET /jobs/{id}", "/jobs/{id}"},
		{"/static/images/", "/static/images/"},
		{"", "unmatched"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/jobs/3f2b6c1e", nil)
		r.Pattern = tt.pattern
		if got := RouteLabel(r); got != tt.want {
			t.Errorf("RouteLabel(%q) = %q, want %q", tt.pattern, got, tt.want)
		}
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("ok"))
	})
	h := HTTPMetricsMiddleware(mux)

	jobs := HTTPRequestsTotal.WithLabelValues("GET", "/jobs/{id}", "418")
	unmatched := HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")
	jobsBefore, unmatchedBefore := counterValue(jobs), counterValue(unmatched)

	for _, id := range []string{"3f2b6c1e-1d2a-4b8e-9f00-0123456789ab", "other"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/jobs/"+id, nil))
		if rec.Code != http.StatusTeapot {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
		}
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/wp-login.php", nil))

	if got := counterValue(jobs) - jobsBefore; got != 2 {
		t.Errorf("/jobs/{id} delta = %v, want 2", got)
	}
	if got := counterValue(unmatched) - unmatchedBefore; got != 1 {
		t.Errorf("unmatched delta = %v, want 1", got)
	}

	health := HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "200")
	before := counterValue(health)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health/live", nil))
	if counterValue(health) != before {
		t.Error("health checks should not be recorded")
	}
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)
	_, _ = rw.Write([]byte("body"))
	rw.WriteHeader(http.StatusInternalServerError)

	if rw.statusCode != http.StatusOK || rw.size != 4 {
		t.Errorf("statusCode = %d, size = %d", rw.statusCode, rw.size)
	}
	if rw.Unwrap() != rec {
		t.Error("Unwrap() should return the wrapped writer")
	}
}

func TestInstrumentedStorage(t *testing.T) {
	ctx := context.Background()
	s := NewInstrumentedStorage(storage.NewMemoryStorage())

	before := counterValue(StorageOperationsTotal.WithLabelValues("upload", "success"))
	if err := s.Upload(ctx, "a.zip", strings.NewReader("hello"), "application/zip", 5); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if got := counterValue(StorageOperationsTotal.WithLabelValues("upload", "success")) - before; got != 1 {
		t.Errorf("upload success delta = %v, want 1", got)
	}

	rc, err := s.Download(ctx, "a.zip")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "hello" {
		t.Errorf("Download() = %q, want hello", data)
	}

	errBefore := counterValue(StorageOperationsTotal.WithLabelValues("delete", "error"))
	if err := s.Delete(ctx, "missing.zip"); err != storage.ErrNotFound {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
	if got := counterValue(StorageOperationsTotal.WithLabelValues("delete", "error")) - errBefore; got != 1 {
		t.Errorf("delete error delta = %v, want 1", got)
	}

	if s.Unwrap() == nil {
		t.Error("Unwrap() = nil")
	}
}

func TestJobCollector(t *testing.T) {
	c := NewJobCollector()
	completed := JobsProcessedTotal.WithLabelValues("archive_extract", JobCompleted, "local")
	failed := JobsProcessedTotal.WithLabelValues("archive_extract", JobFailed, "default")
	completedBefore, failedBefore := counterValue(completed), counterValue(failed)

	c.JobStarted("archive_extract", "local")
	c.JobCompleted("archive_extract", "local", 2*time.Second)
	c.JobStarted("archive_extract", "default")
	c.JobRetrying("archive_extract", "default", 1)
	c.JobFailed("archive_extract", "default", time.Second)

	if got := counterValue(completed) - completedBefore; got != 1 {
		t.Errorf("completed delta = %v, want 1", got)
	}
	if got := counterValue(failed) - failedBefore; got != 1 {
		t.Errorf("failed delta = %v, want 1", got)
	}
}

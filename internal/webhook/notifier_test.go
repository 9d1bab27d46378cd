package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/frameset/internal/job"
	"github.com/abdul-hamid-achik/frameset/internal/logger"
)

func finishedSnapshot(status job.Status) job.Snapshot {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(2500 * time.Millisecond)
	snap := job.Snapshot{
		ID:              "job-1",
		ArchiveName:     "dataset.zip",
		Status:          status,
		StartedAt:       &started,
		FinishedAt:      &finished,
		Counters:        job.Counters{TotalEntries: 3, ImagesExtracted: 2, FramesExtracted: 10},
		OutputDirectory: "/media/job-1",
		Files:           []string{"job-1/a.jpg", "job-1/b.jpg"},
	}
	if status == job.StatusFailed {
		snap.ErrorCode = "corrupt_archive"
		snap.Error = "zip: not a valid zip file"
	}
	return snap
}

func newTestNotifier(urls []string, opts ...Option) *Notifier {
	opts = append([]Option{WithRetry(3, time.Millisecond), WithLogger(logger.NewTestLogger())}, opts...)
	return NewNotifier(urls, 5*time.Second, opts...)
}

func closeNotifier(t *testing.T, n *Notifier) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestNewJobEvent(t *testing.T) {
	now := time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)

	event, err := NewJobEvent(finishedSnapshot(job.StatusFailed), now)
	if err != nil {
		t.Fatal(err)
	}
	if event.Type != EventJobFailed || event.ID == "" || !event.CreatedAt.Equal(now) {
		t.Errorf("event = %+v", event)
	}

	var data JobData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.JobID != "job-1" || data.FileCount != 2 || data.DurationMs != 2500 || data.ErrorCode != "corrupt_archive" {
		t.Errorf("data = %+v", data)
	}

	completed, _ := NewJobEvent(finishedSnapshot(job.StatusCompleted), now)
	if completed.Type != EventJobCompleted {
		t.Errorf("Type = %s, want %s", completed.Type, EventJobCompleted)
	}
}

func TestNotifier_DeliversSignedEvent(t *testing.T) {
	var mu sync.Mutex
	var gotBody []byte
	var gotHeader http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotBody, gotHeader = body, r.Header.Clone()
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := newTestNotifier([]string{server.URL}, WithSecret("s3cret"))
	n.JobFinished(context.Background(), finishedSnapshot(job.StatusCompleted))
	closeNotifier(t, n)

	mu.Lock()
	defer mu.Unlock()

	if gotHeader.Get(HeaderEvent) != EventJobCompleted {
		t.Errorf("%s = %q", HeaderEvent, gotHeader.Get(HeaderEvent))
	}
	if err := Verify(gotHeader.Get(HeaderSignature), gotBody, "s3cret", time.Minute, time.Now()); err != nil {
		t.Errorf("Verify() error = %v", err)
	}

	var event Event
	if err := json.Unmarshal(gotBody, &event); err != nil {
		t.Fatal(err)
	}
	if event.ID != gotHeader.Get(HeaderDelivery) {
		t.Errorf("delivery id %q does not match event id %q", gotHeader.Get(HeaderDelivery), event.ID)
	}
}

func TestNotifier_Unsigned(t *testing.T) {
	var signed atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signed.Store(r.Header.Get(HeaderSignature) != "")
	}))
	defer server.Close()

	n := newTestNotifier([]string{server.URL})
	n.JobFinished(context.Background(), finishedSnapshot(job.StatusCompleted))
	closeNotifier(t, n)

	if signed.Load() {
		t.Error("delivery without a secret should not be signed")
	}
}

func TestNotifier_Retries(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
	}{
		{"server error is retried", http.StatusBadGateway, 3},
		{"rate limit is retried", http.StatusTooManyRequests, 3},
		{"client error is not retried", http.StatusBadRequest, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			n := newTestNotifier([]string{server.URL})
			n.JobFinished(context.Background(), finishedSnapshot(job.StatusFailed))
			closeNotifier(t, n)

			if calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestNotifier_RecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	n := newTestNotifier([]string{server.URL})
	n.JobFinished(context.Background(), finishedSnapshot(job.StatusCompleted))
	closeNotifier(t, n)

	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if n.breaker.State(server.URL) != "closed" {
		t.Errorf("breaker state = %s, want closed", n.breaker.State(server.URL))
	}
}

func TestNotifier_OpenCircuitSkipsDelivery(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	n := newTestNotifier([]string{server.URL}, WithCircuitBreaker(NewCircuitBreaker(1, time.Hour)))

	n.JobFinished(context.Background(), finishedSnapshot(job.StatusCompleted))
	closeNotifier(t, n)
	n.JobFinished(context.Background(), finishedSnapshot(job.StatusCompleted))
	closeNotifier(t, n)

	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (second delivery skipped)", calls.Load())
	}
}

func TestNotifier_FansOutToEveryURL(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })
	a := httptest.NewServer(handler)
	defer a.Close()
	b := httptest.NewServer(handler)
	defer b.Close()

	n := newTestNotifier([]string{a.URL, b.URL})
	n.JobFinished(context.Background(), finishedSnapshot(job.StatusCompleted))
	closeNotifier(t, n)

	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

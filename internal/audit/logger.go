// Package audit records who uploaded or deleted what. Entries always go to
// the structured log and, when a Sink is configured, to durable storage.
package audit

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/frameset/internal/logger"
)

type Action string

const (
	ActionArchiveUpload Action = "archive.upload"
	ActionArchiveDelete Action = "archive.delete"
	ActionImageDelete   Action = "image.delete"
	ActionFolderDelete  Action = "folder.delete"
)

type Entry struct {
	Action    Action
	Resource  string
	RequestID string
	IPAddress string
	UserAgent string
	Metadata  map[string]any
	At        time.Time
}

// Sink persists entries.
type Sink interface {
	WriteAudit(ctx context.Context, entry Entry) error
}

type Logger struct {
	sink Sink
	now  func() time.Time
}

// NewLogger returns a Logger writing to sink; a nil sink logs only.
func NewLogger(sink Sink) *Logger {
	return &Logger{sink: sink, now: time.Now}
}

// Log is safe on a nil Logger.
func (l *Logger) Log(ctx context.Context, entry Entry) error {
	if l == nil {
		return nil
	}
	if entry.At.IsZero() {
		entry.At = l.now().UTC()
	}
	if entry.RequestID == "" {
		entry.RequestID = logger.RequestID(ctx)
	}

	logger.FromContext(ctx).Info("audit",
		slog.String("action", string(entry.Action)),
		slog.String("resource", entry.Resource),
		slog.String("ip", entry.IPAddress),
		slog.Any("metadata", entry.Metadata),
	)

	if l.sink == nil {
		return nil
	}
	return l.sink.WriteAudit(context.WithoutCancel(ctx), entry)
}

func (l *Logger) LogFromRequest(r *http.Request, entry Entry) error {
	if entry.IPAddress == "" {
		entry.IPAddress = clientIP(r)
	}
	if entry.UserAgent == "" {
		entry.UserAgent = r.UserAgent()
	}
	return l.Log(r.Context(), entry)
}

// clientIP prefers the first X-Forwarded-For hop.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

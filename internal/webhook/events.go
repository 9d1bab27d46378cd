// Package webhook posts signed job events to operator-configured endpoints.
package webhook

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/frameset/internal/job"
)

const (
	EventJobCompleted = "job.completed"
	EventJobFailed    = "job.failed"
)

type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

// JobData is the payload of both job events.
type JobData struct {
	JobID           string       `json:"job_id"`
	ArchiveName     string       `json:"archive_name"`
	Status          job.Status   `json:"status"`
	Counters        job.Counters `json:"counters"`
	FileCount       int          `json:"file_count"`
	OutputDirectory string       `json:"output_directory"`
	DurationMs      int64        `json:"duration_ms"`
	ErrorCode       string       `json:"error_code,omitempty"`
	Error           string       `json:"error,omitempty"`
}

func NewEvent(eventType string, data any, now time.Time) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		CreatedAt: now.UTC(),
		Data:      raw,
	}, nil
}

// NewJobEvent builds the event for a job in a terminal status.
func NewJobEvent(snap job.Snapshot, now time.Time) (*Event, error) {
	eventType := EventJobCompleted
	if snap.Status == job.StatusFailed {
		eventType = EventJobFailed
	}

	data := JobData{
		JobID:           snap.ID,
		ArchiveName:     snap.ArchiveName,
		Status:          snap.Status,
		Counters:        snap.Counters,
		FileCount:       len(snap.Files),
		OutputDirectory: snap.OutputDirectory,
		ErrorCode:       snap.ErrorCode,
		Error:           snap.Error,
	}
	if snap.StartedAt != nil && snap.FinishedAt != nil {
		data.DurationMs = snap.FinishedAt.Sub(*snap.StartedAt).Milliseconds()
	}

	return NewEvent(eventType, data, now)
}

func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

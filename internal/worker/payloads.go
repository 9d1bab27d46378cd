package worker

import (
	"context"
	"errors"

	"github.com/abdul-hamid-achik/frameset/internal/job"
	"github.com/abdul-hamid-achik/frameset/internal/tracing"
)

var ErrInvalidPayload = errors.New("worker: invalid payload")

// ExtractPayload carries everything a worker process needs to run an
// extraction job it did not create.
type ExtractPayload struct {
	Job   job.Snapshot         `json:"job"`
	Trace tracing.TraceCarrier `json:"trace"`
}

func NewExtractPayload(ctx context.Context, snap job.Snapshot) ExtractPayload {
	return ExtractPayload{
		Job:   snap,
		Trace: tracing.InjectTraceContext(ctx),
	}
}

func (p *ExtractPayload) Validate() error {
	switch {
	case p.Job.ID == "":
		return errors.Join(ErrInvalidPayload, errors.New("missing job id"))
	case p.Job.ArchiveKey == "":
		return errors.Join(ErrInvalidPayload, errors.New("missing archive key"))
	case p.Job.OutputDirectory == "":
		return errors.Join(ErrInvalidPayload, errors.New("missing output directory"))
	}
	if err := p.Job.Params.Validate(); err != nil {
		return errors.Join(ErrInvalidPayload, err)
	}
	return nil
}

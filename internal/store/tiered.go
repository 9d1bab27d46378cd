package store

import (
	"context"
	"errors"

	"github.com/abdul-hamid-achik/frameset/internal/job"
)

// Tiered writes through to a fast store for polling and a durable store for
// history. Reads try the fast store first.
type Tiered struct {
	fast    job.StatusStore
	durable job.StatusStore
}

func NewTiered(fast, durable job.StatusStore) *Tiered {
	return &Tiered{fast: fast, durable: durable}
}

func (t *Tiered) Save(ctx context.Context, snap job.Snapshot) error {
	return errors.Join(t.fast.Save(ctx, snap), t.durable.Save(ctx, snap))
}

func (t *Tiered) Get(ctx context.Context, id string) (*job.Snapshot, error) {
	snap, err := t.fast.Get(ctx, id)
	if err == nil {
		return snap, nil
	}
	return t.durable.Get(ctx, id)
}

// List reads history from the durable store, which outlives the fast
// store's TTL.
func (t *Tiered) List(ctx context.Context, limit int) ([]job.Snapshot, error) {
	return t.durable.List(ctx, limit)
}

func (t *Tiered) Delete(ctx context.Context, id string) error {
	fastErr := t.fast.Delete(ctx, id)
	durableErr := t.durable.Delete(ctx, id)

	if errors.Is(fastErr, job.ErrNotFound) && errors.Is(durableErr, job.ErrNotFound) {
		return job.ErrNotFound
	}
	if errors.Is(fastErr, job.ErrNotFound) {
		fastErr = nil
	}
	if errors.Is(durableErr, job.ErrNotFound) {
		durableErr = nil
	}
	return errors.Join(fastErr, durableErr)
}

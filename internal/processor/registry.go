package processor

import (
	"fmt"
	"sort"
	"sync"

	"github.com/abdul-hamid-achik/frameset/internal/media"
)

type Registry struct {
	processors map[string]Processor
	kinds      map[media.Kind]Processor
	mu         sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		processors: make(map[string]Processor),
		kinds:      make(map[media.Kind]Processor),
	}
}

// Register adds p under name. The most recently registered processor for a
// kind handles that kind.
func (r *Registry) Register(name string, p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.processors[name] = p
	r.kinds[p.Kind()] = p
}

func (r *Registry) Get(name string) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.processors[name]
	return p, ok
}

func (r *Registry) ForKind(kind media.Kind) (Processor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, kind)
	}
	return p, nil
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.processors))
	for name := range r.processors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Package registry maps job names to processor capabilities. The mapping is
// assembled once at startup; the registry performs no business logic.
package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/tamecalm/job-processor/internal/domain"
)

// Processor executes the work for one queue entry and returns a short
// human-readable summary of what it did. The summary becomes the job's
// result on completion. Processors may log incremental progress through the
// zerolog logger carried in ctx; progress is observability only and never
// part of the lifecycle contract.
type Processor func(ctx context.Context, entry domain.QueueEntry) (string, error)

// Registry maps job names to processors. Register all processors before
// handing the registry to the worker pool; Lookup is then safe for
// concurrent use without locking.
type Registry struct {
	processors map[string]Processor
}

func New() *Registry {
	return &Registry{processors: make(map[string]Processor)}
}

// Register binds a processor to a job name. Exactly one processor may own a
// name; a duplicate is a configuration error the caller should treat as
// fatal at startup.
func (r *Registry) Register(name string, p Processor) error {
	if name == "" {
		return fmt.Errorf("registry: empty processor name")
	}
	if p == nil {
		return fmt.Errorf("registry: nil processor for %q", name)
	}
	if _, exists := r.processors[name]; exists {
		return fmt.Errorf("registry: %q: %w", name, domain.ErrDuplicateProcessor)
	}
	r.processors[name] = p
	return nil
}

// Lookup returns the processor for name, or ErrUnknownJobType.
func (r *Registry) Lookup(name string) (Processor, error) {
	p, ok := r.processors[name]
	if !ok {
		return nil, fmt.Errorf("registry: %q: %w", name, domain.ErrUnknownJobType)
	}
	return p, nil
}

// Names returns the registered job names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.processors))
	for n := range r.processors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

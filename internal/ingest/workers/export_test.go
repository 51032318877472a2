package workers

import (
	"slices"
	"time"
)

// WithDebounce overrides the delay between a configuration change and the worker resync.
func WithDebounce(d time.Duration) Options {
	return func(o *options) {
		o.debounce = d
	}
}

// ActiveDatasets returns the names of the running workers, sorted.
func (p *Pool) ActiveDatasets() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.workers))
	for name := range p.workers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

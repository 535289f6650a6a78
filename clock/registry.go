package clock

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry groups named clocks so they can be advanced together.
type Registry struct {
	mu     sync.RWMutex
	clocks map[string]*SimClock
}

func NewRegistry() *Registry {
	return &Registry{clocks: make(map[string]*SimClock)}
}

func (r *Registry) Register(name string, c *SimClock) error {
	if c == nil {
		return fmt.Errorf("clock %q: nil clock", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clocks[name]; ok {
		return fmt.Errorf("clock %q already registered", name)
	}
	r.clocks[name] = c
	return nil
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clocks, name)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clocks))
	for n := range r.clocks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AdvanceAllTo advances every registered clock in name order. A clock that
// fails does not stop the others; all failures are joined.
func (r *Registry) AdvanceAllTo(t time.Time) error {
	var errs []error
	for _, name := range r.Names() {
		c := r.get(name)
		if c == nil {
			continue
		}
		if err := c.AdvanceTo(t); err != nil {
			errs = append(errs, fmt.Errorf("clock %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) ResetAll(t time.Time) {
	for _, name := range r.Names() {
		if c := r.get(name); c != nil {
			c.Reset(t)
		}
	}
}

// MinTime returns the earliest current time across the registered clocks.
func (r *Registry) MinTime() (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var earliest time.Time
	found := false
	for _, c := range r.clocks {
		now := c.Now()
		if !found || now.Before(earliest) {
			earliest = now
			found = true
		}
	}
	return earliest, found
}

func (r *Registry) get(name string) *SimClock {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clocks[name]
}

// Package hook lets independent components react to domain events without
// the emitting service knowing about them.
package hook

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrInterrupt stops the remaining handlers of a Trigger.
var ErrInterrupt = errors.New("hook interrupted")

// Domain events.
const (
	// MatchReported carries the matchmaking.MatchResult accepted by a
	// controller.
	MatchReported = "match_reported"
)

// Fn handles one event. It returns the (possibly replaced) data passed on
// to the next handler.
type Fn func(ctx context.Context, event string, data any) (any, error)

type entry struct {
	priority int
	name     string
	fn       Fn
}

// Center holds the handlers registered per event.
type Center struct {
	mu    sync.RWMutex
	hooks map[string][]entry
}

func NewCenter() *Center {
	return &Center{hooks: make(map[string][]entry)}
}

// Register adds fn for event. Lower priorities run first; handlers of equal
// priority run in registration order.
func (c *Center) Register(event string, priority int, name string, fn Fn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Copy on write: Trigger iterates the old slice without the lock.
	entries := make([]entry, 0, len(c.hooks[event])+1)
	entries = append(entries, c.hooks[event]...)
	entries = append(entries, entry{priority: priority, name: name, fn: fn})
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].priority < entries[j].priority })
	c.hooks[event] = entries
}

// Unregister removes every handler called name from event.
func (c *Center) Unregister(event, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var kept []entry
	for _, e := range c.hooks[event] {
		if e.name != name {
			kept = append(kept, e)
		}
	}
	c.hooks[event] = kept
}

// Trigger runs the handlers of event in priority order, threading data
// through them. Handler errors other than ErrInterrupt are collected and
// returned joined once every handler has run.
func (c *Center) Trigger(ctx context.Context, event string, data any) (any, error) {
	c.mu.RLock()
	entries := c.hooks[event]
	c.mu.RUnlock()

	var errs []error
	for _, e := range entries {
		out, err := e.fn(ctx, event, data)
		if errors.Is(err, ErrInterrupt) {
			return out, err
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		data = out
	}
	return data, errors.Join(errs...)
}

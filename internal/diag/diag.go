// Package diag collects the non-fatal diagnostics recorded during a run.
package diag

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

// Kind classifies a diagnostic by how the run reacted to it.
type Kind string

const (
	// InputQuality covers unreadable or empty text and ambiguous values that were degraded locally.
	InputQuality Kind = "input-quality"
	// Configuration covers malformed pattern entries and training examples that were skipped.
	Configuration Kind = "configuration"
	// Capability covers an optional capability (the model adapter) that was missing or failing.
	Capability Kind = "capability"
)

// Entry is a single recorded diagnostic.
type Entry struct {
	Kind      Kind   `json:"kind"`
	Component string `json:"component"`
	Subject   string `json:"subject,omitempty"`
	Message   string `json:"message"`
}

func (e Entry) String() string {
	if e.Subject == "" {
		return fmt.Sprintf("%s/%s: %s", e.Kind, e.Component, e.Message)
	}
	return fmt.Sprintf("%s/%s: %s: %s", e.Kind, e.Component, e.Subject, e.Message)
}

// Collector accumulates entries. It is safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	entries []Entry
}

// Add records an entry.
func (c *Collector) Add(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

// Addf records an entry with a formatted message.
func (c *Collector) Addf(kind Kind, component, subject, format string, args ...any) {
	c.Add(Entry{Kind: kind, Component: component, Subject: subject, Message: fmt.Sprintf(format, args...)})
}

// Merge appends all entries from other.
func (c *Collector) Merge(entries ...Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entries...)
}

// Entries returns a copy of the recorded entries in insertion order.
func (c *Collector) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Has reports whether at least one entry of the given kind was recorded.
func (c *Collector) Has(kind Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// Err combines the entries of the given kinds into a single error, or nil when there are none.
// With no kinds every entry is included.
func (c *Collector) Err(kinds ...Kind) error {
	var err error
	for _, e := range c.Entries() {
		if len(kinds) > 0 && !containsKind(kinds, e.Kind) {
			continue
		}
		err = multierr.Append(err, errors.New(e.String()))
	}
	return err
}

func containsKind(kinds []Kind, k Kind) bool {
	for _, candidate := range kinds {
		if candidate == k {
			return true
		}
	}
	return false
}

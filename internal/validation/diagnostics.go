package validation

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hal9000y/greetguard/internal/fault"
)

// Diagnostic is one recorded failure.
type Diagnostic struct {
	ID      string         `json:"id"`
	Time    time.Time      `json:"time"`
	Kind    fault.Kind     `json:"kind"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// Diagnostics keeps the most recent failures in memory and logs each one.
type Diagnostics struct {
	mu      sync.Mutex
	size    int
	entries []Diagnostic
	logger  *slog.Logger
	now     func() time.Time
}

// NewDiagnostics keeps up to size entries; size below 1 means 100.
func NewDiagnostics(size int, logger *slog.Logger) *Diagnostics {
	if size < 1 {
		size = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Diagnostics{size: size, logger: logger, now: time.Now}
}

// Record stores err with its kind and context. A nil err records nothing.
func (d *Diagnostics) Record(err error) Diagnostic {
	if err == nil {
		return Diagnostic{}
	}

	entry := Diagnostic{
		ID:      uuid.NewString(),
		Time:    d.now(),
		Kind:    fault.KindOf(err),
		Message: err.Error(),
		Context: maps.Clone(fault.ContextOf(err)),
	}

	attrs := []any{"id", entry.ID, "kind", entry.Kind, "error", entry.Message, "context", entry.Context}
	if entry.Kind == fault.KindInternal {
		d.logger.Error("validation diagnostic", attrs...)
	} else {
		d.logger.Warn("validation diagnostic", attrs...)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, entry)
	if over := len(d.entries) - d.size; over > 0 {
		d.entries = slices.Delete(d.entries, 0, over)
	}

	return entry
}

// Entries returns the recorded diagnostics, oldest first.
func (d *Diagnostics) Entries() []Diagnostic {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Diagnostic, len(d.entries))
	for i, e := range d.entries {
		e.Context = maps.Clone(e.Context)
		out[i] = e
	}
	return out
}

func (d *Diagnostics) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

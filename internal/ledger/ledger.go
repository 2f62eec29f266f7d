// Package ledger tracks the names of objects created on the remote prompt
// service so they can be deleted explicitly later.
package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Roles an artifact can play in a run.
const (
	RoleSource  = "source"
	RoleSummary = "summary"
)

// Artifact is a named object held by the remote service.
type Artifact struct {
	Seq       uint64    `json:"seq" yaml:"seq"`
	Name      string    `json:"name" yaml:"name"`
	Role      string    `json:"role" yaml:"role"`
	RunID     uuid.UUID `json:"run_id" yaml:"run_id"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Ledger holds artifacts in creation order. It is safe for concurrent use.
type Ledger struct {
	mu      sync.RWMutex
	seq     uint64
	entries []Artifact
}

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{}
}

// Add records an artifact the service has confirmed creating.
func (l *Ledger) Add(runID uuid.UUID, name, role string) Artifact {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	a := Artifact{
		Seq:       l.seq,
		Name:      name,
		Role:      role,
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
	}
	l.entries = append(l.entries, a)
	return a
}

// Entries returns a copy of the ledger in creation order.
func (l *Ledger) Entries() []Artifact {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Artifact, len(l.entries))
	copy(out, l.entries)
	return out
}

// Names returns artifact names in creation order.
func (l *Ledger) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, len(l.entries))
	for i, a := range l.entries {
		names[i] = a.Name
	}
	return names
}

// Len returns the number of pending artifacts.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Forget removes the given artifacts, matched by sequence number. Entries
// added after the caller took its snapshot are kept.
func (l *Ledger) Forget(done []Artifact) {
	if len(done) == 0 {
		return
	}
	seqs := make(map[uint64]struct{}, len(done))
	for _, a := range done {
		seqs[a.Seq] = struct{}{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[:0]
	for _, a := range l.entries {
		if _, ok := seqs[a.Seq]; !ok {
			kept = append(kept, a)
		}
	}
	clear(l.entries[len(kept):])
	l.entries = kept
}

// Clear drops every entry without contacting the service.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

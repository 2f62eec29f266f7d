// Package calllog keeps the ordered, append-only record of every call made to
// the remote prompt service during a session.
package calllog

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is one remote interaction. Records are immutable once appended.
type Record struct {
	Seq       uint64          `json:"seq" yaml:"seq"`
	RunID     uuid.UUID       `json:"run_id" yaml:"run_id"`
	Method    string          `json:"method" yaml:"method"`
	Endpoint  string          `json:"endpoint" yaml:"endpoint"`
	Request   json.RawMessage `json:"request,omitempty" yaml:"-"`
	Response  json.RawMessage `json:"response,omitempty" yaml:"-"`
	Status    int             `json:"status" yaml:"status"`
	Duration  time.Duration   `json:"duration_ns" yaml:"duration"`
	Timestamp time.Time       `json:"timestamp" yaml:"timestamp"`
}

// Failed reports whether the call did not complete with a 2xx status.
// Transport failures carry status 0.
func (r Record) Failed() bool {
	return r.Status < 200 || r.Status > 299
}

// Log is an append-only sequence of Records. It is safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	seq     uint64
	records []Record
	now     func() time.Time
}

// New returns an empty Log.
func New() *Log {
	return &Log{now: time.Now}
}

// Append assigns the next sequence number (and a timestamp if r has none) and
// stores r. The stored copy is returned.
func (l *Log) Append(r Record) Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	r.Seq = l.seq
	if r.Timestamp.IsZero() {
		r.Timestamp = l.now().UTC()
	}
	l.records = append(l.records, r)
	return r
}

// Records returns a copy of the log in append order.
func (l *Log) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of records.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Reset drops every record. Only a new submission resets the log; sequence
// numbers keep increasing across resets so records from different runs never
// share a Seq.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
}

// Package workflow drives a URL through the remote ingest, transform and
// retrieve stages and keeps track of what the run left behind on the service.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/sitesum/internal/calllog"
	"github.com/kalambet/sitesum/internal/ledger"
	"github.com/kalambet/sitesum/internal/remote"
)

// Service is the subset of the remote client the pipeline needs.
type Service interface {
	CreateInputObject(ctx context.Context, in remote.InputObject) (remote.Exchange, error)
	ApplyTransformation(ctx context.Context, t remote.Transformation) (remote.Exchange, error)
	FetchObject(ctx context.Context, name string) (remote.Object, remote.Exchange, error)
	DeleteObject(ctx context.Context, name string) (remote.Exchange, error)
}

// Machine owns the current Run together with the artifact ledger and call log
// it produces. It is safe for concurrent use.
//
// Two counters decide whether a result may still land. gen changes on every
// Submit and Reset and guards the visible Run. epoch changes only on Submit
// and guards the ledger and call log, so a run that was reset keeps recording
// the artifacts the service confirmed.
type Machine struct {
	svc    Service
	opts   Options
	logger *slog.Logger

	ledger *ledger.Ledger
	calls  *calllog.Log

	mu     sync.Mutex
	run    Run
	gen    uint64
	epoch  uint64
	cancel context.CancelFunc

	cleanupMu sync.Mutex

	subsMu sync.Mutex
	subs   map[chan struct{}]struct{}

	now func() time.Time
}

type token struct {
	ctx    context.Context
	cancel context.CancelFunc
	gen    uint64
	epoch  uint64
	runID  uuid.UUID
	url    string
	stale  []ledger.Artifact
}

// New creates a Machine in AwaitingInput with an empty ledger and log.
func New(svc Service, opts Options) *Machine {
	opts = opts.withDefaults()
	return &Machine{
		svc:    svc,
		opts:   opts,
		logger: opts.Logger.With("component", "workflow"),
		ledger: ledger.New(),
		calls:  calllog.New(),
		run:    Run{Step: StepAwaitingInput},
		subs:   make(map[chan struct{}]struct{}),
		now:    time.Now,
	}
}

// Submit validates url, moves to Processing and runs every stage before
// returning. The returned Run is the state the submission ended in.
func (m *Machine) Submit(ctx context.Context, url string) (Run, error) {
	tok, err := m.begin(ctx, url)
	if err != nil {
		return m.Snapshot(), err
	}
	return m.execute(tok)
}

// Start is Submit without waiting: validation and the move to Processing
// happen before it returns, the stages run in the background. The run is
// detached from ctx's cancellation; Reset or a later submission stops it.
func (m *Machine) Start(ctx context.Context, url string) (Run, error) {
	tok, err := m.begin(context.WithoutCancel(ctx), url)
	if err != nil {
		return m.Snapshot(), err
	}
	snap := m.Snapshot()
	go m.execute(tok)
	return snap, nil
}

// Reset abandons whatever the visible run is doing and returns to
// AwaitingInput. The ledger and call log are left alone.
func (m *Machine) Reset() Run {
	m.mu.Lock()
	m.supersede()
	m.run = Run{Step: StepAwaitingInput}
	snap := m.run
	m.mu.Unlock()

	m.notify()
	return snap
}

// Cleanup deletes every ledgered artifact in creation order. A failed
// deletion never stops the others, and the attempted artifacts always leave
// the ledger.
func (m *Machine) Cleanup(ctx context.Context) CleanupReport {
	m.cleanupMu.Lock()
	defer m.cleanupMu.Unlock()

	m.mu.Lock()
	epoch := m.epoch
	entries := m.ledger.Entries()
	m.mu.Unlock()

	report := m.deleteAll(ctx, epoch, entries)

	m.mu.Lock()
	if epoch == m.epoch {
		m.ledger.Forget(entries)
	}
	m.mu.Unlock()

	m.notify()
	return report
}

// Snapshot returns a copy of the visible run.
func (m *Machine) Snapshot() Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run
}

// Artifacts returns the ledger in creation order.
func (m *Machine) Artifacts() []ledger.Artifact {
	return m.ledger.Entries()
}

// Calls returns the call log in append order.
func (m *Machine) Calls() []calllog.Record {
	return m.calls.Records()
}

// Subscribe returns a channel that receives a value whenever the run, ledger
// or call log changes. Notifications coalesce; the receiver should re-read
// state rather than count them. The returned func unsubscribes.
func (m *Machine) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	m.subsMu.Lock()
	m.subs[ch] = struct{}{}
	m.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subsMu.Lock()
			delete(m.subs, ch)
			m.subsMu.Unlock()
		})
	}
}

func (m *Machine) notify() {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// begin performs the synchronous half of a submission.
func (m *Machine) begin(ctx context.Context, url string) (*token, error) {
	trimmed := strings.TrimSpace(url)

	m.mu.Lock()
	if trimmed == "" {
		m.supersede()
		m.run = Run{Step: StepAwaitingInput, Error: ValidationMessage}
		m.mu.Unlock()
		m.notify()
		return nil, &ValidationError{Message: ValidationMessage, Err: ErrBlankURL}
	}

	m.supersede()
	m.epoch++

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	tok := &token{
		ctx:    runCtx,
		cancel: cancel,
		gen:    m.gen,
		epoch:  m.epoch,
		runID:  uuid.New(),
		url:    trimmed,
	}
	if m.opts.PurgeOnSubmit {
		tok.stale = m.ledger.Entries()
	}
	m.ledger.Clear()
	m.calls.Reset()

	m.run = Run{
		ID:        tok.runID,
		URL:       trimmed,
		Step:      StepProcessing,
		Loading:   true,
		StartedAt: m.now().UTC(),
	}
	m.mu.Unlock()

	m.notify()
	m.logger.Info("run started", "run_id", tok.runID, "url", trimmed)
	return tok, nil
}

// supersede cancels the in-flight run, if any, and invalidates its claim on
// the visible state. Callers hold m.mu.
func (m *Machine) supersede() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.gen++
}

// execute drives the stages in order and stops at the first failure.
func (m *Machine) execute(tok *token) (Run, error) {
	defer tok.cancel()

	// Every run reuses the same object names, so a cleanup still deleting
	// must finish before the first stage recreates them.
	m.cleanupMu.Lock()
	if len(tok.stale) > 0 {
		report := m.deleteAll(tok.ctx, tok.epoch, tok.stale)
		m.logger.Info("purged previous artifacts",
			"run_id", tok.runID,
			"deleted", len(report.Deleted),
			"failed", len(report.Failed),
		)
	}
	m.cleanupMu.Unlock()

	var (
		prior []string
		last  stageOutput
	)
	for _, s := range pipeline {
		if !m.current(tok) {
			return m.Snapshot(), ErrSuperseded
		}

		out, err := s.run(tok.ctx, m.svc, m.opts, stageInput{url: tok.url, prior: prior})
		m.record(tok.epoch, tok.runID, out.exchange)
		if err != nil {
			return m.fail(tok, s, err)
		}
		if out.artifact != "" {
			m.admit(tok, out.artifact, out.role)
			prior = append(prior, out.artifact)
		}
		last = out
	}
	return m.complete(tok, last.object)
}

func (m *Machine) current(tok *token) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return tok.gen == m.gen
}

// record appends a sent exchange to the call log unless a newer submission
// has started a fresh log since.
func (m *Machine) record(epoch uint64, runID uuid.UUID, ex remote.Exchange) {
	if !ex.Sent() {
		return
	}

	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	m.calls.Append(calllog.Record{
		RunID:     runID,
		Method:    ex.Method,
		Endpoint:  ex.Endpoint,
		Request:   ex.Request,
		Response:  ex.Response,
		Status:    ex.Status,
		Duration:  ex.Duration,
		Timestamp: ex.Started,
	})
	m.mu.Unlock()

	m.notify()
}

// admit ledgers an artifact the service confirmed creating.
func (m *Machine) admit(tok *token, name, role string) {
	m.mu.Lock()
	if tok.epoch != m.epoch {
		m.mu.Unlock()
		m.logger.Warn("artifact created by a replaced run is not tracked", "run_id", tok.runID, "name", name)
		return
	}
	m.ledger.Add(tok.runID, name, role)
	m.mu.Unlock()

	m.notify()
}

func (m *Machine) fail(tok *token, s stage, err error) (Run, error) {
	m.mu.Lock()
	if tok.gen != m.gen {
		m.mu.Unlock()
		return m.Snapshot(), ErrSuperseded
	}
	msg := failureMessage(s.fallback, err)
	m.run.Step = StepAwaitingInput
	m.run.Loading = false
	m.run.Error = msg
	m.run.FinishedAt = m.now().UTC()
	m.cancel = nil
	snap := m.run
	m.mu.Unlock()

	m.notify()
	m.logger.Warn("stage failed", "run_id", tok.runID, "stage", s.name, "error", err)
	return snap, &StageError{Stage: s.name, Message: msg, Err: err}
}

func (m *Machine) complete(tok *token, obj remote.Object) (Run, error) {
	m.mu.Lock()
	if tok.gen != m.gen {
		m.mu.Unlock()
		return m.Snapshot(), ErrSuperseded
	}
	m.run.Step = StepCompleted
	m.run.Loading = false
	m.run.Summary = obj.TextValue
	m.run.Raw = obj.Raw
	m.run.FinishedAt = m.now().UTC()
	m.cancel = nil
	snap := m.run
	m.mu.Unlock()

	m.notify()
	m.logger.Info("run completed", "run_id", tok.runID, "summary_len", len(obj.TextValue))
	return snap, nil
}

// deleteAll attempts every deletion in order and collects the outcomes.
// Callers hold cleanupMu.
func (m *Machine) deleteAll(ctx context.Context, epoch uint64, entries []ledger.Artifact) CleanupReport {
	report := CleanupReport{
		Attempted: len(entries),
		Deleted:   []string{},
		Failed:    []CleanupFailure{},
	}
	for _, a := range entries {
		ex, err := m.svc.DeleteObject(ctx, a.Name)
		m.record(epoch, a.RunID, ex)
		if err != nil {
			m.logger.Warn("deleting artifact failed", "name", a.Name, "error", err)
			report.Failed = append(report.Failed, CleanupFailure{Name: a.Name, Error: deleteMessage(err)})
			continue
		}
		report.Deleted = append(report.Deleted, a.Name)
	}
	return report
}

func deleteMessage(err error) string {
	var rerr *remote.Error
	if errors.As(err, &rerr) && rerr.Detail != "" {
		return rerr.Detail
	}
	return err.Error()
}

package workflow

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/sitesum/internal/remote"
)

// --- fake service ---

type fakeService struct {
	mu    sync.Mutex
	calls []string

	ingest    func(ctx context.Context, in remote.InputObject) error
	transform func(ctx context.Context, t remote.Transformation) error
	fetch     func(ctx context.Context, name string) (remote.Object, error)
	remove    func(ctx context.Context, name string) error
}

func (f *fakeService) called(method, endpoint string, err error) remote.Exchange {
	f.mu.Lock()
	f.calls = append(f.calls, method+" "+endpoint)
	f.mu.Unlock()

	ex := remote.Exchange{Method: method, Endpoint: endpoint, Started: time.Now(), Status: 200}
	var rerr *remote.Error
	var terr *remote.TransportError
	switch {
	case errors.As(err, &rerr):
		ex.Status = rerr.Status
	case errors.As(err, &terr):
		ex.Status = 0
	}
	return ex
}

func (f *fakeService) CreateInputObject(ctx context.Context, in remote.InputObject) (remote.Exchange, error) {
	var err error
	if f.ingest != nil {
		err = f.ingest(ctx, in)
	}
	return f.called("POST", "/input_data", err), err
}

func (f *fakeService) ApplyTransformation(ctx context.Context, t remote.Transformation) (remote.Exchange, error) {
	var err error
	if f.transform != nil {
		err = f.transform(ctx, t)
	}
	return f.called("POST", "/apply_prompt", err), err
}

func (f *fakeService) FetchObject(ctx context.Context, name string) (remote.Object, remote.Exchange, error) {
	obj := remote.Object{
		Name:      name,
		TextValue: "Example Domain is a placeholder page.",
		Raw:       []byte(`{"text_value":"Example Domain is a placeholder page.","events":1}`),
	}
	var err error
	if f.fetch != nil {
		obj, err = f.fetch(ctx, name)
	}
	return obj, f.called("GET", "/return_data/"+name, err), err
}

func (f *fakeService) DeleteObject(ctx context.Context, name string) (remote.Exchange, error) {
	var err error
	if f.remove != nil {
		err = f.remove(ctx, name)
	}
	return f.called("DELETE", "/objects/"+name, err), err
}

func (f *fakeService) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func remoteErr(op string, status int, detail string) error {
	return &remote.Error{Op: op, Status: status, Detail: detail}
}

// --- helpers ---

func newMachine(svc Service) *Machine {
	return New(svc, DefaultOptions())
}

func callEndpoints(m *Machine) []string {
	var out []string
	for _, r := range m.Calls() {
		out = append(out, r.Method+" "+r.Endpoint)
	}
	return out
}

func artifactNames(m *Machine) []string {
	var out []string
	for _, a := range m.Artifacts() {
		out = append(out, a.Name)
	}
	return out
}

// waitFor blocks until cond holds, re-checking on every change notification.
func waitFor(t *testing.T, m *Machine, cond func(Run) bool) Run {
	t.Helper()
	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()

	deadline := time.After(2 * time.Second)
	for {
		if r := m.Snapshot(); cond(r) {
			return r
		}
		select {
		case <-ch:
		case <-deadline:
			t.Fatalf("timed out waiting, run = %+v", m.Snapshot())
		}
	}
}

// --- submit ---

func TestSubmit_ProcessingBeforeFirstCall(t *testing.T) {
	var m *Machine
	var seen Run
	svc := &fakeService{
		ingest: func(ctx context.Context, in remote.InputObject) error {
			seen = m.Snapshot()
			return nil
		},
	}
	m = newMachine(svc)

	if _, err := m.Submit(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if seen.Step != StepProcessing {
		t.Errorf("step during ingest = %v, want %v", seen.Step, StepProcessing)
	}
	if !seen.Loading {
		t.Error("Loading = false during ingest, want true")
	}
	if seen.URL != "https://example.com" {
		t.Errorf("URL = %q, want https://example.com", seen.URL)
	}
}

func TestSubmit_BlankInput(t *testing.T) {
	for _, input := range []string{"", "   ", "\t\n "} {
		svc := &fakeService{}
		m := newMachine(svc)

		run, err := m.Submit(context.Background(), input)

		if !errors.Is(err, ErrBlankURL) {
			t.Errorf("Submit(%q) err = %v, want ErrBlankURL", input, err)
		}
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Message != ValidationMessage {
			t.Errorf("Submit(%q) err = %v, want ValidationError %q", input, err, ValidationMessage)
		}
		if run.Step != StepAwaitingInput {
			t.Errorf("Submit(%q) step = %v, want %v", input, run.Step, StepAwaitingInput)
		}
		if run.Error != ValidationMessage {
			t.Errorf("Submit(%q) error = %q, want %q", input, run.Error, ValidationMessage)
		}
		if calls := svc.Calls(); len(calls) != 0 {
			t.Errorf("Submit(%q) made calls %v, want none", input, calls)
		}
		if n := len(m.Calls()); n != 0 {
			t.Errorf("Submit(%q) logged %d calls, want 0", input, n)
		}
	}
}

func TestSubmit_TrimsURL(t *testing.T) {
	var got []string
	svc := &fakeService{
		ingest: func(ctx context.Context, in remote.InputObject) error {
			got = in.Values
			return nil
		},
	}
	m := newMachine(svc)

	run, err := m.Submit(context.Background(), "  https://example.com \n")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !slices.Equal(got, []string{"https://example.com"}) {
		t.Errorf("ingested values = %v, want [https://example.com]", got)
	}
	if run.URL != "https://example.com" {
		t.Errorf("URL = %q, want https://example.com", run.URL)
	}
}

func TestSubmit_IngestFailure(t *testing.T) {
	svc := &fakeService{
		ingest: func(ctx context.Context, in remote.InputObject) error {
			return remoteErr(remote.OpIngest, 400, "Invalid URL supplied")
		},
	}
	m := newMachine(svc)

	run, err := m.Submit(context.Background(), "https://example.com")

	var serr *StageError
	if !errors.As(err, &serr) || serr.Stage != StageIngest {
		t.Fatalf("err = %v, want StageError for %s", err, StageIngest)
	}
	if calls := svc.Calls(); !slices.Equal(calls, []string{"POST /input_data"}) {
		t.Errorf("calls = %v, want only the ingest call", calls)
	}
	if n := len(m.Artifacts()); n != 0 {
		t.Errorf("ledger has %d artifacts, want 0", n)
	}
	if run.Step != StepAwaitingInput {
		t.Errorf("step = %v, want %v", run.Step, StepAwaitingInput)
	}
	if run.Error != "Invalid URL supplied" {
		t.Errorf("error = %q, want %q", run.Error, "Invalid URL supplied")
	}
	if run.Loading {
		t.Error("Loading = true after failure")
	}
	if got := callEndpoints(m); !slices.Equal(got, []string{"POST /input_data"}) {
		t.Errorf("call log = %v, want the failed ingest", got)
	}
	if r := m.Calls()[0]; !r.Failed() {
		t.Errorf("logged ingest status = %d, want a failure", r.Status)
	}
}

func TestSubmit_FailureMessages(t *testing.T) {
	tests := []struct {
		name string
		svc  *fakeService
		want string
	}{
		{
			name: "ingest without detail",
			svc: &fakeService{ingest: func(context.Context, remote.InputObject) error {
				return remoteErr(remote.OpIngest, 500, "")
			}},
			want: FallbackIngest,
		},
		{
			name: "transform without detail",
			svc: &fakeService{transform: func(context.Context, remote.Transformation) error {
				return remoteErr(remote.OpTransform, 500, "")
			}},
			want: FallbackTransform,
		},
		{
			name: "retrieve without detail",
			svc: &fakeService{fetch: func(context.Context, string) (remote.Object, error) {
				return remote.Object{}, remoteErr(remote.OpRetrieve, 404, "")
			}},
			want: FallbackRetrieve,
		},
		{
			name: "transport failure",
			svc: &fakeService{ingest: func(context.Context, remote.InputObject) error {
				return &remote.TransportError{Op: remote.OpIngest, Err: errors.New("connection refused")}
			}},
			want: "ingest: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMachine(tt.svc)
			run, err := m.Submit(context.Background(), "https://example.com")
			if err == nil {
				t.Fatal("Submit succeeded, want an error")
			}
			if run.Error != tt.want {
				t.Errorf("error = %q, want %q", run.Error, tt.want)
			}
		})
	}
}

func TestSubmit_TransformFailure(t *testing.T) {
	svc := &fakeService{
		transform: func(ctx context.Context, tr remote.Transformation) error {
			return remoteErr(remote.OpTransform, 422, "prompt too long")
		},
	}
	m := newMachine(svc)

	run, err := m.Submit(context.Background(), "https://example.com")

	var serr *StageError
	if !errors.As(err, &serr) || serr.Stage != StageTransform {
		t.Fatalf("err = %v, want StageError for %s", err, StageTransform)
	}
	if got := artifactNames(m); !slices.Equal(got, []string{DefaultSourceObject}) {
		t.Errorf("ledger = %v, want [%s]", got, DefaultSourceObject)
	}
	if run.Step != StepAwaitingInput {
		t.Errorf("step = %v, want %v", run.Step, StepAwaitingInput)
	}
	if run.Error != "prompt too long" {
		t.Errorf("error = %q, want %q", run.Error, "prompt too long")
	}
	for _, c := range svc.Calls() {
		if c == "GET /return_data/"+DefaultSummaryObject {
			t.Error("retrieve was attempted after transform failed")
		}
	}
}

func TestSubmit_Success(t *testing.T) {
	var tr remote.Transformation
	svc := &fakeService{
		transform: func(ctx context.Context, t remote.Transformation) error {
			tr = t
			return nil
		},
	}
	m := newMachine(svc)

	run, err := m.Submit(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if run.Step != StepCompleted {
		t.Errorf("step = %v, want %v", run.Step, StepCompleted)
	}
	if run.Summary != "Example Domain is a placeholder page." {
		t.Errorf("summary = %q", run.Summary)
	}
	if len(run.Raw) == 0 {
		t.Error("Raw is empty, want the retrieve payload")
	}
	if run.Loading || run.Error != "" {
		t.Errorf("loading = %v, error = %q, want false and empty", run.Loading, run.Error)
	}

	if got := artifactNames(m); !slices.Equal(got, []string{DefaultSourceObject, DefaultSummaryObject}) {
		t.Errorf("ledger = %v", got)
	}
	wantCalls := []string{
		"POST /input_data",
		"POST /apply_prompt",
		"GET /return_data/" + DefaultSummaryObject,
	}
	if got := callEndpoints(m); !slices.Equal(got, wantCalls) {
		t.Errorf("call log = %v, want %v", got, wantCalls)
	}
	for _, r := range m.Calls() {
		if r.RunID != run.ID {
			t.Errorf("record %d run id = %v, want %v", r.Seq, r.RunID, run.ID)
		}
	}

	if len(tr.Inputs) != 1 || tr.Inputs[0].Name != DefaultSourceObject || tr.Inputs[0].Mode != remote.CombineEvents {
		t.Errorf("transform inputs = %+v", tr.Inputs)
	}
	if !slices.Equal(tr.Targets, []string{DefaultSummaryObject}) {
		t.Errorf("transform targets = %v", tr.Targets)
	}
}

func TestSubmit_ClearsPreviousRun(t *testing.T) {
	fail := true
	svc := &fakeService{
		transform: func(context.Context, remote.Transformation) error {
			if fail {
				return remoteErr(remote.OpTransform, 500, "boom")
			}
			return nil
		},
	}
	m := newMachine(svc)

	m.Submit(context.Background(), "https://example.com")
	if m.Snapshot().Error == "" {
		t.Fatal("first run should have failed")
	}

	fail = false
	run, err := m.Submit(context.Background(), "https://example.org")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if run.Error != "" {
		t.Errorf("error = %q, want empty", run.Error)
	}
	if n := len(m.Calls()); n != 3 {
		t.Errorf("call log has %d records, want 3 from the new run only", n)
	}
	if n := len(m.Artifacts()); n != 2 {
		t.Errorf("ledger has %d artifacts, want 2 from the new run only", n)
	}
}

func TestSubmit_SupersededByNewSubmission(t *testing.T) {
	entered := make(chan struct{})
	svc := &fakeService{
		ingest: func(ctx context.Context, in remote.InputObject) error {
			if in.Values[0] != "https://slow.example" {
				return nil
			}
			close(entered)
			<-ctx.Done()
			return &remote.TransportError{Op: remote.OpIngest, Err: ctx.Err()}
		},
	}
	m := newMachine(svc)

	done := make(chan error, 1)
	go func() {
		_, err := m.Submit(context.Background(), "https://slow.example")
		done <- err
	}()
	<-entered

	run, err := m.Submit(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if firstErr := <-done; !errors.Is(firstErr, ErrSuperseded) {
		t.Errorf("first Submit err = %v, want ErrSuperseded", firstErr)
	}

	final := m.Snapshot()
	if final.ID != run.ID || final.Step != StepCompleted {
		t.Errorf("visible run = %+v, want the completed second run", final)
	}
	for _, r := range m.Calls() {
		if r.RunID != run.ID {
			t.Errorf("call log holds record from superseded run: %+v", r)
		}
	}
}

// --- start ---

func TestStart_RunsInBackground(t *testing.T) {
	release := make(chan struct{})
	svc := &fakeService{
		ingest: func(ctx context.Context, in remote.InputObject) error {
			<-release
			return nil
		},
	}
	m := newMachine(svc)

	run, err := m.Start(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if run.Step != StepProcessing {
		t.Errorf("step = %v, want %v", run.Step, StepProcessing)
	}

	close(release)
	final := waitFor(t, m, func(r Run) bool { return r.Step == StepCompleted })
	if final.Summary == "" {
		t.Error("summary is empty after completion")
	}
}

func TestStart_DetachedFromCallerContext(t *testing.T) {
	release := make(chan struct{})
	svc := &fakeService{
		ingest: func(ctx context.Context, in remote.InputObject) error {
			<-release
			return ctx.Err()
		},
	}
	m := newMachine(svc)

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := m.Start(ctx, "https://example.com"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	close(release)

	final := waitFor(t, m, func(r Run) bool { return !r.Loading })
	if final.Step != StepCompleted {
		t.Errorf("step = %v (error %q), want %v", final.Step, final.Error, StepCompleted)
	}
}

func TestStart_BlankInput(t *testing.T) {
	svc := &fakeService{}
	m := newMachine(svc)

	if _, err := m.Start(context.Background(), " "); !errors.Is(err, ErrBlankURL) {
		t.Errorf("err = %v, want ErrBlankURL", err)
	}
	if len(svc.Calls()) != 0 {
		t.Errorf("calls = %v, want none", svc.Calls())
	}
}

// --- reset ---

func TestReset_FromEveryState(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m *Machine)
	}{
		{"initial", func(m *Machine) {}},
		{"validation error", func(m *Machine) { m.Submit(context.Background(), "") }},
		{"completed", func(m *Machine) { m.Submit(context.Background(), "https://example.com") }},
		{"failed", func(m *Machine) { m.Submit(context.Background(), "https://fail.example") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{
				transform: func(ctx context.Context, tr remote.Transformation) error {
					return nil
				},
				ingest: func(ctx context.Context, in remote.InputObject) error {
					if in.Values[0] == "https://fail.example" {
						return remoteErr(remote.OpIngest, 400, "bad")
					}
					return nil
				},
			}
			m := newMachine(svc)
			tt.setup(m)

			artifacts := m.Artifacts()
			calls := m.Calls()

			run := m.Reset()

			if run.Step != StepAwaitingInput {
				t.Errorf("step = %v, want %v", run.Step, StepAwaitingInput)
			}
			if run.URL != "" || run.Summary != "" || run.Error != "" || run.Loading {
				t.Errorf("run = %+v, want cleared fields", run)
			}
			if got := m.Artifacts(); !slices.Equal(got, artifacts) {
				t.Errorf("ledger changed: %v -> %v", artifacts, got)
			}
			if got := m.Calls(); len(got) != len(calls) {
				t.Errorf("call log changed: %d -> %d records", len(calls), len(got))
			}
		})
	}
}

func TestReset_CancelsInFlightRun(t *testing.T) {
	entered := make(chan struct{})
	svc := &fakeService{
		transform: func(ctx context.Context, tr remote.Transformation) error {
			close(entered)
			<-ctx.Done()
			return &remote.TransportError{Op: remote.OpTransform, Err: ctx.Err()}
		},
	}
	m := newMachine(svc)

	done := make(chan error, 1)
	go func() {
		_, err := m.Submit(context.Background(), "https://example.com")
		done <- err
	}()
	<-entered

	run := m.Reset()
	if run.Step != StepAwaitingInput {
		t.Errorf("step = %v, want %v", run.Step, StepAwaitingInput)
	}

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Errorf("Submit err = %v, want ErrSuperseded", err)
	}
	if final := m.Snapshot(); final.Error != "" || final.Step != StepAwaitingInput {
		t.Errorf("run after cancelled stage = %+v, want untouched reset state", final)
	}
	for _, c := range svc.Calls() {
		if c == "GET /return_data/"+DefaultSummaryObject {
			t.Error("retrieve ran after reset")
		}
	}
	// The source object was confirmed before the reset and stays tracked.
	if got := artifactNames(m); !slices.Equal(got, []string{DefaultSourceObject}) {
		t.Errorf("ledger = %v, want [%s]", got, DefaultSourceObject)
	}
}

// --- cleanup ---

func TestCleanup_DeletesInCreationOrder(t *testing.T) {
	svc := &fakeService{}
	m := newMachine(svc)
	if _, err := m.Submit(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	report := m.Cleanup(context.Background())

	wantDeletes := []string{
		"DELETE /objects/" + DefaultSourceObject,
		"DELETE /objects/" + DefaultSummaryObject,
	}
	calls := svc.Calls()
	if got := calls[len(calls)-2:]; !slices.Equal(got, wantDeletes) {
		t.Errorf("delete calls = %v, want %v", got, wantDeletes)
	}
	if report.Attempted != 2 || len(report.Deleted) != 2 || len(report.Failed) != 0 {
		t.Errorf("report = %+v, want 2 attempted and deleted", report)
	}
	if n := len(m.Artifacts()); n != 0 {
		t.Errorf("ledger has %d artifacts after cleanup, want 0", n)
	}
	if n := len(m.Calls()); n != 5 {
		t.Errorf("call log has %d records, want 5", n)
	}
}

func TestCleanup_EveryDeletionFails(t *testing.T) {
	svc := &fakeService{
		remove: func(ctx context.Context, name string) error {
			return &remote.TransportError{Op: remote.OpDelete, Err: errors.New("network down")}
		},
	}
	m := newMachine(svc)
	if _, err := m.Submit(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	report := m.Cleanup(context.Background())

	deletes := 0
	for _, c := range svc.Calls() {
		if strings.HasPrefix(c, "DELETE") {
			deletes++
		}
	}
	if deletes != 2 {
		t.Errorf("delete calls = %d, want 2", deletes)
	}
	if len(report.Failed) != 2 || len(report.Deleted) != 0 {
		t.Errorf("report = %+v, want 2 failures", report)
	}
	if report.Failed[0].Name != DefaultSourceObject {
		t.Errorf("first failure = %q, want %q", report.Failed[0].Name, DefaultSourceObject)
	}
	if n := len(m.Artifacts()); n != 0 {
		t.Errorf("ledger has %d artifacts after cleanup, want 0", n)
	}
}

func TestCleanup_UsesServiceDetail(t *testing.T) {
	svc := &fakeService{
		remove: func(ctx context.Context, name string) error {
			return remoteErr(remote.OpDelete, 404, "Object not found")
		},
	}
	m := newMachine(svc)
	m.Submit(context.Background(), "https://example.com")

	report := m.Cleanup(context.Background())
	if report.Failed[0].Error != "Object not found" {
		t.Errorf("failure = %q, want %q", report.Failed[0].Error, "Object not found")
	}
}

func TestCleanup_EmptyLedger(t *testing.T) {
	svc := &fakeService{}
	m := newMachine(svc)

	report := m.Cleanup(context.Background())
	if report.Attempted != 0 {
		t.Errorf("attempted = %d, want 0", report.Attempted)
	}
	if len(svc.Calls()) != 0 {
		t.Errorf("calls = %v, want none", svc.Calls())
	}
}

func TestCleanup_AfterFailedRun(t *testing.T) {
	svc := &fakeService{
		fetch: func(ctx context.Context, name string) (remote.Object, error) {
			return remote.Object{}, remoteErr(remote.OpRetrieve, 500, "")
		},
	}
	m := newMachine(svc)
	m.Submit(context.Background(), "https://example.com")

	if n := len(m.Artifacts()); n != 2 {
		t.Fatalf("ledger has %d artifacts, want 2", n)
	}
	report := m.Cleanup(context.Background())
	if len(report.Deleted) != 2 {
		t.Errorf("deleted = %v, want both artifacts", report.Deleted)
	}
}

// --- call log ---

func TestCallLog_NeverShrinksWithinRun(t *testing.T) {
	svc := &fakeService{}
	m := newMachine(svc)

	m.Submit(context.Background(), "https://example.com")
	prev := len(m.Calls())

	ops := []func(){
		func() { m.Reset() },
		func() { m.Cleanup(context.Background()) },
		func() { m.Cleanup(context.Background()) },
		func() { m.Reset() },
	}
	for i, op := range ops {
		op()
		n := len(m.Calls())
		if n < prev {
			t.Fatalf("op %d: call log shrank from %d to %d", i, prev, n)
		}
		prev = n
	}
}

// --- purge on submit ---

func TestPurgeOnSubmit(t *testing.T) {
	svc := &fakeService{}
	opts := DefaultOptions()
	opts.PurgeOnSubmit = true
	m := New(svc, opts)

	first, err := m.Submit(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	second, err := m.Submit(context.Background(), "https://example.org")
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}

	want := []string{
		"DELETE /objects/" + DefaultSourceObject,
		"DELETE /objects/" + DefaultSummaryObject,
		"POST /input_data",
		"POST /apply_prompt",
		"GET /return_data/" + DefaultSummaryObject,
	}
	if got := callEndpoints(m); !slices.Equal(got, want) {
		t.Errorf("call log = %v, want %v", got, want)
	}
	recs := m.Calls()
	if recs[0].RunID != first.ID {
		t.Errorf("purge record run id = %v, want the previous run %v", recs[0].RunID, first.ID)
	}
	for _, a := range m.Artifacts() {
		if a.RunID != second.ID {
			t.Errorf("artifact %q belongs to run %v, want %v", a.Name, a.RunID, second.ID)
		}
	}
}

func TestNoPurgeByDefault(t *testing.T) {
	svc := &fakeService{}
	m := newMachine(svc)

	m.Submit(context.Background(), "https://example.com")
	m.Submit(context.Background(), "https://example.org")

	for _, c := range svc.Calls() {
		if strings.HasPrefix(c, "DELETE") {
			t.Errorf("unexpected deletion %q without purge", c)
		}
	}
}

// --- subscribe ---

func TestSubscribe_NotifiesAndUnsubscribes(t *testing.T) {
	m := newMachine(&fakeService{})
	ch, unsubscribe := m.Subscribe()

	m.Reset()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no notification after Reset")
	}

	unsubscribe()
	unsubscribe()
	m.Reset()
	select {
	case <-ch:
		t.Error("notification after unsubscribe")
	default:
	}
}

// --- options ---

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"defaults", DefaultOptions(), false},
		{"zero value falls back to defaults", Options{}, false},
		{"prompt missing placeholder", Options{Prompt: "Summarize this page."}, true},
		{"custom source", Options{SourceObject: "page", Prompt: "Summarize {page}"}, false},
		{"same names", Options{SourceObject: "x", SummaryObject: "x", Prompt: "{x}"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseStep(t *testing.T) {
	for _, s := range []Step{StepAwaitingInput, StepProcessing, StepCompleted} {
		got, err := ParseStep(s.String())
		if err != nil || got != s {
			t.Errorf("ParseStep(%q) = %v, %v", s.String(), got, err)
		}
	}
	if _, err := ParseStep("done"); err == nil {
		t.Error("ParseStep(done) succeeded, want error")
	}
}

// objectStore is a fake service backend that tracks which objects exist.
type objectStore struct {
	mu      sync.Mutex
	objects map[string]bool
}

func (s *objectStore) put(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		s.objects[n] = true
	}
}

func (s *objectStore) drop(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, name)
}

func (s *objectStore) has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[name]
}

func TestCleanup_NewSubmissionWaitsForDeletes(t *testing.T) {
	store := &objectStore{objects: map[string]bool{}}
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	svc := &fakeService{
		ingest: func(ctx context.Context, in remote.InputObject) error {
			store.put(in.Name)
			return nil
		},
		transform: func(ctx context.Context, tr remote.Transformation) error {
			store.put(tr.Targets...)
			return nil
		},
		remove: func(ctx context.Context, name string) error {
			once.Do(func() {
				close(started)
				<-release
			})
			store.drop(name)
			return nil
		},
	}
	m := newMachine(svc)
	if _, err := m.Submit(context.Background(), "https://example.com/one"); err != nil {
		t.Fatalf("first Submit: %v", err)
	}

	cleaned := make(chan CleanupReport, 1)
	go func() { cleaned <- m.Cleanup(context.Background()) }()
	<-started

	if _, err := m.Start(context.Background(), "https://example.com/two"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The second run must not ingest while the first delete is still open.
	time.Sleep(20 * time.Millisecond)
	ingests := 0
	for _, c := range svc.Calls() {
		if c == "POST /input_data" {
			ingests++
		}
	}
	if ingests != 1 {
		t.Errorf("ingest calls during cleanup = %d, want 1", ingests)
	}

	close(release)
	if report := <-cleaned; len(report.Deleted) != 2 {
		t.Errorf("cleanup report = %+v, want 2 deleted", report)
	}
	waitFor(t, m, func(r Run) bool { return r.Step == StepCompleted })

	for _, name := range artifactNames(m) {
		if !store.has(name) {
			t.Errorf("ledger tracks %q but it no longer exists on the service", name)
		}
	}
	if got := artifactNames(m); len(got) != 2 {
		t.Errorf("ledger = %v, want both objects of the second run", got)
	}
}

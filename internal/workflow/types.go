package workflow

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/sitesum/internal/remote"
)

// Step is the user-facing position of a run.
type Step int

const (
	StepAwaitingInput Step = iota
	StepProcessing
	StepCompleted
)

var stepNames = [...]string{
	StepAwaitingInput: "awaiting_input",
	StepProcessing:    "processing",
	StepCompleted:     "completed",
}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

func (s Step) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(stepNames) {
		return nil, fmt.Errorf("unknown step %d", int(s))
	}
	return []byte(stepNames[s]), nil
}

func (s *Step) UnmarshalText(b []byte) error {
	v, err := ParseStep(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseStep is the inverse of Step.String.
func ParseStep(name string) (Step, error) {
	for i, n := range stepNames {
		if n == name {
			return Step(i), nil
		}
	}
	return 0, fmt.Errorf("unknown step %q", name)
}

// Run is the visible state of the current submission.
type Run struct {
	ID         uuid.UUID       `json:"id" yaml:"id"`
	URL        string          `json:"url" yaml:"url"`
	Step       Step            `json:"step" yaml:"step"`
	Summary    string          `json:"summary,omitempty" yaml:"summary,omitempty"`
	Error      string          `json:"error,omitempty" yaml:"error,omitempty"`
	Loading    bool            `json:"loading" yaml:"loading"`
	Raw        json.RawMessage `json:"raw,omitempty" yaml:"-"`
	StartedAt  time.Time       `json:"started_at,omitzero" yaml:"started_at,omitempty"`
	FinishedAt time.Time       `json:"finished_at,omitzero" yaml:"finished_at,omitempty"`
}

// CleanupFailure is a deletion the service did not confirm.
type CleanupFailure struct {
	Name  string `json:"name" yaml:"name"`
	Error string `json:"error" yaml:"error"`
}

// CleanupReport is the aggregate outcome of a cleanup pass.
type CleanupReport struct {
	Attempted int              `json:"attempted" yaml:"attempted"`
	Deleted   []string         `json:"deleted" yaml:"deleted"`
	Failed    []CleanupFailure `json:"failed" yaml:"failed"`
}

// Options configures the objects and prompt a Machine uses.
type Options struct {
	SourceObject  string
	SummaryObject string
	DataType      string
	Prompt        string
	Mode          string

	// PurgeOnSubmit deletes the previous run's artifacts before a new run
	// starts instead of dropping them from the ledger.
	PurgeOnSubmit bool

	Logger *slog.Logger
}

const (
	DefaultSourceObject  = "webpage_content"
	DefaultSummaryObject = "webpage_summary"
	DefaultDataType      = "urls"
	DefaultPrompt        = "Provide a brief 2-3 sentence summary of the main content and key points from this webpage: {webpage_content}"
)

// DefaultOptions returns the stock object names and prompt.
func DefaultOptions() Options {
	return Options{
		SourceObject:  DefaultSourceObject,
		SummaryObject: DefaultSummaryObject,
		DataType:      DefaultDataType,
		Prompt:        DefaultPrompt,
		Mode:          remote.CombineEvents,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SourceObject == "" {
		o.SourceObject = d.SourceObject
	}
	if o.SummaryObject == "" {
		o.SummaryObject = d.SummaryObject
	}
	if o.DataType == "" {
		o.DataType = d.DataType
	}
	if o.Prompt == "" {
		o.Prompt = d.Prompt
	}
	if o.Mode == "" {
		o.Mode = d.Mode
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Validate checks that the prompt references the source object and that the
// two object names differ.
func (o Options) Validate() error {
	o = o.withDefaults()
	if o.SourceObject == o.SummaryObject {
		return fmt.Errorf("source and summary object share the name %q", o.SourceObject)
	}
	placeholder := "{" + o.SourceObject + "}"
	if !strings.Contains(o.Prompt, placeholder) {
		return fmt.Errorf("prompt does not reference %s", placeholder)
	}
	return nil
}

package remote

import (
	"encoding/json"
	"time"
)

// CombineEvents flattens every event stored under an input name into a single
// block before it is substituted into the prompt.
const CombineEvents = "combine_events"

// InputObject describes an object to create from raw input values.
type InputObject struct {
	Name     string
	DataType string
	Values   []string
}

// Binding tells the service how to feed a named input into a prompt template.
type Binding struct {
	Name string
	Mode string
}

// Transformation asks the service to produce Targets by substituting Inputs
// into Prompt. Inputs are referenced in the template as {name}.
type Transformation struct {
	Targets []string
	Prompt  string
	Inputs  []Binding
}

// Object is a named result returned by the service. Fields holds every
// top-level field of the payload, text_value included, verbatim.
type Object struct {
	Name      string
	TextValue string
	Fields    map[string]json.RawMessage
	Raw       json.RawMessage
}

// Exchange describes one HTTP round trip with the service, whether or not it
// succeeded. Response holds the service payload, or an error payload when the
// request never produced one.
type Exchange struct {
	Op       string
	Method   string
	Endpoint string
	Request  json.RawMessage
	Response json.RawMessage
	Status   int
	Duration time.Duration
	Started  time.Time
}

// inputDataRequest is the JSON body for POST /input_data.
type inputDataRequest struct {
	CreatedObjectName string   `json:"created_object_name"`
	DataType          string   `json:"data_type"`
	InputData         []string `json:"input_data"`
}

// applyPromptRequest is the JSON body for POST /apply_prompt.
type applyPromptRequest struct {
	CreatedObjectNames []string      `json:"created_object_names"`
	PromptString       string        `json:"prompt_string"`
	Inputs             []promptInput `json:"inputs"`
}

type promptInput struct {
	InputObjectName string `json:"input_object_name"`
	Mode            string `json:"mode"`
}

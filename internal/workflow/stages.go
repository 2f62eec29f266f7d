package workflow

import (
	"context"
	"errors"

	"github.com/kalambet/sitesum/internal/ledger"
	"github.com/kalambet/sitesum/internal/remote"
)

// Stage names, in execution order.
const (
	StageIngest    = "ingest"
	StageTransform = "transform"
	StageRetrieve  = "retrieve"
)

var errNoPriorArtifact = errors.New("no prior artifact to build on")

type stageInput struct {
	url   string
	prior []string // artifact names confirmed by earlier stages, in order
}

type stageOutput struct {
	exchange remote.Exchange

	// artifact is set when the service confirmed creating a named object.
	artifact string
	role     string

	object remote.Object
}

type stageFunc func(ctx context.Context, svc Service, o Options, in stageInput) (stageOutput, error)

type stage struct {
	name     string
	fallback string
	run      stageFunc
}

// pipeline runs strictly in order; each stage consumes the artifact produced
// by the one before it.
var pipeline = []stage{
	{name: StageIngest, fallback: FallbackIngest, run: ingest},
	{name: StageTransform, fallback: FallbackTransform, run: transform},
	{name: StageRetrieve, fallback: FallbackRetrieve, run: retrieve},
}

func ingest(ctx context.Context, svc Service, o Options, in stageInput) (stageOutput, error) {
	ex, err := svc.CreateInputObject(ctx, remote.InputObject{
		Name:     o.SourceObject,
		DataType: o.DataType,
		Values:   []string{in.url},
	})
	out := stageOutput{exchange: ex}
	if err == nil {
		out.artifact = o.SourceObject
		out.role = ledger.RoleSource
	}
	return out, err
}

func transform(ctx context.Context, svc Service, o Options, in stageInput) (stageOutput, error) {
	if len(in.prior) == 0 {
		return stageOutput{}, errNoPriorArtifact
	}
	source := in.prior[len(in.prior)-1]
	ex, err := svc.ApplyTransformation(ctx, remote.Transformation{
		Targets: []string{o.SummaryObject},
		Prompt:  o.Prompt,
		Inputs:  []remote.Binding{{Name: source, Mode: o.Mode}},
	})
	out := stageOutput{exchange: ex}
	if err == nil {
		out.artifact = o.SummaryObject
		out.role = ledger.RoleSummary
	}
	return out, err
}

func retrieve(ctx context.Context, svc Service, o Options, in stageInput) (stageOutput, error) {
	if len(in.prior) == 0 {
		return stageOutput{}, errNoPriorArtifact
	}
	obj, ex, err := svc.FetchObject(ctx, in.prior[len(in.prior)-1])
	return stageOutput{exchange: ex, object: obj}, err
}

package pipeline

import (
	"github.com/couchcryptid/appfunctions-sdk/pkg/interfaces"
)

// DefaultPipelineID is the distinguished pipeline id matching topic "#".
const DefaultPipelineID = "default"

// Pipeline is an ordered, named sequence of transform functions bound to a
// topic pattern list.
type Pipeline struct {
	id         string
	topics     []string
	transforms []interfaces.AppFunction
	target     Target
	hash       string
}

// newPipeline constructs a Pipeline and computes its initial hash.
func newPipeline(id string, topics []string, transforms []interfaces.AppFunction, target Target) *Pipeline {
	return &Pipeline{
		id:         id,
		topics:     append([]string(nil), topics...),
		transforms: append([]interfaces.AppFunction(nil), transforms...),
		target:     target,
		hash:       computeHash(transforms),
	}
}

// ID satisfies interfaces.FunctionPipeline.
func (p *Pipeline) ID() string { return p.id }

// Topics satisfies interfaces.FunctionPipeline.
func (p *Pipeline) Topics() []string { return append([]string(nil), p.topics...) }

// Hash returns the pipeline's current structural hash.
func (p *Pipeline) Hash() string { return p.hash }

// TargetInfo returns the pipeline's decode target, for callers (triggers)
// that need to decode a message before ProcessMessage can run it.
func (p *Pipeline) TargetInfo() Target { return p.target }

// Transforms returns the pipeline's ordered transform list.
func (p *Pipeline) Transforms() []interfaces.AppFunction {
	return append([]interfaces.AppFunction(nil), p.transforms...)
}

// setTransforms replaces the transform list and recomputes the hash. Callers
// must hold the registry's writer lock.
func (p *Pipeline) setTransforms(transforms []interfaces.AppFunction) {
	p.transforms = append([]interfaces.AppFunction(nil), transforms...)
	p.hash = computeHash(transforms)
}

// setTarget replaces the decode target. Callers must hold the registry's
// writer lock.
func (p *Pipeline) setTarget(target Target) {
	p.target = target
}

var _ interfaces.FunctionPipeline = (*Pipeline)(nil)

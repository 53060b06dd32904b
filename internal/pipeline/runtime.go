// Package pipeline implements the function-pipeline runtime: it owns the
// set of pipelines, decodes inbound envelopes, matches topics, executes
// pipelines, and cooperates with store-and-forward on transient failure.
package pipeline

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/appfunctions-sdk/internal/appfunction"
	"github.com/couchcryptid/appfunctions-sdk/internal/bootstrap/metrics"
	"github.com/couchcryptid/appfunctions-sdk/internal/common"
	"github.com/couchcryptid/appfunctions-sdk/internal/store"
	"github.com/couchcryptid/appfunctions-sdk/pkg/interfaces"
)

// ForwardStore is the narrow view of the store-and-forward engine the
// runtime needs: persist a partially-executed pipeline's state, and kick
// off an immediate retry pass when a function asks for one.
type ForwardStore interface {
	StoreForLaterRetry(payload []byte, contextData map[string]string, correlationID, pipelineID, version string, position int) error
	TriggerRetryNow()
}

// Runtime owns the pipeline registry, decodes envelopes, and executes
// pipelines.
type Runtime struct {
	mu       sync.RWMutex
	registry map[string]*Pipeline
	order    []string // insertion order, for deterministic GetMatchingPipelines

	logger  *slog.Logger
	metrics *metrics.Manager
	forward ForwardStore
	clock   clockwork.Clock
}

// New creates a Runtime with an empty default pipeline ("#", no
// transforms) already registered, matching the source's always-present
// default pipeline.
func New(logger *slog.Logger, mgr *metrics.Manager, forward ForwardStore, clock clockwork.Clock) *Runtime {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	r := &Runtime{
		registry: make(map[string]*Pipeline),
		logger:   logger,
		metrics:  mgr,
		forward:  forward,
		clock:    clock,
	}
	r.registry[DefaultPipelineID] = newPipeline(DefaultPipelineID, []string{common.MultiLevelWildcard}, nil, RawTarget())
	r.order = append(r.order, DefaultPipelineID)
	if mgr != nil {
		mgr.RegisterPipeline(DefaultPipelineID)
	}
	return r
}

// AddFunctionPipeline stores a new pipeline and registers its metrics.
// Fails with a status-conflict error if id already exists.
func (r *Runtime) AddFunctionPipeline(id string, topics []string, transforms []interfaces.AppFunction, target Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.registry[id]; exists {
		return common.New(common.KindStatusConflict, fmt.Sprintf("pipeline %q already exists", id))
	}

	r.registry[id] = newPipeline(id, topics, transforms, target)
	r.order = append(r.order, id)
	if r.metrics != nil {
		r.metrics.RegisterPipeline(id)
	}
	return nil
}

// SetDefaultFunctionsPipeline replaces the default pipeline's transform
// list atomically under the registry's writer lock.
func (r *Runtime) SetDefaultFunctionsPipeline(transforms []interfaces.AppFunction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registry[DefaultPipelineID].setTransforms(transforms)
}

// SetDefaultTarget replaces the default pipeline's decode target, for
// services whose inbound payloads are events or a custom type rather than
// raw bytes. The HTTP trigger only ever runs the default pipeline, so this
// is what steers its decode path.
func (r *Runtime) SetDefaultTarget(target Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registry[DefaultPipelineID].setTarget(target)
}

// RemoveAllFunctionPipelines unregisters every pipeline's metrics, then
// clears the registry.
func (r *Runtime) RemoveAllFunctionPipelines() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.metrics != nil {
		for id := range r.registry {
			r.metrics.UnregisterPipeline(id)
		}
	}
	r.registry = make(map[string]*Pipeline)
	r.order = nil
}

// GetMatchingPipelines returns every pipeline whose topic list contains a
// pattern matching topic, in insertion order.
func (r *Runtime) GetMatchingPipelines(topic string) []*Pipeline {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []*Pipeline
	for _, id := range r.order {
		p, ok := r.registry[id]
		if !ok {
			continue
		}
		if common.AnyTopicMatches(topic, p.topics) {
			matches = append(matches, p)
		}
	}
	return matches
}

// SetForwardStore wires the store-and-forward engine in after
// construction, breaking the constructor cycle between Runtime (which the
// engine needs to retry stored objects) and the engine (which Runtime
// needs to persist them).
func (r *Runtime) SetForwardStore(forward ForwardStore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forward = forward
}

// GetDefaultPipeline returns the pipeline bound to "#".
func (r *Runtime) GetDefaultPipeline() *Pipeline {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.registry[DefaultPipelineID]
}

// GetPipelineByID returns the pipeline with the given id, if any.
func (r *Runtime) GetPipelineByID(id string) (*Pipeline, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.registry[id]
	return p, ok
}

// DecodeMessageForTarget decodes envelope's payload into the given target
// kind, and on success records correlation_id, input_content_type, and
// receivedtopic into ctx's values map.
func (r *Runtime) DecodeMessageForTarget(ctx *appfunction.Context, envelope common.MessageEnvelope, target Target) (any, error) {
	data, extraValues, err := decodeTarget(target, envelope)
	if err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	ctx.SetValue("correlation_id", envelope.CorrelationID)
	ctx.SetValue("input_content_type", envelope.ContentType)
	ctx.SetValue("receivedtopic", envelope.ReceivedTopic)
	for k, v := range extraValues {
		ctx.SetValue(k, v)
	}

	return data, nil
}

// DecodeMessage implements trigger.Binding: it decodes envelope against the
// first matching pipeline's target. Pipelines sharing a topic are expected
// to share a target kind; trigger message processing only calls this once
// at least one pipeline has matched.
func (r *Runtime) DecodeMessage(ctx *appfunction.Context, envelope common.MessageEnvelope, matches []*Pipeline) (any, error) {
	return r.DecodeMessageForTarget(ctx, envelope, matches[0].TargetInfo())
}

// ProcessMessage sets the context's pipelineid value and executes the
// pipeline from the start, as a non-retry run.
func (r *Runtime) ProcessMessage(ctx *appfunction.Context, data any, pipeline *Pipeline) error {
	ctx.SetValue("pipelineid", pipeline.ID())
	return r.ExecutePipeline(ctx, data, pipeline, 0, false)
}

// ExecutePipeline iterates pipeline's transforms from startPosition. On
// function failure it logs, increments the error counter, optionally
// persists retry state, and returns a 422-mapped error. On a clean
// function-requested stop it returns nil. On success it continues to the
// next transform; if the function flagged a retry trigger it signals the
// store-and-forward engine and continues with a cloned context.
func (r *Runtime) ExecutePipeline(ctx *appfunction.Context, data any, pipeline *Pipeline, startPosition int, isRetry bool) error {
	transforms := pipeline.Transforms()
	current := data

	for i := startPosition; i < len(transforms); i++ {
		appfunction.ClearRetryData(ctx)

		cont, result := transforms[i](ctx, current)

		if !cont {
			if err, ok := result.(error); ok {
				r.logger.Error("pipeline function failed",
					"pipeline_id", pipeline.ID(), "correlation_id", ctx.CorrelationID(), "error", err)
				if r.metrics != nil {
					r.metrics.IncProcessingErrors(pipeline.ID())
				}

				if retryData := ctx.RetryData(); retryData != nil && !isRetry && r.forward != nil {
					if storeErr := r.forward.StoreForLaterRetry(retryData, ctx.Values(), ctx.CorrelationID(), pipeline.ID(), pipeline.Hash(), i); storeErr != nil {
						r.logger.Error("failed to persist pipeline state for retry",
							"pipeline_id", pipeline.ID(), "correlation_id", ctx.CorrelationID(), "error", storeErr)
					}
				}

				return common.NewPipelineExecutionError(pipeline.ID(), err)
			}
			// Clean, non-error short circuit: no error counter increment.
			return nil
		}

		if result != nil {
			current = result
		}

		// A function that exports its own previously-failed data signals
		// the engine to replay off-interval; the remaining functions run
		// on a clone so the replay sees the pre-trigger values.
		if ctx.RetryTriggered() {
			if r.forward != nil {
				r.forward.TriggerRetryNow()
			}
			ctx = appfunction.CloneContext(ctx)
		}
	}

	return nil
}

// RetryStoredObject implements store.Runtime: re-executes a stored pipeline
// run from its recorded position.
func (r *Runtime) RetryStoredObject(obj store.StoredObject) store.RetryResult {
	pipeline, ok := r.GetPipelineByID(obj.PipelineID)
	if !ok {
		return store.RetryDiscardPipelineGone
	}
	if pipeline.Hash() != obj.Version {
		return store.RetryDiscardVersionMismatch
	}

	ctx := appfunction.FromContextData(obj.CorrelationID, obj.ContextData, nil)

	start := r.clock.Now()
	err := r.ExecutePipeline(ctx, obj.Payload, pipeline, obj.PipelinePosition, true)
	if r.metrics != nil {
		r.metrics.ObserveProcessingDuration(pipeline.ID(), r.clock.Since(start).Seconds())
	}
	if err != nil {
		return store.RetryFailed
	}
	return store.RetrySucceeded
}

var _ store.Runtime = (*Runtime)(nil)

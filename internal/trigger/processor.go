// Package trigger implements the trigger abstraction: the uniform contract
// triggers adapt transport-specific messages into, and the one orchestrator
// per service that decodes a message once and fans it out to every matching
// pipeline concurrently.
package trigger

import (
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/appfunctions-sdk/internal/appfunction"
	"github.com/couchcryptid/appfunctions-sdk/internal/bootstrap/metrics"
	"github.com/couchcryptid/appfunctions-sdk/internal/common"
	"github.com/couchcryptid/appfunctions-sdk/internal/pipeline"
)

// Binding is the dependency-inversion boundary a trigger is built against:
// triggers never touch the runtime directly.
type Binding interface {
	// DecodeMessage decodes envelope once for all of matches. Matches is
	// never empty (MessageReceived only calls this once it has at least
	// one match); when matches disagree on target kind, the first match's
	// target wins.
	DecodeMessage(ctx *appfunction.Context, envelope common.MessageEnvelope, matches []*pipeline.Pipeline) (any, error)
	ProcessMessage(ctx *appfunction.Context, data any, pipeline *pipeline.Pipeline) error
	GetMatchingPipelines(topic string) []*pipeline.Pipeline
	GetDefaultPipeline() *pipeline.Pipeline
}

// ResponseHandler lets a trigger emit a per-transport reply after a
// pipeline completes successfully.
type ResponseHandler func(ctx *appfunction.Context, p *pipeline.Pipeline)

// MessageProcessor is the single per-service orchestrator sitting between
// the transport triggers and the pipeline runtime.
type MessageProcessor struct {
	binding Binding
	metrics *metrics.Manager
	logger  *slog.Logger
}

// NewMessageProcessor creates a MessageProcessor.
func NewMessageProcessor(binding Binding, mgr *metrics.Manager, logger *slog.Logger) *MessageProcessor {
	return &MessageProcessor{binding: binding, metrics: mgr, logger: logger}
}

// MessageReceived resolves matching pipelines, decodes once, and launches
// one worker per matching pipeline so they execute concurrently.
func (mp *MessageProcessor) MessageReceived(ctx *appfunction.Context, envelope common.MessageEnvelope, respond ResponseHandler) {
	if mp.metrics != nil {
		mp.metrics.IncMessagesReceived()
	}

	matches := mp.binding.GetMatchingPipelines(envelope.ReceivedTopic)
	if len(matches) == 0 {
		return
	}

	data, err := mp.binding.DecodeMessage(ctx, envelope, matches)
	if err != nil {
		mp.logger.Error("failed to decode message", "correlation_id", ctx.CorrelationID(), "error", err)
		if mp.metrics != nil {
			mp.metrics.IncInvalidMessagesReceived()
		}
		return
	}

	var wg sync.WaitGroup
	for _, p := range matches {
		// Fires for every matching pipeline at receipt, before the
		// pipeline actually runs: this counter counts attempts, not
		// completions.
		if mp.metrics != nil {
			mp.metrics.IncMessagesProcessed(p.ID())
		}

		wg.Add(1)
		go func(p *pipeline.Pipeline) {
			defer wg.Done()
			pipelineCtx := appfunction.CloneContext(ctx)

			start := time.Now()
			err := mp.binding.ProcessMessage(pipelineCtx, data, p)
			if mp.metrics != nil {
				mp.metrics.ObserveProcessingDuration(p.ID(), time.Since(start).Seconds())
			}
			if err != nil {
				mp.logger.Error("pipeline execution failed",
					"pipeline_id", p.ID(), "correlation_id", pipelineCtx.CorrelationID(), "error", err)
				return
			}

			if respond != nil {
				respond(pipelineCtx, p)
			}
		}(p)
	}
	wg.Wait()
}

// Package http implements the HTTP trigger: a single POST endpoint that
// always invokes the default pipeline synchronously and writes the
// pipeline's response data back as the HTTP response body.
package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/couchcryptid/appfunctions-sdk/internal/appfunction"
	"github.com/couchcryptid/appfunctions-sdk/internal/bootstrap/container"
	"github.com/couchcryptid/appfunctions-sdk/internal/bootstrap/metrics"
	"github.com/couchcryptid/appfunctions-sdk/internal/common"
	"github.com/couchcryptid/appfunctions-sdk/internal/pipeline"
)

// TriggerPath is the fixed route the HTTP trigger listens on.
const TriggerPath = "/api/v3/trigger"

// Binding is the narrow runtime surface the HTTP trigger needs: decode
// against the default pipeline's target, then run it.
type Binding interface {
	DecodeMessageForTarget(ctx *appfunction.Context, envelope common.MessageEnvelope, target pipeline.Target) (any, error)
	ProcessMessage(ctx *appfunction.Context, data any, p *pipeline.Pipeline) error
	GetDefaultPipeline() *pipeline.Pipeline
}

// Trigger is the HTTP transport binding. Unlike the message-bus and MQTT
// triggers it always targets the default pipeline and runs it
// synchronously within the request, so it talks to the runtime directly
// rather than through the fan-out message processor.
type Trigger struct {
	addr       string
	mux        *http.ServeMux
	binding    Binding
	dic        *container.Container
	metrics    *metrics.Manager
	logger     *slog.Logger
	httpServer *http.Server
}

// New creates an HTTP trigger. mux is the service's shared ServeMux (see
// internal/webserver) so the trigger's route and the admin surface are
// served by the one listener Initialize starts.
func New(addr string, mux *http.ServeMux, binding Binding, dic *container.Container, mgr *metrics.Manager, logger *slog.Logger) *Trigger {
	t := &Trigger{addr: addr, mux: mux, binding: binding, dic: dic, metrics: mgr, logger: logger}
	mux.HandleFunc("POST "+TriggerPath, t.handleTrigger)
	return t
}

// Initialize implements interfaces.Trigger: starts the HTTP server, which
// shuts down gracefully once ctxDone closes. The returned teardown is a
// no-op.
func (t *Trigger) Initialize(ctxDone <-chan struct{}, wg *sync.WaitGroup) (func(), error) {
	t.httpServer = &http.Server{
		Addr:         t.addr,
		Handler:      t.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		t.logger.Info("http trigger listening", "addr", t.addr)
		if err := t.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.logger.Error("http trigger server error", "error", err)
		}
	}()

	go func() {
		<-ctxDone
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.httpServer.Shutdown(shutdownCtx); err != nil {
			t.logger.Error("http trigger shutdown error", "error", err)
		}
	}()

	return func() {}, nil
}

// handleTrigger decodes the request body against the default pipeline's
// target, runs it synchronously, and writes back the context's response
// data. Decode failures are a 500 (the request itself never
// named a pipeline to match, so there is no "invalid message" path to take
// instead); pipeline failures map through the error's Kind.
func (t *Trigger) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if t.metrics != nil {
		t.metrics.IncMessagesReceived()
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	correlationID := r.Header.Get("X-Correlation-Id")
	contentType := r.Header.Get("Content-Type")

	ctx := appfunction.NewContext(correlationID, contentType, t.dic)
	envelope := common.MessageEnvelope{
		CorrelationID: correlationID,
		ContentType:   contentType,
		Payload:       body,
	}

	defaultPipeline := t.binding.GetDefaultPipeline()

	data, err := t.binding.DecodeMessageForTarget(ctx, envelope, defaultPipeline.TargetInfo())
	if err != nil {
		t.logger.Error("http trigger failed to decode message", "correlation_id", correlationID, "error", err)
		if t.metrics != nil {
			t.metrics.IncInvalidMessagesReceived()
		}
		http.Error(w, "failed to decode message", http.StatusInternalServerError)
		return
	}

	start := time.Now()
	if t.metrics != nil {
		t.metrics.IncMessagesProcessed(defaultPipeline.ID())
	}
	err = t.binding.ProcessMessage(ctx, data, defaultPipeline)
	if t.metrics != nil {
		t.metrics.ObserveProcessingDuration(defaultPipeline.ID(), time.Since(start).Seconds())
	}
	if err != nil {
		t.logger.Error("http trigger pipeline execution failed", "correlation_id", correlationID, "error", err)
		http.Error(w, err.Error(), common.ToHTTPStatus(err))
		return
	}

	if ct := ctx.ResponseContentType(); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(ctx.ResponseData())
}

package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/appfunctions-sdk/internal/bootstrap/metrics"
)

// MinRetryInterval is the floor the engine raises any configured interval
// to, logging a warning when it does.
const MinRetryInterval = time.Second

// EngineConfig controls the store-and-forward engine.
type EngineConfig struct {
	Enabled       bool
	AppServiceKey string
	Interval      time.Duration
	MaxRetryCount int // 0 means unbounded retries
}

// Engine is the durable retry queue sitting behind the pipeline runtime:
// it captures partially-executed pipeline state and periodically replays
// it until it succeeds or is abandoned.
type Engine struct {
	cfg     EngineConfig
	store   Persistence
	runtime Runtime
	metrics *metrics.Manager
	logger  *slog.Logger
	clock   clockwork.Clock

	inProgressMu sync.Mutex
	inProgress   bool

	retryNow chan struct{}
}

// NewEngine creates a store-and-forward Engine. clock defaults to the real
// clock when nil; tests inject a fake one to drive the retry ticker.
func NewEngine(cfg EngineConfig, persistence Persistence, runtime Runtime, mgr *metrics.Manager, logger *slog.Logger, clock clockwork.Clock) *Engine {
	if cfg.Interval < MinRetryInterval {
		if cfg.Interval != 0 {
			logger.Warn("store-and-forward retry interval below minimum, raising to minimum",
				"configured", cfg.Interval, "minimum", MinRetryInterval)
		}
		cfg.Interval = MinRetryInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		cfg:      cfg,
		store:    persistence,
		runtime:  runtime,
		metrics:  mgr,
		logger:   logger,
		clock:    clock,
		retryNow: make(chan struct{}, 1),
	}
}

// StoreForLaterRetry persists a partially-executed pipeline's state. If
// store-and-forward is disabled, it logs and returns without error.
func (e *Engine) StoreForLaterRetry(payload []byte, contextData map[string]string, correlationID, pipelineID, version string, position int) error {
	if !e.cfg.Enabled {
		e.logger.Info("store-and-forward disabled, dropping failed pipeline run",
			"pipeline_id", pipelineID, "correlation_id", correlationID)
		return nil
	}

	obj := StoredObject{
		ID:               uuid.NewString(),
		AppServiceKey:    e.cfg.AppServiceKey,
		Payload:          payload,
		PipelineID:       pipelineID,
		PipelinePosition: position,
		Version:          version,
		CorrelationID:    correlationID,
		RetryCount:       0,
		ContextData:      contextData,
	}
	if err := obj.Validate(); err != nil {
		return err
	}
	if err := e.store.Put(obj); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.IncStoreQueueDepth()
	}
	return nil
}

// TriggerRetryNow asks the retry loop to run an immediate pass, off its
// normal interval. Non-blocking: a pass already queued is not duplicated.
func (e *Engine) TriggerRetryNow() {
	select {
	case e.retryNow <- struct{}{}:
	default:
	}
}

// Run drives the periodic retry loop until ctxDone fires, registering
// itself with wg so the service can wait for it during shutdown.
func (e *Engine) Run(ctxDone <-chan struct{}, wg *sync.WaitGroup) {
	if !e.cfg.Enabled {
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := e.clock.NewTicker(e.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctxDone:
				return
			case <-ticker.Chan():
				e.runRetryPass()
			case <-e.retryNow:
				e.runRetryPass()
			}
		}
	}()
}

// runRetryPass skips the pass entirely if another is already in flight.
func (e *Engine) runRetryPass() {
	e.inProgressMu.Lock()
	if e.inProgress {
		e.inProgressMu.Unlock()
		return
	}
	e.inProgress = true
	e.inProgressMu.Unlock()

	defer func() {
		e.inProgressMu.Lock()
		e.inProgress = false
		e.inProgressMu.Unlock()
	}()

	objects, err := e.store.GetAllByAppServiceKey(e.cfg.AppServiceKey)
	if err != nil {
		e.logger.Error("store-and-forward: failed to load stored objects", "error", err)
		return
	}

	var toRemove []StoredObject
	var toUpdate []StoredObject

	for _, obj := range objects {
		switch e.runtime.RetryStoredObject(obj) {
		case RetrySucceeded:
			toRemove = append(toRemove, obj)
		case RetryDiscardPipelineGone:
			e.logger.Warn("store-and-forward: pipeline no longer exists, discarding stored object",
				"id", obj.ID, "pipeline_id", obj.PipelineID)
			toRemove = append(toRemove, obj)
		case RetryDiscardVersionMismatch:
			e.logger.Warn("store-and-forward: pipeline has changed, discarding stored object",
				"id", obj.ID, "pipeline_id", obj.PipelineID, "version", obj.Version)
			toRemove = append(toRemove, obj)
		case RetryFailed:
			obj.RetryCount++
			if e.cfg.MaxRetryCount > 0 && obj.RetryCount >= e.cfg.MaxRetryCount {
				e.logger.Warn("store-and-forward: retry count exhausted, discarding stored object",
					"id", obj.ID, "pipeline_id", obj.PipelineID, "retry_count", obj.RetryCount)
				toRemove = append(toRemove, obj)
			} else {
				toUpdate = append(toUpdate, obj)
			}
		}
	}

	removed := 0
	for _, obj := range toRemove {
		if err := e.store.Delete(obj.ID); err != nil {
			e.logger.Error("store-and-forward: failed to delete stored object", "id", obj.ID, "error", err)
			continue
		}
		removed++
	}
	for _, obj := range toUpdate {
		if err := e.store.Update(obj); err != nil {
			e.logger.Error("store-and-forward: failed to update stored object", "id", obj.ID, "error", err)
		}
	}

	if removed > 0 && e.metrics != nil {
		e.metrics.DecStoreQueueDepth(removed)
	}
}

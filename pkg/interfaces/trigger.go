package interfaces

import "sync"

// Trigger adapts a transport into the runtime's message-received call.
// Initialize returns an optional teardown closure the service invokes
// during shutdown. The service assembly drives the three built-in triggers
// and any RegisterTrigger-supplied custom trigger through this contract.
type Trigger interface {
	Initialize(ctxDone <-chan struct{}, wg *sync.WaitGroup) (func(), error)
}

// FunctionPipeline is a read-only view of a pipeline: its id and the
// topics it's bound to. The concrete type, *pipeline.Pipeline in
// internal/pipeline, satisfies it; the built-in triggers work with that
// concrete type directly.
type FunctionPipeline interface {
	ID() string
	Topics() []string
}

// SecretProvider supplies credentials by secret name and key. Concrete
// secret stores live outside this SDK; the triggers only consume this
// interface.
type SecretProvider interface {
	GetSecret(secretName string, keys ...string) (map[string]string, error)
}

// Package interfaces holds the small set of contracts a user of this SDK
// writes against: the transform function signature, the function context
// exposed to transforms, and the trigger contract for anyone wiring a
// custom transport in front of the runtime.
package interfaces

import "github.com/couchcryptid/appfunctions-sdk/internal/bootstrap/container"

// AppFunctionContext is the per-message workspace every transform function
// receives. The concrete implementation lives in internal/appfunction;
// this interface is the stable surface user pipeline functions and custom
// triggers are written against.
type AppFunctionContext interface {
	// CorrelationID returns the opaque id propagated through logs, metrics,
	// and retries for this message.
	CorrelationID() string
	// InputContentType returns the content type of the message that
	// started this pipeline run.
	InputContentType() string

	// SetResponseData records the bytes a trigger should send back to the
	// caller (HTTP response body, message-bus/MQTT reply payload).
	SetResponseData(data []byte)
	ResponseData() []byte
	SetResponseContentType(contentType string)
	ResponseContentType() string

	// SetRetryData records the payload the store-and-forward engine should
	// persist if this pipeline run needs to be retried.
	SetRetryData(data []byte)
	RetryData() []byte

	// TriggerRetry asks the store-and-forward engine to run an immediate
	// retry pass, off its normal interval, for functions that persist
	// their own state out of band.
	TriggerRetry()

	// SetValue/GetValue/RemoveValue manage the per-message values map.
	// Keys are matched case-insensitively.
	SetValue(key, value string)
	GetValue(key string) (string, bool)
	RemoveValue(key string)
	Values() map[string]string

	// ApplyValues substitutes every "{key}" token in template with the
	// current value of key, erroring on the first unmatched token.
	ApplyValues(template string) (string, error)

	// Dependencies returns the handle to the injected service container
	// (logger, secret provider, messaging client, metrics manager).
	Dependencies() *container.Container

	// Clone copies all scalar fields and deep-copies the values map. The
	// clone shares the injected services.
	Clone() AppFunctionContext
}

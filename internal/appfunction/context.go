// Package appfunction implements the per-message function context: the
// mutable workspace a transform function reads from and writes to as it
// runs.
package appfunction

import (
	"fmt"
	"strings"
	"sync"

	"github.com/couchcryptid/appfunctions-sdk/internal/bootstrap/container"
	"github.com/couchcryptid/appfunctions-sdk/pkg/interfaces"
)

var _ interfaces.AppFunctionContext = (*Context)(nil)

// Context is the per-message workspace passed to every transform function.
// It is created per inbound message by a trigger or by the retry engine and
// needs no explicit teardown; it is simply dropped once the pipeline
// completes.
type Context struct {
	correlationID       string
	inputContentType    string
	responseContentType string
	responseData        []byte
	retryData           []byte
	retryTriggered      bool

	valuesMu sync.RWMutex
	values   map[string]string

	dic *container.Container
}

// NewContext creates a Context for a freshly received message.
func NewContext(correlationID, inputContentType string, dic *container.Container) *Context {
	return &Context{
		correlationID:    correlationID,
		inputContentType: inputContentType,
		values:           make(map[string]string),
		dic:              dic,
	}
}

// CorrelationID returns the opaque id propagated end-to-end through logs,
// metrics, and retries.
func (c *Context) CorrelationID() string { return c.correlationID }

// InputContentType returns the content type of the message that produced
// this context.
func (c *Context) InputContentType() string { return c.inputContentType }

// SetResponseData sets the bytes a trigger should send back to the caller
// (the HTTP response body, or the message-bus/MQTT reply payload).
func (c *Context) SetResponseData(data []byte) { c.responseData = data }

// ResponseData returns the bytes set by SetResponseData, or nil.
func (c *Context) ResponseData() []byte { return c.responseData }

// SetResponseContentType records the content type of ResponseData.
func (c *Context) SetResponseContentType(ct string) { c.responseContentType = ct }

// ResponseContentType returns the content type set by SetResponseContentType.
func (c *Context) ResponseContentType() string { return c.responseContentType }

// SetRetryData records the bytes a transform function wants persisted if
// the pipeline needs to be retried.
func (c *Context) SetRetryData(data []byte) { c.retryData = data }

// RetryData returns the bytes set by SetRetryData, or nil if none was set
// since the last clearRetryData call.
func (c *Context) RetryData() []byte { return c.retryData }

// clearRetryData resets the retry buffer. The runtime calls this before
// every transform invocation so leftover retry data from one function is
// never attributed to the next.
func (c *Context) clearRetryData() { c.retryData = nil }

// TriggerRetry flags that an external caller (typically an exporter
// function that persisted its own state) wants the store-and-forward
// engine's retry loop run immediately, off its normal interval.
func (c *Context) TriggerRetry() { c.retryTriggered = true }

// RetryTriggered reports and clears the flag set by TriggerRetry.
func (c *Context) RetryTriggered() bool {
	v := c.retryTriggered
	c.retryTriggered = false
	return v
}

// Dependencies returns the handle to the injected service container
// (logger, secret provider, messaging client, metrics manager, service
// clients).
func (c *Context) Dependencies() *container.Container { return c.dic }

// SetValue stores value under key in the context's values map. Keys are
// matched case-insensitively.
func (c *Context) SetValue(key, value string) {
	c.valuesMu.Lock()
	defer c.valuesMu.Unlock()
	c.values[strings.ToLower(key)] = value
}

// GetValue returns the value stored under key and whether it was present.
func (c *Context) GetValue(key string) (string, bool) {
	c.valuesMu.RLock()
	defer c.valuesMu.RUnlock()
	v, ok := c.values[strings.ToLower(key)]
	return v, ok
}

// RemoveValue deletes key from the values map.
func (c *Context) RemoveValue(key string) {
	c.valuesMu.Lock()
	defer c.valuesMu.Unlock()
	delete(c.values, strings.ToLower(key))
}

// snapshotValues returns a deep copy of the values map, taken under the
// read lock, for use by Clone and by the store-and-forward engine when
// persisting context_data.
func (c *Context) snapshotValues() map[string]string {
	c.valuesMu.RLock()
	defer c.valuesMu.RUnlock()
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Values returns a deep copy of the current values map, suitable for
// persisting as StoredObject.ContextData.
func (c *Context) Values() map[string]string { return c.snapshotValues() }

// Clone copies all scalar fields and deep-copies the values map. The clone
// shares the injected services (the dependency container handle). Used by
// the trigger message processor to give each concurrently-executing
// pipeline its own context, and by the runtime after a function triggers
// an off-interval retry.
func (c *Context) Clone() interfaces.AppFunctionContext {
	return CloneContext(c)
}

// CloneContext returns the concrete *Context clone, for internal callers
// (the pipeline runtime, the trigger message processor) that need to keep
// operating on the concrete type rather than the narrower public interface.
func CloneContext(c *Context) *Context {
	return &Context{
		correlationID:       c.correlationID,
		inputContentType:    c.inputContentType,
		responseContentType: c.responseContentType,
		responseData:        append([]byte(nil), c.responseData...),
		retryData:           append([]byte(nil), c.retryData...),
		values:              c.snapshotValues(),
		dic:                 c.dic,
	}
}

// ApplyValues substitutes every "{key}" token in template with the current
// value of key (case-insensitive), returning an error naming the first
// token with no matching value.
func (c *Context) ApplyValues(template string) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(template) {
		start := strings.IndexByte(template[i:], '{')
		if start == -1 {
			b.WriteString(template[i:])
			break
		}
		start += i
		b.WriteString(template[i:start])

		end := strings.IndexByte(template[start:], '}')
		if end == -1 {
			b.WriteString(template[start:])
			break
		}
		end += start

		key := template[start+1 : end]
		value, ok := c.GetValue(key)
		if !ok {
			return "", fmt.Errorf("no value found for template key %q", key)
		}
		b.WriteString(value)
		i = end + 1
	}
	return b.String(), nil
}

// FromContextData rebuilds a Context from a stored object's persisted
// context data and correlation id, for use by the store-and-forward retry
// loop.
func FromContextData(correlationID string, data map[string]string, dic *container.Container) *Context {
	c := NewContext(correlationID, "", dic)
	for k, v := range data {
		c.values[strings.ToLower(k)] = v
	}
	return c
}

// ClearRetryData is exported for the pipeline runtime, which lives in a
// different package and must clear the buffer before every transform call
// without otherwise exposing mutation of unrelated fields.
func ClearRetryData(c *Context) { c.clearRetryData() }

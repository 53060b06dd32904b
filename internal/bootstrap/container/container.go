// Package container implements the dependency-injection container the
// service assembly builds at startup and every function context carries a
// handle to. It is a process-wide, read-mostly mapping from a typed key to
// a concrete service instance.
package container

import "sync"

// Key identifies an entry in the container. Using a distinct string type
// (rather than bare strings) keeps lookups from colliding with arbitrary
// caller-chosen names.
type Key string

// Well-known keys for the services the SDK injects into every function
// context.
const (
	LoggerKey          Key = "Logger"
	SecretProviderKey  Key = "SecretProvider"
	MessagingClientKey Key = "MessagingClient"
	MetricsManagerKey  Key = "MetricsManager"
)

// Container is a typed, concurrency-safe service locator. It is built once
// during service Initialize and treated as read-mostly afterward; writes
// (registrations) only happen during bring-up, so the lock mostly protects
// against late registrations racing early reads.
type Container struct {
	mu       sync.RWMutex
	entries  map[Key]any
	teardown []func()
}

// New creates an empty Container.
func New() *Container {
	return &Container{entries: make(map[Key]any)}
}

// Register stores value under key, overwriting any previous entry.
func (c *Container) Register(key Key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

// RegisterTeardown records a teardown closure to run during shutdown, in
// LIFO order relative to other registered teardowns.
func (c *Container) RegisterTeardown(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardown = append(c.teardown, fn)
}

// Get returns the value registered under key, or nil if absent.
func (c *Container) Get(key Key) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[key]
}

// RunTeardowns invokes every registered teardown closure in LIFO order.
func (c *Container) RunTeardowns() {
	c.mu.Lock()
	fns := make([]func(), len(c.teardown))
	copy(fns, c.teardown)
	c.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

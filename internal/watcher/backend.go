package watcher

import "context"

// Backend is the platform-specific notification mechanism.
type Backend interface {
	// Watch subscribes to creations in dir. Subdirectories are not followed.
	Watch(dir string) error

	// Start begins delivering events and returns immediately. Delivery stops
	// when ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop stops delivery and releases all resources. Events and Errors are
	// closed once Stop returns.
	Stop() error

	// Events returns the channel of settled creations.
	Events() <-chan Event

	// Errors returns the channel of backend errors.
	Errors() <-chan error
}

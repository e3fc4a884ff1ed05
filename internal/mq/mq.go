// Package mq carries notification jobs across a message broker so
// non-critical email delivery happens off the request path.
package mq

import "context"

// Channel names used by the auth flows.
const (
	ChannelWelcome = "auth.welcome"
)

// Job is a notification task delivered to a worker.
type Job struct {
	// Kind names the notification, e.g. "welcome".
	Kind string `json:"kind"`

	// Email is the recipient address.
	Email string `json:"email"`

	// Name is the recipient display name, possibly empty.
	Name string `json:"name"`
}

// Handler processes a job. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, job Job) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, job Job) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// Bus wraps a backend with a stable API.
type Bus struct {
	backend Backend
}

// New constructs a Bus for the provided backend.
func New(backend Backend) *Bus {
	return &Bus{backend: backend}
}

// Publish sends a job to the named channel.
func (b *Bus) Publish(ctx context.Context, channel string, job Job) (string, error) {
	return b.backend.Publish(ctx, channel, job)
}

// Subscribe consumes jobs from the named channel.
func (b *Bus) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return b.backend.Subscribe(ctx, channel, handler)
}

// Close closes the underlying backend.
func (b *Bus) Close() error {
	return b.backend.Close()
}

// Package kv provides hash-topic storage for short-lived state: a bounded
// in-memory LocalStore, a Redis backed RemoteStore and a Facade that serves
// from the remote tier and fails over to the local one while Redis is away.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned by a store that has been shut down.
var ErrClosed = errors.New("kv: store closed")

// Store is a topic scoped hash-map store. A topic is a named group of
// string fields; the bool result of the getters reports whether the topic
// exists.
type Store interface {
	// Put replaces the full field set of topic. A positive ttl expires the
	// topic and all its fields after ttl.
	Put(ctx context.Context, topic string, fields map[string]string, ttl time.Duration) error

	// Get returns every field of topic.
	Get(ctx context.Context, topic string) (map[string]string, bool, error)

	// GetField returns a single field. A missing field reports false.
	GetField(ctx context.Context, topic, field string) (string, bool, error)

	// GetFields returns the requested fields in request order, silently
	// omitting the ones that are not set.
	GetFields(ctx context.Context, topic string, fields ...string) ([]string, bool, error)

	// Merge upserts fields into topic, preserving other fields and any TTL.
	Merge(ctx context.Context, topic string, fields map[string]string) error

	// Remove deletes the named fields, or the whole topic when no keys are given.
	Remove(ctx context.Context, topic string, keys ...string) error

	// SetIfAbsent creates a scalar entry named topic unless a hash topic or
	// scalar entry with that name already exists.
	SetIfAbsent(ctx context.Context, topic, value string, ttl time.Duration) (bool, error)

	// CompareAndSwapField sets field to next only if it currently holds old.
	CompareAndSwapField(ctx context.Context, topic, field, old, next string) (bool, error)
}

// TransportError is returned by RemoteStore for every failure talking to the
// remote server. The Facade recovers from it by falling back to the local tier.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("kv: remote %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is, or wraps, a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func cloneFields(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

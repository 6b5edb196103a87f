// internal/store/store.go
package store

import (
	"context"
	"errors"
	"time"
)

// ErrConflict is returned by Transact when a watched key was written by
// another caller between the read and the commit. The transaction is not
// retried internally; retry policy belongs to the caller.
var ErrConflict = errors.New("store: transaction conflict")

// Entry is a single key/value pair returned by Scan.
type Entry struct {
	Key   string
	Value []byte
}

// Write describes one write in a transaction's commit set. A Write with
// Delete set removes the key; otherwise the key is set to Value with TTL.
type Write struct {
	Key    string
	Value  []byte
	TTL    time.Duration
	Delete bool
}

// View provides reads inside a transaction. Values observed through a View
// are the ones the conflict check is anchored to.
type View interface {
	// Get returns the value for key, or found=false if the key is absent.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
}

// Store is a key-value store with per-key expiry and an optimistic
// transaction primitive.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// Scan returns every entry whose key begins with prefix.
	Scan(ctx context.Context, prefix string) ([]Entry, error)

	// Transact runs fn against a snapshot view and commits the returned
	// write set only if none of the watched keys changed in between.
	// A concurrent write to a watched key yields ErrConflict with nothing
	// committed. fn may abort by returning an error, which is passed
	// through unchanged; returning (nil, nil) commits nothing.
	Transact(ctx context.Context, watch []string, fn func(ctx context.Context, v View) ([]Write, error)) error

	// QueuePush appends value to the named queue for an external consumer.
	QueuePush(ctx context.Context, queue string, value []byte) error
}

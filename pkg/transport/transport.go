// Package transport provides the FIFO queues the messenger moves envelopes
// through.
//
// A Transport offers non-blocking send and receive of fixed-size envelopes.
// A full or empty queue is reported with the ErrFull and ErrEmpty sentinels,
// which callers treat as transient and retry. Any other error means the
// queue itself is unusable.
//
// Two implementations exist:
//
//   - Memory: a bounded in-process FIFO that also implements timeout.Waiter,
//     so a receiver can park until the next send
//   - SysV: a System V kernel message queue, reachable by any process in the
//     same IPC namespace (linux/amd64 and linux/arm64 only)
package transport

import (
	"errors"
	"fmt"

	"github.com/billm/baaaht/messenger/pkg/envelope"
	"github.com/billm/baaaht/messenger/pkg/types"
)

var (
	// ErrFull is returned by TrySend when the queue cannot take another envelope
	ErrFull = errors.New("transport: queue full")
	// ErrEmpty is returned by TryReceive when no envelope is queued
	ErrEmpty = errors.New("transport: queue empty")
)

// Transport is a tagged FIFO with non-blocking operations
type Transport interface {
	// ID identifies the underlying queue resource
	ID() types.ID
	// TrySend enqueues a copy of env or returns ErrFull
	TrySend(env envelope.Envelope) error
	// TryReceive dequeues the oldest envelope or returns ErrEmpty
	TryReceive() (envelope.Envelope, error)
	// Close releases the queue resource
	Close() error
}

// Factory allocates a fresh transport
type Factory func() (Transport, error)

// Kinds understood by New
const (
	KindMemory = "memory"
	KindSysV   = "sysv"
)

// New allocates a transport of the given kind. capacity only applies to
// the memory transport; the kernel sizes SysV queues itself.
func New(kind string, capacity int) (Transport, error) {
	switch kind {
	case KindMemory:
		m, err := NewMemory(capacity)
		if err != nil {
			return nil, err
		}
		return m, nil
	case KindSysV:
		s, err := NewSysV()
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, types.NewError(types.ErrCodeInvalidArgument, fmt.Sprintf("unknown transport kind: %s", kind))
	}
}

// NewFactory returns a Factory that calls New with fixed arguments
func NewFactory(kind string, capacity int) Factory {
	return func() (Transport, error) {
		return New(kind, capacity)
	}
}

// IsTransient reports whether err only means the queue was momentarily
// full or empty
func IsTransient(err error) bool {
	return errors.Is(err, ErrFull) || errors.Is(err, ErrEmpty)
}

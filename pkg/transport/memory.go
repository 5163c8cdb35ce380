package transport

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/billm/baaaht/messenger/pkg/envelope"
	"github.com/billm/baaaht/messenger/pkg/timeout"
	"github.com/billm/baaaht/messenger/pkg/types"
)

var memorySeq atomic.Uint64

var _ timeout.Waiter = (*Memory)(nil)

// Memory is a bounded multi-producer FIFO living in process memory
type Memory struct {
	id     types.ID
	queue  chan envelope.Envelope
	notify chan struct{}
	closed atomic.Bool
}

// NewMemory creates a memory transport holding at most capacity envelopes
func NewMemory(capacity int) (*Memory, error) {
	if capacity <= 0 {
		return nil, types.NewError(types.ErrCodeInvalidArgument,
			fmt.Sprintf("memory transport capacity must be positive, got %d", capacity))
	}
	return &Memory{
		id:     types.NewID(fmt.Sprintf("mem-%d", memorySeq.Add(1))),
		queue:  make(chan envelope.Envelope, capacity),
		notify: make(chan struct{}, 1),
	}, nil
}

// ID returns the transport identifier
func (m *Memory) ID() types.ID {
	return m.id
}

// TrySend enqueues env without blocking
func (m *Memory) TrySend(env envelope.Envelope) error {
	if m.closed.Load() {
		return types.NewError(types.ErrCodeUnavailable, "memory transport closed: "+m.id.String())
	}
	select {
	case m.queue <- env:
	default:
		return ErrFull
	}
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

// TryReceive dequeues the oldest envelope without blocking
func (m *Memory) TryReceive() (envelope.Envelope, error) {
	if m.closed.Load() {
		return envelope.Envelope{}, types.NewError(types.ErrCodeUnavailable, "memory transport closed: "+m.id.String())
	}
	select {
	case env := <-m.queue:
		return env, nil
	default:
		return envelope.Envelope{}, ErrEmpty
	}
}

// Wait blocks until an envelope was sent since the last Wait or d passes
func (m *Memory) Wait(d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-m.notify:
	case <-timer.C:
	}
}

// Len returns the number of queued envelopes
func (m *Memory) Len() int {
	return len(m.queue)
}

// Close marks the transport unusable. Queued envelopes are discarded.
func (m *Memory) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return types.NewError(types.ErrCodeFailedPrecondition, "memory transport already closed: "+m.id.String())
	}
	for {
		select {
		case <-m.queue:
		default:
			return nil
		}
	}
}

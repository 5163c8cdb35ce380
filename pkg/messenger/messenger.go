package messenger

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/billm/baaaht/messenger/internal/config"
	"github.com/billm/baaaht/messenger/internal/logger"
	"github.com/billm/baaaht/messenger/pkg/envelope"
	"github.com/billm/baaaht/messenger/pkg/timeout"
	"github.com/billm/baaaht/messenger/pkg/transport"
	"github.com/billm/baaaht/messenger/pkg/types"
)

// Callback receives user payloads on the worker goroutine.
// payload is owned by the callback; size always equals len(payload).
type Callback func(payload []byte, size int)

// Messenger delivers messages from any number of producers to a single
// callback, serially, on one worker goroutine
type Messenger struct {
	cfg     config.MessengerConfig
	logger  *logger.Logger
	clock   timeout.Clock
	factory transport.Factory
	fatal   func(err error)

	// initMu guards the stopped -> running transition and teardown
	initMu  sync.Mutex
	current atomic.Pointer[run]

	statusMu sync.RWMutex
	status   types.Status

	leakMu sync.Mutex
	leaked []types.ID

	sent       atomic.Uint64
	received   atomic.Uint64
	dispatched atomic.Uint64
	actions    atomic.Uint64
	dropped    atomic.Uint64
	idle       atomic.Uint64
	runs       atomic.Uint64
}

// run is one initialized lifetime of the messenger: a transport, the worker
// draining it, and the callback registered during that lifetime
type run struct {
	transport transport.Transport
	worker    conc.WaitGroup
	ready     chan struct{}
	kill      atomic.Bool
	exited    atomic.Bool
	workerID  atomic.Uint64
	callback  atomic.Pointer[Callback]
	failure   atomic.Pointer[types.Error]
	startedAt types.Timestamp

	// sendMu is held shared by every enqueue on this run and exclusively
	// while the run is released, so the transport is never closed under a
	// producer
	sendMu   sync.RWMutex
	released bool
}

// New creates a messenger. The worker is not started until the first
// RegisterCallback, Send or Kill.
func New(cfg config.MessengerConfig, log *logger.Logger, opts ...Option) (*Messenger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, types.WrapError(types.ErrCodeInvalidArgument, "invalid messenger configuration", err)
	}

	if log == nil {
		var err error
		log, err = logger.NewDefault()
		if err != nil {
			return nil, types.WrapError(types.ErrCodeInternal, "failed to create default logger", err)
		}
	}

	m := &Messenger{
		cfg:     cfg,
		logger:  log.With("component", "messenger"),
		clock:   timeout.RealClock{},
		factory: transport.NewFactory(cfg.Transport, cfg.QueueCapacity),
		status:  types.StatusStopped,
	}
	m.fatal = m.abort

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// RegisterCallback installs the handler for user payloads. Registering a nil
// callback, or a second callback without an intervening Kill, is a contract
// violation and panics.
func (m *Messenger) RegisterCallback(cb Callback) error {
	if cb == nil {
		panic(types.Violation("messenger: callback cannot be nil"))
	}

	r, err := m.ensureStarted()
	if err != nil {
		return err
	}

	if !r.callback.CompareAndSwap(nil, &cb) {
		panic(types.Violation("messenger: a callback is already registered; kill the messenger before registering another"))
	}

	m.logger.Debug("Callback registered", "transport", r.transport.ID())
	return nil
}

// Send copies size bytes of buf into an envelope and enqueues it. The caller
// may reuse buf as soon as Send returns.
//
// A nil buf, a non-positive size or a size above the configured maximum is
// a contract violation and panics. Failing to enqueue within the configured
// timeout, or sending to a worker that panicked, is fatal and goes to the
// fatal handler, which panics by default.
// The only errors returned are environmental ones from starting the worker,
// or the fatal error itself when a custom fatal handler returns.
func (m *Messenger) Send(buf []byte, size int) error {
	if buf == nil {
		panic(types.Violation("messenger: send buffer cannot be nil"))
	}
	if size <= 0 {
		panic(types.Violation(fmt.Sprintf("messenger: send size must be positive, got %d", size)))
	}
	if size > m.cfg.MaxMessageSize {
		panic(types.Violation(fmt.Sprintf("messenger: send size %d exceeds maximum %d", size, m.cfg.MaxMessageSize)))
	}

	env := envelope.BuildUserMessage(buf, size)
	for {
		r, err := m.ensureStarted()
		if err != nil {
			return err
		}

		accepted, err := m.enqueue(r, env)
		if err != nil {
			return err
		}
		if accepted {
			m.sent.Add(1)
			return nil
		}

		// r was killed while this send was in flight; the next run takes it
		runtime.Gosched()
	}
}

// SendBytes sends the whole of payload
func (m *Messenger) SendBytes(payload []byte) error {
	return m.Send(payload, len(payload))
}

// Kill stops the worker and returns the messenger to its stopped state.
// It blocks until the worker goroutine has exited. Killing a stopped
// messenger starts it first, then stops it again.
//
// Unless ReleaseOnKill is set, the transport is left allocated and counted
// in Stats().Leaked. Sends already in flight on the killed run finish, or
// move to the next run, before the transport is released. If the worker
// failed, Kill returns that failure as a HANDLER_FAILED error. Calling Kill
// from inside the callback is a contract violation, since the worker cannot
// wait for itself.
func (m *Messenger) Kill() error {
	r, err := m.ensureStarted()
	if err != nil {
		return err
	}
	if r.workerID.Load() == goid() {
		panic(types.Violation("messenger: Kill cannot be called from the callback"))
	}

	m.initMu.Lock()
	defer m.initMu.Unlock()

	if m.current.Load() != r {
		// Another Kill already tore this run down
		return nil
	}

	m.setStatus(types.StatusStopping)
	r.kill.Store(true)
	m.wake(r)

	recovered := r.worker.WaitAndRecover()
	m.current.Store(nil)
	m.release(r)
	m.setStatus(types.StatusStopped)

	m.logger.Info("Messenger stopped",
		"transport", r.transport.ID(),
		"uptime", m.clock.Now().Sub(r.startedAt.Time).String())

	if failure := r.failure.Load(); failure != nil {
		return failure
	}
	if recovered != nil {
		m.logger.Error("Dispatch worker panicked", "transport", r.transport.ID(), "panic", recovered.String())
		cause := recovered.AsError()
		if err, ok := recovered.Value.(error); ok {
			cause = err
		}
		return types.WrapError(types.ErrCodeHandlerFailed, "dispatch worker panicked", cause)
	}
	return nil
}

// ensureStarted runs the lazy initialization and returns the current run
func (m *Messenger) ensureStarted() (*run, error) {
	if r := m.current.Load(); r != nil {
		return r, nil
	}

	m.initMu.Lock()
	defer m.initMu.Unlock()

	if r := m.current.Load(); r != nil {
		return r, nil
	}

	m.setStatus(types.StatusStarting)

	t, err := m.factory()
	if err != nil {
		m.setStatus(types.StatusStopped)
		return nil, types.WrapError(types.ErrCodeUnavailable, "failed to allocate transport", err)
	}

	r := &run{
		transport: t,
		ready:     make(chan struct{}),
		startedAt: types.NewTimestampFromTime(m.clock.Now()),
	}

	// The worker clears the flag as its first action; observing it cleared
	// is the handshake that a receiver exists before any producer enqueues.
	r.kill.Store(true)
	r.worker.Go(func() { m.dispatch(r) })
	<-r.ready
	if r.kill.Load() {
		panic(types.Violation("messenger: worker signalled ready without clearing the kill flag"))
	}

	m.current.Store(r)
	m.runs.Add(1)
	m.setStatus(types.StatusRunning)

	m.logger.Info("Messenger started",
		"transport", t.ID(),
		"timeout", m.cfg.Timeout.String(),
		"max_message_size", m.cfg.MaxMessageSize)

	return r, nil
}

// enqueue sends env on r with the bounded retry protocol. It returns false
// when r stopped taking messages before env was accepted. Running out of
// time, a failed worker or a transport that fails outright is fatal.
func (m *Messenger) enqueue(r *run, env envelope.Envelope) (bool, error) {
	r.sendMu.RLock()
	defer r.sendMu.RUnlock()

	if r.released {
		return false, nil
	}

	var (
		failed error
		stale  bool
	)
	tracker := timeout.StartWithClock(m.clock, m.cfg.Timeout)
	ok, err := timeout.Retry(tracker, m.cfg.PollInterval, func() (bool, error) {
		if failure := r.failure.Load(); failure != nil {
			failed = failure
			return true, nil
		}
		if r.exited.Load() {
			stale = true
			return true, nil
		}

		err := r.transport.TrySend(env)
		if err == nil {
			return true, nil
		}
		if transport.IsTransient(err) {
			return false, nil
		}
		return false, err
	})

	switch {
	case failed != nil:
		return false, m.fail(failed)
	case stale:
		return false, nil
	case err != nil:
		return false, m.fail(types.WrapError(types.ErrCodeInternal,
			fmt.Sprintf("enqueue on %s failed", r.transport.ID()), err))
	case !ok:
		return false, m.fail(types.NewError(types.ErrCodeTimeout,
			fmt.Sprintf("enqueue on %s did not complete within %s", r.transport.ID(), m.cfg.Timeout)))
	}
	return true, nil
}

// wake enqueues ActionNone so the worker sees the kill flag without waiting
// out a full receive timeout. Failing to wake only delays shutdown.
func (m *Messenger) wake(r *run) {
	wakeup := envelope.BuildAction(envelope.ActionNone)
	tracker := timeout.StartWithClock(m.clock, m.cfg.Timeout)

	ok, err := timeout.Retry(tracker, m.cfg.PollInterval, func() (bool, error) {
		if r.exited.Load() {
			return true, nil
		}
		err := r.transport.TrySend(wakeup)
		if err == nil {
			return true, nil
		}
		if transport.IsTransient(err) {
			return false, nil
		}
		return false, err
	})
	if err != nil || !ok {
		m.logger.Warn("Failed to wake dispatch worker", "transport", r.transport.ID(), "error", err)
	}
}

// receive takes one envelope with the bounded retry protocol. Running out
// of time is not an error; the dispatch loop simply polls again.
func (m *Messenger) receive(r *run) (envelope.Envelope, bool) {
	tracker := timeout.StartWithClock(m.clock, m.cfg.Timeout)
	waiter, _ := r.transport.(timeout.Waiter)

	var env envelope.Envelope
	ok, err := timeout.RetryWait(tracker, m.cfg.PollInterval, waiter, func() (bool, error) {
		e, err := r.transport.TryReceive()
		if err == nil {
			env = e
			return true, nil
		}
		if transport.IsTransient(err) {
			return false, nil
		}
		return false, err
	})
	if err != nil {
		m.logger.Error("Receive failed", "transport", r.transport.ID(), "error", err)
		time.Sleep(tracker.Remaining())
		return envelope.Envelope{}, false
	}
	return env, ok
}

// dispatch is the worker body
func (m *Messenger) dispatch(r *run) {
	defer r.exited.Store(true)
	defer func() {
		if v := recover(); v != nil {
			m.workerFailed(r, v)
		}
	}()

	r.workerID.Store(goid())
	r.kill.Store(false)
	close(r.ready)

	for !r.kill.Load() {
		m.logger.Debug("Waiting for message", "transport", r.transport.ID())

		env, ok := m.receive(r)
		if !ok {
			m.idle.Add(1)
			continue
		}
		m.handle(r, env)
	}
}

// handle dispatches one envelope by tag
func (m *Messenger) handle(r *run, env envelope.Envelope) {
	switch env.Tag {
	case envelope.TagInternalAction:
		m.actions.Add(1)
		m.logger.Debug("Received internal action", "action", env.Action.String())
	case envelope.TagUserMessage:
		m.received.Add(1)
		cb := r.callback.Load()
		if cb == nil {
			m.dropped.Add(1)
			m.logger.Debug("No callback registered, message discarded", "size", env.Size)
			return
		}
		m.logger.Debug("Dispatching user message", "size", env.Size)
		(*cb)(env.Payload(), env.Size)
		m.dispatched.Add(1)
	default:
		panic(types.Violation(fmt.Sprintf("messenger: received envelope with unknown %s", env.Tag)))
	}
}

// workerFailed records a panic from the worker, marks the messenger failed
// and raises the failure through the fatal handler. Producers that send to
// the failed run get the same error.
func (m *Messenger) workerFailed(r *run, v any) {
	cause, ok := v.(error)
	if !ok {
		cause = fmt.Errorf("%v", v)
	}
	failure := types.WrapError(types.ErrCodeHandlerFailed,
		fmt.Sprintf("dispatch worker on %s panicked", r.transport.ID()), cause)

	r.failure.Store(failure)
	m.setStatus(types.StatusFailed)
	m.logger.Error("Dispatch worker panicked",
		"transport", r.transport.ID(),
		"error", failure,
		"stack", string(debug.Stack()))

	// The worker runs under conc, which would capture a panic raised here
	go m.fatal(failure)
}

// release frees or records the transport of a finished run. It waits for
// sends in flight on r; later sends on r move to the next run.
func (m *Messenger) release(r *run) {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	r.released = true

	if m.cfg.ReleaseOnKill {
		if err := r.transport.Close(); err != nil {
			m.logger.Warn("Failed to release transport", "transport", r.transport.ID(), "error", err)
		}
		return
	}

	m.leakMu.Lock()
	m.leaked = append(m.leaked, r.transport.ID())
	m.leakMu.Unlock()
	m.logger.Debug("Transport left allocated", "transport", r.transport.ID())
}

// fail reports a fatal condition. The default handler panics; if a custom
// handler returns, the error is handed back to the caller.
func (m *Messenger) fail(err error) error {
	m.logger.Error("Fatal messenger condition", "error", err)
	m.fatal(err)
	return err
}

func (m *Messenger) abort(err error) {
	panic(err)
}

func (m *Messenger) setStatus(s types.Status) {
	m.statusMu.Lock()
	m.status = s
	m.statusMu.Unlock()
}

// Status returns the lifecycle state
func (m *Messenger) Status() types.Status {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.status
}

// Leaked returns the transports left allocated by earlier Kill calls
func (m *Messenger) Leaked() []types.ID {
	m.leakMu.Lock()
	defer m.leakMu.Unlock()
	return append([]types.ID(nil), m.leaked...)
}

// Stats returns messenger statistics
func (m *Messenger) Stats() Stats {
	stats := Stats{
		Sent:       m.sent.Load(),
		Received:   m.received.Load(),
		Dispatched: m.dispatched.Load(),
		Actions:    m.actions.Load(),
		Dropped:    m.dropped.Load(),
		IdleCycles: m.idle.Load(),
		Runs:       m.runs.Load(),
		Status:     m.Status(),
		Leaked:     len(m.Leaked()),
	}
	if r := m.current.Load(); r != nil {
		stats.TransportID = r.transport.ID()
		stats.StartedAt = r.startedAt
	}
	return stats
}

// String returns a string representation of the messenger
func (m *Messenger) String() string {
	return fmt.Sprintf("Messenger{Status: %s, %s}", m.Status(), m.Stats())
}

// Stats represents messenger statistics
type Stats struct {
	Sent        uint64          `json:"sent"`
	Received    uint64          `json:"received"`
	Dispatched  uint64          `json:"dispatched"`
	Actions     uint64          `json:"actions"`
	Dropped     uint64          `json:"dropped"`
	IdleCycles  uint64          `json:"idle_cycles"`
	Runs        uint64          `json:"runs"`
	Leaked      int             `json:"leaked"`
	Status      types.Status    `json:"status"`
	TransportID types.ID        `json:"transport_id,omitempty"`
	StartedAt   types.Timestamp `json:"started_at,omitempty"`
}

// String returns a string representation of the stats
func (s Stats) String() string {
	return fmt.Sprintf("Stats{Sent: %d, Received: %d, Dispatched: %d, Actions: %d, Dropped: %d, Idle: %d, Runs: %d, Leaked: %d}",
		s.Sent, s.Received, s.Dispatched, s.Actions, s.Dropped, s.IdleCycles, s.Runs, s.Leaked)
}

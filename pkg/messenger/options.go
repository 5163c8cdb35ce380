package messenger

import (
	"github.com/billm/baaaht/messenger/pkg/timeout"
	"github.com/billm/baaaht/messenger/pkg/transport"
)

// Option configures a messenger at construction
type Option func(*Messenger)

// WithClock sets the clock used for every timeout budget
func WithClock(clock timeout.Clock) Option {
	return func(m *Messenger) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithTransportFactory overrides how each run allocates its transport
func WithTransportFactory(factory transport.Factory) Option {
	return func(m *Messenger) {
		if factory != nil {
			m.factory = factory
		}
	}
}

// WithFatalHandler replaces the default panic on unrecoverable send
// failures. If the handler returns, Send returns the error it was given.
func WithFatalHandler(fn func(err error)) Option {
	return func(m *Messenger) {
		if fn != nil {
			m.fatal = fn
		}
	}
}

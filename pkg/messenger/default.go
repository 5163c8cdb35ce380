package messenger

import (
	"sync"

	"github.com/billm/baaaht/messenger/internal/config"
	"github.com/billm/baaaht/messenger/internal/logger"
)

var (
	defaultMu       sync.Mutex
	defaultInstance *Messenger
)

// Default returns the process-wide messenger, creating it from the default
// configuration on first use
func Default() *Messenger {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultInstance == nil {
		m, err := New(config.DefaultMessengerConfig(), logger.Global())
		if err != nil {
			// The default configuration always validates
			panic(err)
		}
		defaultInstance = m
	}
	return defaultInstance
}

// SetDefault replaces the process-wide messenger. The previous instance is
// not killed.
func SetDefault(m *Messenger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultInstance = m
}

// RegisterCallback registers cb on the process-wide messenger
func RegisterCallback(cb Callback) error {
	return Default().RegisterCallback(cb)
}

// Send sends size bytes of buf through the process-wide messenger
func Send(buf []byte, size int) error {
	return Default().Send(buf, size)
}

// Kill stops the process-wide messenger
func Kill() error {
	return Default().Kill()
}

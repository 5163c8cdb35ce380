// Package messenger delivers small messages from any number of producer
// goroutines to a single callback that runs on a dedicated worker goroutine.
//
// A Messenger starts lazily. The first call to RegisterCallback, Send or
// Kill allocates a transport and starts the worker, and returns only once
// the worker is ready to receive. Messages are delivered in enqueue order,
// one at a time, with a payload of at most envelope.MaxMessageSize bytes.
//
// Basic usage:
//
//	m, err := messenger.New(config.DefaultMessengerConfig(), log)
//	if err != nil {
//		return err
//	}
//	_ = m.RegisterCallback(func(payload []byte, size int) {
//		fmt.Printf("got %d bytes\n", size)
//	})
//	_ = m.SendBytes([]byte("hello"))
//	_ = m.Kill()
//
// Every producer-side operation is bounded by the configured timeout.
// Failing to enqueue in time is fatal; an idle worker simply polls again.
// Misuse, for example an oversized payload or a second callback, panics
// with a CONTRACT_VIOLATION error.
//
// After Kill the messenger can be used again: the next call starts a new
// worker on a new transport.
package messenger

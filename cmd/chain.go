package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/billm/baaaht/messenger/pkg/envelope"
	"github.com/billm/baaaht/messenger/pkg/messenger"
	"github.com/billm/baaaht/messenger/pkg/types"
)

var (
	chainSize     int
	chainLimit    uint8
	chainDeadline time.Duration
)

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Run the counter chain: each delivery increments the buffer and sends it on",
	Long: `Chain registers a callback that increments every byte of the received
buffer and sends the result back through the messenger, then sends a zeroed
buffer. The chain ends when the bytes reach --limit, after limit+1 deliveries.`,
	RunE: runChainCommand,
}

func init() {
	chainCmd.Flags().IntVar(&chainSize, "size", 50, "Buffer size in bytes")
	chainCmd.Flags().Uint8Var(&chainLimit, "limit", 0xFE, "Byte value that ends the chain")
	chainCmd.Flags().DurationVar(&chainDeadline, "deadline", 30*time.Second,
		"Fail if the chain has not finished within this duration")
}

func runChainCommand(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}

	m, err := newMessenger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, chainDeadline)
	defer cancel()

	result, err := runChain(ctx, m, chainSize, chainLimit)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "chain finished: %d invocations in %s, final byte 0x%02X\n",
		result.Invocations, result.Elapsed, result.Final[0])
	rootLog.Info("Chain finished", "stats", m.Stats().String())
	return nil
}

// ChainResult is the outcome of a counter chain
type ChainResult struct {
	Invocations int
	Final       []byte
	Elapsed     time.Duration
}

// runChain drives the counter chain on m and kills it afterwards
func runChain(ctx context.Context, m *messenger.Messenger, size int, limit uint8) (ChainResult, error) {
	if size <= 0 || size > envelope.MaxMessageSize {
		return ChainResult{}, types.NewError(types.ErrCodeInvalidArgument,
			fmt.Sprintf("chain size must be within 1..%d, got %d", envelope.MaxMessageSize, size))
	}

	var (
		result   ChainResult
		sendErr  error
		finished = make(chan struct{})
		once     sync.Once
	)
	finish := func() { once.Do(func() { close(finished) }) }

	err := m.RegisterCallback(func(payload []byte, n int) {
		result.Invocations++
		result.Final = payload
		if payload[0] == limit {
			finish()
			return
		}
		for i := range payload {
			payload[i]++
		}
		if err := m.Send(payload, n); err != nil {
			sendErr = err
			finish()
		}
	})
	if err != nil {
		return ChainResult{}, err
	}

	start := time.Now()
	if err := m.Send(make([]byte, size), size); err != nil {
		return ChainResult{}, err
	}

	var waitErr error
	select {
	case <-finished:
	case <-ctx.Done():
		waitErr = types.WrapError(types.ErrCodeTimeout, "chain did not finish", ctx.Err())
	}
	result.Elapsed = time.Since(start)

	// Kill waits for the worker, so result is safe to read afterwards
	if err := m.Kill(); err != nil {
		return result, err
	}
	if waitErr != nil {
		return result, waitErr
	}
	if sendErr != nil {
		return result, sendErr
	}
	return result, nil
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/billm/baaaht/messenger/pkg/envelope"
	"github.com/billm/baaaht/messenger/pkg/messenger"
	"github.com/billm/baaaht/messenger/pkg/types"
)

var (
	runCount    int
	runSize     int
	runDeadline time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Send a burst of messages and report delivery statistics",
	RunE:  runBurstCommand,
}

func init() {
	runCmd.Flags().IntVar(&runCount, "count", 1000, "Number of messages to send")
	runCmd.Flags().IntVar(&runSize, "size", 32, "Payload size in bytes")
	runCmd.Flags().DurationVar(&runDeadline, "deadline", 30*time.Second,
		"Fail if delivery has not finished within this duration")
}

func runBurstCommand(cmd *cobra.Command, args []string) error {
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
	ctx, cancel := context.WithTimeout(ctx, runDeadline)
	defer cancel()

	start := time.Now()
	stats, err := runBurst(ctx, m, runCount, runSize)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Fprintf(cmd.OutOrStdout(), "delivered %d of %d messages in %s\n%s\n",
		stats.Dispatched, runCount, elapsed, stats)
	return nil
}

// runBurst sends count messages of size bytes through m, waits for all of
// them to be delivered and kills m
func runBurst(ctx context.Context, m *messenger.Messenger, count, size int) (messenger.Stats, error) {
	if count <= 0 {
		return messenger.Stats{}, types.NewError(types.ErrCodeInvalidArgument,
			fmt.Sprintf("count must be positive, got %d", count))
	}
	if size <= 0 || size > envelope.MaxMessageSize {
		return messenger.Stats{}, types.NewError(types.ErrCodeInvalidArgument,
			fmt.Sprintf("size must be within 1..%d, got %d", envelope.MaxMessageSize, size))
	}

	var delivered atomic.Int64
	done := make(chan struct{})
	err := m.RegisterCallback(func([]byte, int) {
		if delivered.Add(1) == int64(count) {
			close(done)
		}
	})
	if err != nil {
		return messenger.Stats{}, err
	}

	buf := make([]byte, size)
	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			break
		}
		buf[0] = byte(i)
		if err := m.Send(buf, size); err != nil {
			return m.Stats(), err
		}
	}

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = types.WrapError(types.ErrCodeTimeout,
			fmt.Sprintf("delivered %d of %d messages", delivered.Load(), count), ctx.Err())
	}

	if err := m.Kill(); err != nil {
		return m.Stats(), err
	}
	return m.Stats(), waitErr
}

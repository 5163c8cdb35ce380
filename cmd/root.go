package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/billm/baaaht/messenger/internal/config"
	"github.com/billm/baaaht/messenger/internal/logger"
	"github.com/billm/baaaht/messenger/pkg/messenger"
)

var (
	// CLI flags
	cfgFile   string
	logLevel  string
	logFormat string
	logOutput string
	transport string
	timeout   time.Duration

	// Global variables
	rootLog *logger.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "messenger",
	Short: "Baaaht Messenger - single-consumer message delivery to a worker goroutine",
	Long: `Messenger delivers small fixed-size messages from any number of producers
to a single callback running on a dedicated worker goroutine, through either
an in-process queue or a System V kernel message queue.

The subcommands drive the messenger through its delivery scenarios and report
what happened.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// setup loads configuration, applies CLI overrides and initializes logging
func setup() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg.ApplyOverrides(config.OverrideOptions{
		LogLevel:  logLevel,
		LogFormat: logFormat,
		LogOutput: logOutput,
		Transport: transport,
		Timeout:   timeout,
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := initLogger(cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	rootLog.Debug("Configuration loaded", "config", cfg.String())
	return cfg, nil
}

// initLogger initializes the global logger
func initLogger(cfg config.LoggingConfig) error {
	log, err := logger.New(cfg)
	if err != nil {
		return err
	}

	rootLog = log
	logger.SetGlobal(log)
	return nil
}

// loadConfig loads the configuration from the --config file, or from the
// default location and environment variables
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFromFile(cfgFile)
	}
	return config.Load()
}

// newMessenger builds a messenger from the loaded configuration
func newMessenger(cfg *config.Config) (*messenger.Messenger, error) {
	m, err := messenger.New(cfg.Messenger, rootLog)
	if err != nil {
		return nil, fmt.Errorf("failed to create messenger: %w", err)
	}
	return m, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log := rootLog
		if log == nil {
			log = logger.Global()
		}
		log.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	// Config file flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Config file path (default: $XDG_CONFIG_HOME/baaaht/messenger.yaml if present)")

	// Logging flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error (default: from config or env)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format: json, text (default: from config or env)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "",
		"Log output: stdout, stderr, or file path (default: from config or env)")

	// Messenger flags
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "",
		"Transport: memory, sysv (default: from config or env)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0,
		"Per-operation send and receive timeout (default: from config or env)")

	rootCmd.AddCommand(chainCmd, runCmd, versionCmd)
}

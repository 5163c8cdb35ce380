package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/billm/baaaht/messenger/internal/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		wantErr bool
	}{
		{
			name:    "valid json config to stdout",
			cfg:     config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
			wantErr: false,
		},
		{
			name:    "valid text config to stderr",
			cfg:     config.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"},
			wantErr: false,
		},
		{
			name:    "invalid log level",
			cfg:     config.LoggingConfig{Level: "invalid", Format: "json", Output: "stdout"},
			wantErr: true,
		},
		{
			name:    "invalid log format",
			cfg:     config.LoggingConfig{Level: "info", Format: "invalid", Output: "stdout"},
			wantErr: true,
		},
		{
			name:    "empty output defaults to stdout",
			cfg:     config.LoggingConfig{Level: "warning", Format: "json", Output: ""},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && logger == nil {
				t.Error("New() returned nil logger without error")
			}
		})
	}
}

func TestLoggerJSONOutputAndWith(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&buf, "json", LevelDebug)
	if err != nil {
		t.Fatalf("NewWithWriter() error = %v", err)
	}

	log.With("component", "messenger").Info("worker ready", "transport", "mem-1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to decode log line %q: %v", buf.String(), err)
	}
	if entry["msg"] != "worker ready" {
		t.Errorf("Expected msg 'worker ready', got %v", entry["msg"])
	}
	if entry["component"] != "messenger" {
		t.Errorf("Expected component attribute, got %v", entry["component"])
	}
	if entry["transport"] != "mem-1" {
		t.Errorf("Expected transport attribute, got %v", entry["transport"])
	}
}

func TestSetLevelAffectsDerivedLoggers(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&buf, "text", LevelInfo)
	if err != nil {
		t.Fatalf("NewWithWriter() error = %v", err)
	}
	child := log.With("component", "messenger")

	child.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("Expected debug to be filtered, got %q", buf.String())
	}

	log.SetLevel(LevelDebug)
	child.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("Expected debug output after SetLevel, got %q", buf.String())
	}
	if !child.Enabled(LevelDebug) {
		t.Error("Expected derived logger to report debug enabled")
	}
}

func TestFileOutputAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "messenger.log")
	log, err := New(config.LoggingConfig{Level: "info", Format: "text", Output: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	log.Info("written to file")
	if err := log.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("Expected log line in file, got %q", string(data))
	}
}

func TestGlobalLogger(t *testing.T) {
	original := Global()
	defer SetGlobal(original)

	nop := NewNop()
	SetGlobal(nop)
	if Global() != nop {
		t.Error("Expected Global() to return the instance set by SetGlobal")
	}

	if err := InitGlobal(config.LoggingConfig{Level: "bogus", Format: "text"}); err == nil {
		t.Error("Expected InitGlobal to reject an invalid level")
	}
	if Global() != nop {
		t.Error("Failed InitGlobal must not replace the global logger")
	}
}

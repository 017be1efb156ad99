package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLevelFor(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		quiet   bool
		want    slog.Level
	}{
		{"default", false, false, slog.LevelInfo},
		{"verbose", true, false, slog.LevelDebug},
		{"quiet", false, true, slog.LevelWarn},
		{"verbose_wins", true, true, slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LevelFor(tt.verbose, tt.quiet); got != tt.want {
				t.Errorf("LevelFor(%v, %v) = %v, want %v", tt.verbose, tt.quiet, got, tt.want)
			}
		})
	}
}

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "text", "JSON", "", "invalid"} {
		t.Run(format, func(t *testing.T) {
			if logger := NewLogger(format, false, false); logger == nil {
				t.Error("NewLogger returned nil")
			}
		})
	}
}

func TestNewLogger_QuietSuppressesInfo(t *testing.T) {
	logger := NewLogger("text", false, true)
	if logger.Enabled(nil, slog.LevelInfo) {
		t.Error("quiet logger should not be enabled for info")
	}
	if !logger.Enabled(nil, slog.LevelWarn) {
		t.Error("quiet logger should be enabled for warn")
	}
}

func TestNewLoggerWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLoggerWithWriter(&buf, "json", slog.LevelInfo)
	logger.Info("sample_written", "field", "sys_cpu_pct")

	output := buf.String()
	if !strings.Contains(output, "{") || !strings.Contains(output, "}") {
		t.Errorf("Expected JSON format, got: %s", output)
	}
	if !strings.Contains(output, `"field":"sys_cpu_pct"`) {
		t.Errorf("Expected attribute in output, got: %s", output)
	}
}

func TestNewLoggerWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLoggerWithWriter(&buf, "text", slog.LevelInfo)
	logger.Info("workload_started", "pid", 42)

	output := buf.String()
	if !strings.Contains(output, "workload_started") {
		t.Errorf("Expected message in output, got: %s", output)
	}
	if !strings.Contains(output, "pid=42") {
		t.Errorf("Expected pid=42 in output, got: %s", output)
	}
}

func TestNewLoggerWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "text", slog.LevelWarn)

	logger.Debug("debug msg")
	logger.Info("info msg")
	logger.Warn("warn msg")

	output := buf.String()
	if strings.Contains(output, "debug msg") || strings.Contains(output, "info msg") {
		t.Errorf("warn logger leaked lower levels: %s", output)
	}
	if !strings.Contains(output, "warn msg") {
		t.Errorf("warn logger dropped warn: %s", output)
	}
}

func TestNewLoggerWithWriter_DebugAddsSource(t *testing.T) {
	tests := []struct {
		name  string
		level slog.Level
		want  bool
	}{
		{"debug", LevelFor(true, false), true},
		{"info", LevelFor(false, false), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewLoggerWithWriter(&buf, "text", tt.level).Warn("cleanup_escalating")
			if got := strings.Contains(buf.String(), "source="); got != tt.want {
				t.Errorf("source attribute present = %v, want %v: %s", got, tt.want, buf.String())
			}
		})
	}
}

func TestNewLoggerWithWriter_NilWriter(t *testing.T) {
	logger := NewLoggerWithWriter(nil, "text", slog.LevelInfo)
	// Should not panic
	logger.Info("discarded")
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	var buf bytes.Buffer
	SetDefault(NewLoggerWithWriter(&buf, "text", slog.LevelInfo))
	slog.Info("via_default")

	if !strings.Contains(buf.String(), "via_default") {
		t.Errorf("default logger not replaced: %s", buf.String())
	}
}

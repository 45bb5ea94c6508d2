package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInit(t *testing.T) {
	tests := []struct {
		name      string
		verbosity int
		quiet     bool
		want      zerolog.Level
	}{
		{name: "default warn level", verbosity: 0, want: zerolog.WarnLevel},
		{name: "info level with -v", verbosity: 1, want: zerolog.InfoLevel},
		{name: "debug level with -vv", verbosity: 2, want: zerolog.DebugLevel},
		{name: "trace level with -vvv", verbosity: 3, want: zerolog.TraceLevel},
		{name: "error level with quiet", quiet: true, want: zerolog.ErrorLevel},
		{name: "quiet takes precedence over verbosity", verbosity: 3, quiet: true, want: zerolog.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			Init(Config{
				Verbosity: tt.verbosity,
				Quiet:     tt.quiet,
				JSON:      true,
				Writer:    buf,
			})

			if GetLevel() != tt.want {
				t.Errorf("Expected %v level, got %v", tt.want, GetLevel())
			}
		})
	}
}

func TestJSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Config{
		Verbosity: 1,
		JSON:      true,
		Writer:    buf,
	})

	Info().Msg("test message")

	output := buf.String()
	if !strings.Contains(output, `"level":"info"`) {
		t.Errorf("Expected JSON output with level field, got: %s", output)
	}
	if !strings.Contains(output, `"message":"test message"`) {
		t.Errorf("Expected JSON output with message field, got: %s", output)
	}

	// Verify it's valid JSON
	var logEntry map[string]interface{}
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Errorf("Expected valid JSON output, got error: %v", err)
	}
}

func TestConsoleOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Config{
		Verbosity: 1,
		JSON:      false,
		Writer:    buf,
	})

	Info().Msg("test message")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Errorf("Expected console output to contain message, got: %s", output)
	}
	// Should not be valid JSON
	var logEntry map[string]interface{}
	if err := json.Unmarshal([]byte(output), &logEntry); err == nil {
		t.Error("Expected non-JSON console output, but got valid JSON")
	}
}

func TestLogFiltering(t *testing.T) {
	t.Run("debug and info messages filtered at warn level", func(t *testing.T) {
		buf := &bytes.Buffer{}
		Init(Config{
			JSON:   true,
			Writer: buf,
		})

		Debug().Msg("debug message")
		Info().Msg("info message")

		if buf.String() != "" {
			t.Errorf("Expected no output for debug/info at warn level, got: %s", buf.String())
		}
	})

	t.Run("warnings logged at default level", func(t *testing.T) {
		buf := &bytes.Buffer{}
		Init(Config{
			JSON:   true,
			Writer: buf,
		})

		Warn().Msg("warning message")

		if !strings.Contains(buf.String(), "warning message") {
			t.Errorf("Expected warning message to be logged, got: %s", buf.String())
		}
	})

	t.Run("error messages logged at quiet level", func(t *testing.T) {
		buf := &bytes.Buffer{}
		Init(Config{
			Quiet:  true,
			JSON:   true,
			Writer: buf,
		})

		Info().Msg("info message")
		Error().Msg("error message")

		output := buf.String()
		if strings.Contains(output, "info message") {
			t.Errorf("Expected info to be filtered at quiet level, got: %s", output)
		}
		if !strings.Contains(output, "error message") {
			t.Errorf("Expected error message to be logged, got: %s", output)
		}
	})
}

func TestWithCommand(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Config{
		Verbosity: 1,
		JSON:      true,
		Writer:    buf,
	})

	commandLogger := WithCommand("submit")
	commandLogger.Info().Msg("test message")

	if !strings.Contains(buf.String(), `"command":"submit"`) {
		t.Errorf("Expected command field in output, got: %s", buf.String())
	}
}

func TestGet(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Config{
		Verbosity: 1,
		JSON:      true,
		Writer:    buf,
	})

	logger := Get()
	if logger == nil {
		t.Fatal("Expected Get() to return non-nil logger")
	}

	logger.Info().Msg("test message")
	if !strings.Contains(buf.String(), "test message") {
		t.Errorf("Expected message from Get() logger, got: %s", buf.String())
	}
}

func TestSetLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Config{
		Verbosity: 2,
		JSON:      true,
		Writer:    buf,
	})

	if GetLevel() != zerolog.DebugLevel {
		t.Errorf("Expected initial debug level, got %v", GetLevel())
	}

	SetLevel(zerolog.WarnLevel)
	if GetLevel() != zerolog.WarnLevel {
		t.Errorf("Expected warn level after SetLevel, got %v", GetLevel())
	}

	Info().Msg("info message")
	if buf.String() != "" {
		t.Errorf("Expected no output for info at warn level, got: %s", buf.String())
	}

	buf.Reset()
	Warn().Msg("warn message")
	if !strings.Contains(buf.String(), "warn message") {
		t.Errorf("Expected warn message to be logged, got: %s", buf.String())
	}
}

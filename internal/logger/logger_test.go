package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	log := New()
	if log.GetLevel() != zerolog.InfoLevel {
		t.Errorf("level = %v, want info", log.GetLevel())
	}
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Msg("run started")

	if !strings.Contains(buf.String(), "run started") {
		t.Errorf("Expected output to contain 'run started', got: %s", buf.String())
	}
}

func TestConfigure(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		want    zerolog.Level
		wantErr bool
	}{
		{"defaults", "", "", zerolog.InfoLevel, false},
		{"debug json", "DEBUG", "json", zerolog.DebugLevel, false},
		{"warn console", "warn", "console", zerolog.WarnLevel, false},
		{"bad level", "loud", "json", zerolog.NoLevel, true},
		{"bad format", "info", "xml", zerolog.NoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := Configure(tt.level, tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Configure() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && log.GetLevel() != tt.want {
				t.Errorf("level = %v, want %v", log.GetLevel(), tt.want)
			}
		})
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	l := FromContext(ctx)
	l.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("Expected log output from retrieved logger")
	}
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())
	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected default logger to be enabled")
	}
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]interface{}{
		"vendor_id": "AAAPL1234C",
		"window":    6,
	})
	log.Info().Msg("categorized")

	out := buf.String()
	if !strings.Contains(out, `"vendor_id":"AAAPL1234C"`) || !strings.Contains(out, `"window":6`) {
		t.Errorf("Expected output to contain fields, got: %s", out)
	}
}

func TestForRun(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	l := ForRun(ctx, "run-1", "2024-09-01")
	l.Info().Msg("step done")

	out := buf.String()
	if !strings.Contains(out, `"run_id":"run-1"`) || !strings.Contains(out, `"as_of":"2024-09-01"`) {
		t.Errorf("Expected run fields, got: %s", out)
	}
}

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInit_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})
	defer Init(Config{})

	Info().Str("image_id", "abc").Msg("segmented")

	out := buf.String()
	if !strings.Contains(out, `"image_id":"abc"`) {
		t.Errorf("expected structured field in output, got %s", out)
	}
	if !strings.Contains(out, `"message":"segmented"`) {
		t.Errorf("expected message field in output, got %s", out)
	}
}

func TestCtx_FallsBackToGlobal(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	defer Init(Config{})

	Ctx(context.Background()).Info().Msg("global")
	if !strings.Contains(buf.String(), "global") {
		t.Errorf("expected global logger to be used, got %q", buf.String())
	}

	var scoped bytes.Buffer
	ctx := WithContext(context.Background(), zerolog.New(&scoped).With().Str("request_id", "r1").Logger())
	Ctx(ctx).Info().Msg("scoped")
	if !strings.Contains(scoped.String(), `"request_id":"r1"`) {
		t.Errorf("expected scoped logger fields, got %q", scoped.String())
	}
}

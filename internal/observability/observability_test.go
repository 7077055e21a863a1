package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARNING", zerolog.WarnLevel},
		{"Error", zerolog.ErrorLevel},
		{"trace", zerolog.TraceLevel},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitLoggerJSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	logger := initLogger(&buf, "info")
	logger.Debug().Msg("hidden")
	log.Info().Str("file", "a.gz").Msg("shown")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("not a single JSON line: %q", buf.String())
	}
	if entry["message"] != "shown" || entry["file"] != "a.gz" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestDisabledTracer(t *testing.T) {
	shutdown, err := InitTracer(TracerConfig{ServiceName: "gzseek"})
	if err != nil {
		t.Fatal(err)
	}
	_, span := StartSpan(context.Background(), "open")
	EndSpan(span, errors.New("boom"))
	if span.IsRecording() {
		t.Error("no-op span is recording")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Error(err)
	}
}

func TestTracerBadProtocol(t *testing.T) {
	if _, err := InitTracer(TracerConfig{Enabled: true, Protocol: "udp"}); err == nil {
		t.Error("unknown protocol accepted")
	}
}

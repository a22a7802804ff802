package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog/log"
)

func TestNewHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Format: "json", Output: &buf})

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected a single json line, got %q: %v", buf.String(), err)
	}
	if line["message"] != "shown" || line["service"] != "nightlife" {
		t.Fatalf("unexpected log line %v", line)
	}
}

func TestFromContextCarriesIDs(t *testing.T) {
	var buf bytes.Buffer
	previous := log.Logger
	t.Cleanup(func() { log.Logger = previous })
	SetGlobalLogger(New(Config{Level: "debug", Output: &buf}))

	ctx := WithUserID(WithRequestID(context.Background(), "req-1"), "user-9")
	FromContext(ctx).Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["request_id"] != "req-1" || line["user_id"] != "user-9" {
		t.Fatalf("ids missing from %v", line)
	}
	if RequestID(ctx) != "req-1" {
		t.Fatalf("RequestID returned %q", RequestID(ctx))
	}
}

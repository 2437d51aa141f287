package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]any
	if err := json.Unmarshal(lines[len(lines)-1], &entry); err != nil {
		t.Fatalf("entry is not json: %v (%s)", err, buf.String())
	}
	return entry
}

func TestErrorCarriesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Level: ParseLevel("debug"), Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithActor(ctx, "user-9", "ADMIN")
	ctx = log.WithRaffleID(ctx, "raffle-1")
	log.Error(ctx, "draw.failed", errors.New("no tickets"))

	entry := lastEntry(t, buf)
	for key, want := range map[string]string{
		"service":    "api",
		"request_id": "req-123",
		"user_id":    "user-9",
		"actor_role": "ADMIN",
		"raffle_id":  "raffle-1",
		"error":      "no tickets",
		"message":    "draw.failed",
		"level":      "error",
	} {
		if entry[key] != want {
			t.Fatalf("%s: expected %q got %v", key, want, entry[key])
		}
	}
	if entry["stack"] == nil {
		t.Fatalf("error entries must include a stack")
	}
}

func TestChildFieldsStayOutOfParent(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Output: buf})

	parent := context.Background()
	_ = log.WithFields(parent, map[string]any{"ticket_id": "t-1"})
	log.Info(parent, "plain")

	if _, ok := lastEntry(t, buf)["ticket_id"]; ok {
		t.Fatalf("parent context picked up child field: %s", buf.String())
	}
}

func TestWarnStackIsOptIn(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Options{ServiceName: "api", Output: buf}).Warn(context.Background(), "slow")
	if _, ok := lastEntry(t, buf)["stack"]; ok {
		t.Fatalf("warn stack should be off by default")
	}

	buf.Reset()
	New(Options{ServiceName: "api", Output: buf, WarnStack: true}).Warn(context.Background(), "slow")
	if _, ok := lastEntry(t, buf)["stack"]; !ok {
		t.Fatalf("warn stack requested but missing")
	}
}

func TestDebugFilteredAtInfo(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Level: zerolog.InfoLevel, Output: buf})

	log.Debug(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug entry should be filtered; entry=%s", buf.String())
	}
}

func TestConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Options{ServiceName: "api", Format: "Console", Output: buf}).Info(context.Background(), "hello")
	if json.Valid(bytes.TrimSpace(buf.Bytes())) {
		t.Fatalf("console format should not emit json: %s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("hello")) {
		t.Fatalf("message missing: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"invalid": zerolog.InfoLevel,
		" WARN ":  zerolog.WarnLevel,
		"debug":   zerolog.DebugLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

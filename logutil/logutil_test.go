package logutil

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestTrace(t *testing.T) {
	var b bytes.Buffer
	ctx := WithLogger(context.Background(), NewLogger(&b, LevelTrace))

	TraceContext(ctx, "derived flags", "overlap_p2p_comm", true)

	out := b.String()
	if !strings.Contains(out, "level=TRACE") {
		t.Fatalf("expected TRACE level, got %q", out)
	}

	if !strings.Contains(out, "source=logutil_test.go:") {
		t.Fatalf("expected caller source, got %q", out)
	}

	if !strings.Contains(out, "overlap_p2p_comm=true") {
		t.Fatalf("expected attribute, got %q", out)
	}
}

func TestTraceDefaultLogger(t *testing.T) {
	var b bytes.Buffer
	defer slog.SetDefault(slog.Default())
	slog.SetDefault(NewLogger(&b, LevelTrace))

	Trace("decoded", "keys", 7)

	out := b.String()
	if !strings.Contains(out, "source=logutil_test.go:") {
		t.Fatalf("expected caller source, got %q", out)
	}

	if !strings.Contains(out, "keys=7") {
		t.Fatalf("expected attribute, got %q", out)
	}
}

func TestTraceDisabled(t *testing.T) {
	var b bytes.Buffer
	ctx := WithLogger(context.Background(), NewLogger(&b, slog.LevelDebug))

	TraceContext(ctx, "hidden")

	if b.Len() != 0 {
		t.Fatalf("expected no output, got %q", b.String())
	}
}

func TestFromContextDefault(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Fatal("expected default logger")
	}
}

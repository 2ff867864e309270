package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"rfm-dashboard/internal/config"
)

func TestNewLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LoggerConfig{Level: "info", Format: "json"})
	logger.Info("hello", "k", 3)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("json handler output should decode: %v (%s)", err, buf.String())
	}
	if line["msg"] != "hello" {
		t.Errorf("msg = %v, want hello", line["msg"])
	}

	buf.Reset()
	logger = NewLoggerTo(&buf, config.LoggerConfig{Level: "warn", Format: "text"})
	logger.Info("dropped")
	logger.Warn("kept")
	if strings.Contains(buf.String(), "dropped") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "msg=kept") {
		t.Errorf("text handler output missing warn line: %s", buf.String())
	}
}

func TestStartSpan_Nesting(t *testing.T) {
	ctx, parent := StartSpan(context.Background(), "analysis.run")
	_, child := StartSpan(ctx, "segment.kmeans")

	if child.TraceID != parent.TraceID {
		t.Error("child span should inherit trace id")
	}
	if child.ParentID != parent.SpanID {
		t.Error("child span should point at parent span")
	}
}

func TestSpan_FinishAndLog(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LoggerConfig{Level: "debug", Format: "text"})

	ctx, span := StartSpan(context.Background(), "rfm.build")
	span.SetTag("customers", "12")
	span.SetError(errors.New("no customers"))
	span.FinishAndLog(ctx, logger)

	if span.Duration == nil {
		t.Fatal("duration should be set after finish")
	}
	out := buf.String()
	if !strings.Contains(out, "span failed") || !strings.Contains(out, "customers=12") {
		t.Errorf("unexpected log output: %s", out)
	}
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithRunID(WithRequestID(context.Background(), "req-9"), "run-3")
	ContextLogger(ctx, base).Info("stage done")

	out := buf.String()
	if !strings.Contains(out, "request_id=req-9") || !strings.Contains(out, "run_id=run-3") {
		t.Errorf("ids missing from log line: %s", out)
	}
}

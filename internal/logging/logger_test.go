package logging

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	Use(zap.New(core))
	SetCategories(nil)
	t.Cleanup(func() {
		Use(zap.NewNop())
		SetCategories(nil)
		_ = SetLevel("info")
	})
	return logs
}

func TestCategoryLoggerNamesEntries(t *testing.T) {
	logs := observe(t)

	Store("saved user %d", 42)
	RoutingWarn("unknown label %q", "FOO")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].LoggerName != "store" || entries[0].Message != "saved user 42" {
		t.Errorf("unexpected first entry: %s %q", entries[0].LoggerName, entries[0].Message)
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].LoggerName != "routing" {
		t.Errorf("unexpected second entry: %v %s", entries[1].Level, entries[1].LoggerName)
	}
}

func TestDisabledCategoryIsSilent(t *testing.T) {
	logs := observe(t)
	SetCategories(map[string]bool{"browser": false, "store": true})

	if IsCategoryEnabled(CategoryBrowser) {
		t.Fatalf("browser should be disabled")
	}
	if !IsCategoryEnabled(CategoryTools) {
		t.Fatalf("unlisted categories should be enabled")
	}

	Browser("should not appear")
	Tools("visible")

	if logs.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", logs.Len())
	}
}

func TestRequestLoggerCarriesID(t *testing.T) {
	logs := observe(t)

	WithRequestID(CategorySession, "req-1").WithField("user", int64(7)).Info("flow started")

	entries := logs.FilterField(zap.String("req", "req-1")).All()
	if len(entries) != 1 {
		t.Fatalf("expected entry tagged with request id, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["user"]; got != int64(7) {
		t.Errorf("user field = %v", got)
	}
}

func TestSetLevel(t *testing.T) {
	observe(t)

	if err := SetLevel("warning"); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	if Level() != "warn" {
		t.Errorf("Level() = %q", Level())
	}
	if err := SetLevel("loud"); err == nil {
		t.Errorf("expected error for invalid level")
	}
}

func TestTimerStopWithThreshold(t *testing.T) {
	logs := observe(t)

	timer := StartTimer(CategoryAPI, "generate")
	timer.start = time.Now().Add(-2 * time.Second)
	if d := timer.StopWithThreshold(time.Second); d < 2*time.Second {
		t.Fatalf("elapsed = %v", d)
	}
	if logs.FilterLevelExact(zapcore.WarnLevel).Len() != 1 {
		t.Errorf("expected a slow-operation warning")
	}
}

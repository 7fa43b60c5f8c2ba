package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"tradeflow/internal/config"
)

func TestNew_FallsBackToInfo(t *testing.T) {
	l, err := New(config.LogConfig{Level: "loud", Encoding: "weird"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if l.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("debug enabled want=info")
	}
	if !l.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("info disabled")
	}
}

func TestNew_DebugJSON(t *testing.T) {
	l, err := New(config.LogConfig{Level: "DEBUG", Encoding: "json", Sampling: true})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !l.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("debug disabled")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatalf("nil logger")
	}
}

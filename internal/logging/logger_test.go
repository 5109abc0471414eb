package logging

import (
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zpreserve/internal/config"
)

func TestSetLogLevel(t *testing.T) {
	defer log.SetLevel(log.GetLevel())

	tests := []struct {
		in   string
		want log.Level
	}{
		{"trace", log.TraceLevel},
		{"debug", log.DebugLevel},
		{"info", log.InfoLevel},
		{"warning", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"", log.WarnLevel},
		{"verbose", log.WarnLevel},
	}
	for _, tt := range tests {
		setLogLevel(tt.in)
		if got := log.GetLevel(); got != tt.want {
			t.Errorf("setLogLevel(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestInitLogger(t *testing.T) {
	defer log.SetLevel(log.GetLevel())

	InitLogger(&config.Config{LogLevel: "debug"})
	if log.GetLevel() != log.DebugLevel {
		t.Errorf("expected debug level, got %v", log.GetLevel())
	}
	formatter, ok := log.StandardLogger().Formatter.(*log.TextFormatter)
	if !ok || !formatter.FullTimestamp {
		t.Errorf("expected a text formatter with full timestamps, got %#v", log.StandardLogger().Formatter)
	}
}

func TestInitFromEnv(t *testing.T) {
	defer log.SetLevel(log.GetLevel())

	t.Setenv("LOG_LEVEL", "TRACE")
	InitFromEnv()
	if log.GetLevel() != log.TraceLevel {
		t.Errorf("expected trace level, got %v", log.GetLevel())
	}
}

package main

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestSetupLogger(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)
	defer log.SetFormatter(&log.TextFormatter{})

	if err := setupLogger("debug", "json"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if log.GetLevel() != log.DebugLevel {
		t.Errorf("expected debug level, got %s", log.GetLevel())
	}
	if _, ok := log.StandardLogger().Formatter.(*log.JSONFormatter); !ok {
		t.Errorf("expected json formatter, got %T", log.StandardLogger().Formatter)
	}

	if err := setupLogger("warn", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := log.StandardLogger().Formatter.(*log.TextFormatter); !ok {
		t.Errorf("expected text formatter by default, got %T", log.StandardLogger().Formatter)
	}
}

func TestSetupLogger_Invalid(t *testing.T) {
	defer log.SetFormatter(&log.TextFormatter{})

	if err := setupLogger("verbose", "text"); err == nil {
		t.Error("expected error for unknown level")
	}
	if err := setupLogger("info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

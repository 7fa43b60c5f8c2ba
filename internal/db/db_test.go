package db

import (
	"testing"

	"tradeflow/internal/config"
)

func TestOpen_RequiresDSN(t *testing.T) {
	if _, err := Open(config.DBConfig{}); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestNilSafe(t *testing.T) {
	if err := Close(nil); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := Ping(nil); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := SetTimezone(nil, "UTC"); err != nil {
		t.Fatalf("tz: %v", err)
	}
	if err := AutoMigrate(nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

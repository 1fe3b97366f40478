package config

import (
	"encoding/base64"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("WEBHOOK_PASSWORD", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.HealthCheckInterval != 300*time.Second {
		t.Errorf("HealthCheckInterval = %v, want 300s", cfg.Database.HealthCheckInterval)
	}
	if cfg.Database.PurgeMaxAgeDays != 30 {
		t.Errorf("PurgeMaxAgeDays = %d, want 30", cfg.Database.PurgeMaxAgeDays)
	}
	if cfg.Broker.ExpiryBuffer != time.Hour {
		t.Errorf("ExpiryBuffer = %v, want 1h", cfg.Broker.ExpiryBuffer)
	}
	if cfg.Broker.ProbeTimeout != 10*time.Second {
		t.Errorf("ProbeTimeout = %v, want 10s", cfg.Broker.ProbeTimeout)
	}
}

func TestLoadRequiresPassword(t *testing.T) {
	// Ни WEBHOOK_PASSWORD ни WEBHOOK_PASSWORD_HASH
	t.Setenv("WEBHOOK_PASSWORD", "")
	t.Setenv("WEBHOOK_PASSWORD_HASH", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when no webhook password is configured")
	}
}

func TestLoadSlots(t *testing.T) {
	setBaseEnv(t)

	// Полный слот 1
	t.Setenv("SLOT1_KEY", "key1")
	t.Setenv("SLOT1_SECRET", "secret1")
	t.Setenv("SLOT1_ACCOUNT_NUMBER", "12345678")
	t.Setenv("SLOT1_ACCOUNT_CODE", "01")

	// Неполный слот 2 - должен быть исключен
	t.Setenv("SLOT2_KEY", "key2")
	t.Setenv("SLOT2_SECRET", "secret2")

	// Полный слот 50 (граница диапазона)
	t.Setenv("SLOT50_KEY", "key50")
	t.Setenv("SLOT50_SECRET", "secret50")
	t.Setenv("SLOT50_ACCOUNT_NUMBER", "87654321")
	t.Setenv("SLOT50_ACCOUNT_CODE", "02")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Slots) != 2 {
		t.Fatalf("len(Slots) = %d, want 2", len(cfg.Slots))
	}

	slot, ok := cfg.Slot(1)
	if !ok {
		t.Fatal("slot 1 missing from registry")
	}
	if slot.APIKey != "key1" || slot.AccountNumber != "12345678" {
		t.Errorf("slot 1 loaded incorrectly: %+v", slot)
	}

	if _, ok := cfg.Slot(2); ok {
		t.Error("incomplete slot 2 must be excluded from registry")
	}
	if _, ok := cfg.Slot(50); !ok {
		t.Error("slot 50 missing from registry")
	}
}

func TestLoadEncryptionKey(t *testing.T) {
	setBaseEnv(t)

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	t.Setenv("STORE_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(key))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Database.EncryptionKey) != 32 {
		t.Errorf("EncryptionKey length = %d, want 32", len(cfg.Database.EncryptionKey))
	}
}

func TestLoadRejectsShortEncryptionKey(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("STORE_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString([]byte("too short")))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for short encryption key")
	}
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{
		Host: "db", Port: 5433, User: "u", Password: "p", Name: "router", SSLMode: "require",
	}
	want := "host=db port=5433 user=u password=p dbname=router sslmode=require"
	if got := db.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestGetEnvAsList(t *testing.T) {
	t.Setenv("WHITELIST", " 1.2.3.4 ,5.6.7.8,, ")
	got := getEnvAsList("WHITELIST", nil)
	if len(got) != 2 || got[0] != "1.2.3.4" || got[1] != "5.6.7.8" {
		t.Errorf("getEnvAsList = %v", got)
	}
}

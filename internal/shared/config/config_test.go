package config

import (
	"os"
	"testing"
	"time"
	_ "time/tzdata"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("ENCRYPTION_KEY", "01234567890123456789012345678901") // 32 bytes
	t.Setenv("OPENFINANCE_BASE_URL", "https://api.bank.example/open-banking/")
}

func TestLoad_Success(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want %q", cfg.Server.Port, "8080")
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want %d", cfg.Database.Port, 5432)
	}
	if cfg.OpenFinance.BaseURL != "https://api.bank.example/open-banking" {
		t.Errorf("OpenFinance.BaseURL = %q, want trailing slash trimmed", cfg.OpenFinance.BaseURL)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if !cfg.Sync.Enabled {
		t.Error("Sync.Enabled = false, want true")
	}
	if cfg.Sync.BalanceInterval != 15*time.Minute {
		t.Errorf("Sync.BalanceInterval = %v, want 15m", cfg.Sync.BalanceInterval)
	}
	if cfg.Sync.BalanceInitialDelay != time.Minute {
		t.Errorf("Sync.BalanceInitialDelay = %v, want 1m", cfg.Sync.BalanceInitialDelay)
	}
	if len(cfg.Sync.TransactionSchedule) != 1 || cfg.Sync.TransactionSchedule[0] != "02:00" {
		t.Errorf("Sync.TransactionSchedule = %v, want [02:00]", cfg.Sync.TransactionSchedule)
	}
	if cfg.Sync.TokenRefreshInterval != time.Hour {
		t.Errorf("Sync.TokenRefreshInterval = %v, want 1h", cfg.Sync.TokenRefreshInterval)
	}
	if cfg.Sync.TokenRefreshThreshold != 10*time.Minute {
		t.Errorf("Sync.TokenRefreshThreshold = %v, want 10m", cfg.Sync.TokenRefreshThreshold)
	}
	if cfg.OpenFinance.RetryAttempts != 3 {
		t.Errorf("OpenFinance.RetryAttempts = %d, want 3", cfg.OpenFinance.RetryAttempts)
	}
	if cfg.OpenFinance.RetryBaseDelay != 2*time.Second {
		t.Errorf("OpenFinance.RetryBaseDelay = %v, want 2s", cfg.OpenFinance.RetryBaseDelay)
	}
	if cfg.OpenFinance.PageSize != 100 {
		t.Errorf("OpenFinance.PageSize = %d, want 100", cfg.OpenFinance.PageSize)
	}
	if cfg.Database.MaxOpenConns != 25 || cfg.Database.MaxIdleConns != 5 {
		t.Errorf("Database pool = %d/%d, want 25/5", cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	}
	if cfg.Database.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("Database.ConnMaxLifetime = %v, want 5m", cfg.Database.ConnMaxLifetime)
	}
	if cfg.Sync.Location != time.Local {
		t.Errorf("Sync.Location = %v, want time.Local", cfg.Sync.Location)
	}
	if cfg.Redis.URL != "" {
		t.Errorf("Redis.URL = %q, want empty", cfg.Redis.URL)
	}
	if len(cfg.Kafka.Brokers) != 0 {
		t.Errorf("Kafka.Brokers = %v, want empty", cfg.Kafka.Brokers)
	}
}

func TestLoad_InvalidEncryptionKeyLength(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("ENCRYPTION_KEY", "too-short")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for invalid ENCRYPTION_KEY length, got nil")
	}
}

func TestLoad_MissingEncryptionKey(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("ENCRYPTION_KEY", "")
	os.Unsetenv("ENCRYPTION_KEY")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for missing ENCRYPTION_KEY, got nil")
	}
}

func TestLoad_InvalidDBPort(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("DB_PORT", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for invalid DB_PORT, got nil")
	}
}

func TestLoad_BaseURLRequiredWhenSyncEnabled(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("OPENFINANCE_BASE_URL", "")
	os.Unsetenv("OPENFINANCE_BASE_URL")

	if _, err := Load(); err == nil {
		t.Error("Load() expected error for missing OPENFINANCE_BASE_URL, got nil")
	}

	t.Setenv("SYNC_ENABLED", "false")
	if _, err := Load(); err != nil {
		t.Errorf("Load() with sync disabled failed: %v", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("SYNC_BALANCE_INTERVAL", "fifteen minutes")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for invalid SYNC_BALANCE_INTERVAL, got nil")
	}
}

func TestLoad_SyncTimezone(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("SYNC_TIMEZONE", "America/Sao_Paulo")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if got := cfg.Sync.Location.String(); got != "America/Sao_Paulo" {
		t.Errorf("Sync.Location = %q, want %q", got, "America/Sao_Paulo")
	}
}

func TestLoad_InvalidSyncTimezone(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("SYNC_TIMEZONE", "Mars/Olympus_Mons")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for invalid SYNC_TIMEZONE, got nil")
	}
}

func TestLoad_RetryAttemptsMustBePositive(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("OPENFINANCE_RETRY_ATTEMPTS", "0")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for OPENFINANCE_RETRY_ATTEMPTS=0, got nil")
	}
}

func TestLoad_KafkaBrokers(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("Kafka.Brokers length = %d, want 2", len(cfg.Kafka.Brokers))
	}
}

func TestLoad_TransactionScheduleList(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("SYNC_TRANSACTION_SCHEDULE", "02:00, 14:30")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if len(cfg.Sync.TransactionSchedule) != 2 || cfg.Sync.TransactionSchedule[1] != "14:30" {
		t.Errorf("Sync.TransactionSchedule = %v, want [02:00 14:30]", cfg.Sync.TransactionSchedule)
	}
}

func TestGetBoolEnv(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue bool
		want         bool
	}{
		{"true", "true", false, true},
		{"TRUE", "TRUE", false, true},
		{"1", "1", false, true},
		{"yes", "yes", false, true},
		{"false", "false", true, false},
		{"0", "0", true, false},
		{"no", "no", true, false},
		{"empty uses default", "", true, true},
		{"invalid uses default", "maybe", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.value)
			if got := getBoolEnv("TEST_BOOL", tt.defaultValue); got != tt.want {
				t.Errorf("getBoolEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "ofsync",
		Password: "secret",
		DBName:   "ofsync",
		SSLMode:  "disable",
	}

	want := "host=localhost port=5432 user=ofsync password=secret dbname=ofsync sslmode=disable"
	if got := cfg.ConnectionString(); got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}
}

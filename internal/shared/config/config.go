package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	OpenFinance OpenFinanceConfig
	Sync        SyncConfig
	Encryption  EncryptionConfig
	Firebase    FirebaseConfig
	Telemetry   TelemetryConfig
	Log         LogConfig
	Messages    MessagesConfig
}

type ServerConfig struct {
	Port        string
	Host        string
	AdminAPIKey string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL       string
	StatusTTL time.Duration
}

type KafkaConfig struct {
	Brokers   []string
	SyncTopic string
}

type OpenFinanceConfig struct {
	BaseURL        string
	TokenURL       string
	ClientID       string
	ClientSecret   string
	RetryAttempts  int
	RetryBaseDelay time.Duration
	PageSize       int
	CallTimeout    time.Duration
}

type SyncConfig struct {
	Enabled               bool
	BalanceInterval       time.Duration
	BalanceInitialDelay   time.Duration
	TransactionSchedule   []string
	TokenRefreshInterval  time.Duration
	TokenRefreshThreshold time.Duration
	LookbackDays          int
	Workers               int
	StaleAfter            time.Duration
	// Location interprets TransactionSchedule times. SYNC_TIMEZONE unset means time.Local.
	Location *time.Location
}

type EncryptionConfig struct {
	Key string
}

type FirebaseConfig struct {
	CredentialsFile string
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	MetricsPort  string
}

type LogConfig struct {
	Level  string
	Format string
}

type MessagesConfig struct {
	Path string
}

// Load reads configuration from the environment. A .env file in the working
// directory, if present, is loaded first without overriding real variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbPort, err := getIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}
	dbMaxOpen, err := getIntEnv("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, err
	}
	dbMaxIdle, err := getIntEnv("DB_MAX_IDLE_CONNS", 5)
	if err != nil {
		return nil, err
	}
	dbConnLifetime, err := getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	ofAttempts, err := getIntEnv("OPENFINANCE_RETRY_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	ofBaseDelay, err := getDurationEnv("OPENFINANCE_RETRY_BASE_DELAY", 2*time.Second)
	if err != nil {
		return nil, err
	}
	ofPageSize, err := getIntEnv("OPENFINANCE_PAGE_SIZE", 100)
	if err != nil {
		return nil, err
	}
	ofTimeout, err := getDurationEnv("OPENFINANCE_CALL_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	balanceInterval, err := getDurationEnv("SYNC_BALANCE_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	balanceDelay, err := getDurationEnv("SYNC_BALANCE_INITIAL_DELAY", time.Minute)
	if err != nil {
		return nil, err
	}
	refreshInterval, err := getDurationEnv("SYNC_TOKEN_REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}
	refreshThreshold, err := getDurationEnv("SYNC_TOKEN_REFRESH_THRESHOLD", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	location, err := getLocationEnv("SYNC_TIMEZONE")
	if err != nil {
		return nil, err
	}
	lookbackDays, err := getIntEnv("SYNC_LOOKBACK_DAYS", 90)
	if err != nil {
		return nil, err
	}
	workers, err := getIntEnv("SYNC_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	staleAfter, err := getDurationEnv("SYNC_STALE_AFTER", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	statusTTL, err := getDurationEnv("REDIS_STATUS_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Host:        getEnv("HOST", "0.0.0.0"),
			AdminAPIKey: getEnv("ADMIN_API_KEY", ""),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "ofsync"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "ofsync"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			MaxOpenConns:    dbMaxOpen,
			MaxIdleConns:    dbMaxIdle,
			ConnMaxLifetime: dbConnLifetime,
		},
		Redis: RedisConfig{
			URL:       getEnv("REDIS_URL", ""),
			StatusTTL: statusTTL,
		},
		Kafka: KafkaConfig{
			Brokers:   splitList(getEnv("KAFKA_BROKERS", "")),
			SyncTopic: getEnv("KAFKA_SYNC_TOPIC", "openfinance.sync"),
		},
		OpenFinance: OpenFinanceConfig{
			BaseURL:        strings.TrimRight(getEnv("OPENFINANCE_BASE_URL", ""), "/"),
			TokenURL:       getEnv("OPENFINANCE_TOKEN_URL", ""),
			ClientID:       getEnv("OPENFINANCE_CLIENT_ID", ""),
			ClientSecret:   getEnv("OPENFINANCE_CLIENT_SECRET", ""),
			RetryAttempts:  ofAttempts,
			RetryBaseDelay: ofBaseDelay,
			PageSize:       ofPageSize,
			CallTimeout:    ofTimeout,
		},
		Sync: SyncConfig{
			Enabled:               getBoolEnv("SYNC_ENABLED", true),
			BalanceInterval:       balanceInterval,
			BalanceInitialDelay:   balanceDelay,
			TransactionSchedule:   splitList(getEnv("SYNC_TRANSACTION_SCHEDULE", "02:00")),
			TokenRefreshInterval:  refreshInterval,
			TokenRefreshThreshold: refreshThreshold,
			LookbackDays:          lookbackDays,
			Workers:               workers,
			StaleAfter:            staleAfter,
			Location:              location,
		},
		Encryption: EncryptionConfig{
			Key: getEnv("ENCRYPTION_KEY", ""),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "ofsync"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", "9090"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Messages: MessagesConfig{
			Path: getEnv("MESSAGES_FILE", ""),
		},
	}

	if cfg.Encryption.Key == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(cfg.Encryption.Key) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes")
	}

	if cfg.Sync.Enabled && cfg.OpenFinance.BaseURL == "" {
		return nil, fmt.Errorf("OPENFINANCE_BASE_URL is required when SYNC_ENABLED=true")
	}
	if cfg.OpenFinance.RetryAttempts < 1 {
		return nil, fmt.Errorf("OPENFINANCE_RETRY_ATTEMPTS must be at least 1")
	}
	if cfg.Sync.Workers < 1 {
		return nil, fmt.Errorf("SYNC_WORKERS must be at least 1")
	}
	if cfg.Sync.BalanceInterval <= 0 || cfg.Sync.TokenRefreshInterval <= 0 {
		return nil, fmt.Errorf("sync intervals must be positive")
	}
	if len(cfg.Sync.TransactionSchedule) == 0 {
		return nil, fmt.Errorf("SYNC_TRANSACTION_SCHEDULE must contain at least one HH:MM time")
	}

	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getLocationEnv(key string) (*time.Location, error) {
	name := os.Getenv(key)
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return loc, nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

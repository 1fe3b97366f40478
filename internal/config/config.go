package config

import (
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"stockrouter/internal/models"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Webhook  WebhookConfig
	Broker   BrokerConfig
	Notify   NotifyConfig

	// Slots - явный реестр брокерских аккаунтов, построенный один раз на
	// старте из SLOT<n>_* переменных. Неполные слоты исключаются с записью
	// в лог, а не молча допускаются.
	Slots map[int]*models.AccountSlot
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string

	// HealthCheckInterval - как часто проверять живость соединения
	HealthCheckInterval time.Duration

	// EncryptionKey - ключ AES-256 для шифрования токенов в БД
	// (base64, 32 байта). Пустой = хранить токены открытым текстом.
	EncryptionKey []byte

	// PurgeMaxAgeDays - возраст sentinel-строк для периодической очистки
	PurgeMaxAgeDays int
}

// WebhookConfig - настройки входящего webhook-слоя
type WebhookConfig struct {
	// PasswordHash - bcrypt-хеш пароля сигналов; имеет приоритет над Password
	PasswordHash string
	// Password - пароль открытым текстом (fallback для простых установок)
	Password string
	// ExtraWhitelist - дополнительные IP помимо стандартных адресов TradingView
	ExtraWhitelist []string
}

// BrokerConfig - настройки клиента брокерского API
type BrokerConfig struct {
	BaseURL string

	ProbeTimeout time.Duration // liveness probe
	CallTimeout  time.Duration // обмен токена и ордера

	// ExpiryBuffer - токен с остатком меньше буфера считается невалидным
	ExpiryBuffer time.Duration

	// RateLimit / RateBurst - token bucket перед всеми исходящими вызовами
	RateLimit float64
	RateBurst float64
}

// NotifyConfig - настройки fire-and-forget уведомлений
type NotifyConfig struct {
	DiscordWebhookURL string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:              getEnv("DB_DRIVER", "postgres"),
			Host:                getEnv("DB_HOST", "localhost"),
			Port:                getEnvAsInt("DB_PORT", 5432),
			Name:                getEnv("DB_NAME", "stockrouter"),
			User:                getEnv("DB_USER", "user"),
			Password:            getEnv("DB_PASSWORD", "password"),
			SSLMode:             getEnv("DB_SSL_MODE", "disable"),
			HealthCheckInterval: getEnvAsDuration("DB_HEALTH_CHECK_INTERVAL", 300*time.Second),
			PurgeMaxAgeDays:     getEnvAsInt("CREDENTIAL_PURGE_DAYS", 30),
		},
		Webhook: WebhookConfig{
			PasswordHash:   getEnv("WEBHOOK_PASSWORD_HASH", ""),
			Password:       getEnv("WEBHOOK_PASSWORD", ""),
			ExtraWhitelist: getEnvAsList("WHITELIST", nil),
		},
		Broker: BrokerConfig{
			BaseURL:      getEnv("BROKER_BASE_URL", "https://openapi.koreainvestment.com:9443"),
			ProbeTimeout: getEnvAsDuration("BROKER_PROBE_TIMEOUT", 10*time.Second),
			CallTimeout:  getEnvAsDuration("BROKER_CALL_TIMEOUT", 30*time.Second),
			ExpiryBuffer: getEnvAsDuration("TOKEN_EXPIRY_BUFFER", time.Hour),
			RateLimit:    getEnvAsFloat("BROKER_RATE_LIMIT", 20),
			RateBurst:    getEnvAsFloat("BROKER_RATE_BURST", 20),
		},
		Notify: NotifyConfig{
			DiscordWebhookURL: getEnv("DISCORD_WEBHOOK_URL", ""),
		},
	}

	if rawKey := getEnv("STORE_ENCRYPTION_KEY", ""); rawKey != "" {
		key, err := base64.StdEncoding.DecodeString(rawKey)
		if err != nil {
			return nil, fmt.Errorf("STORE_ENCRYPTION_KEY is not valid base64: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("STORE_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
		}
		cfg.Database.EncryptionKey = key
	}

	cfg.Slots = loadSlots()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadSlots строит реестр слотов из SLOT1_* .. SLOT50_* переменных.
// Слот попадает в реестр только если заполнены все четыре поля.
func loadSlots() map[int]*models.AccountSlot {
	slots := make(map[int]*models.AccountSlot)

	for n := models.MinSlotNumber; n <= models.MaxSlotNumber; n++ {
		prefix := fmt.Sprintf("SLOT%d", n)

		slot := &models.AccountSlot{
			Number:         n,
			APIKey:         os.Getenv(prefix + "_KEY"),
			APISecret:      os.Getenv(prefix + "_SECRET"),
			AccountNumber:  os.Getenv(prefix + "_ACCOUNT_NUMBER"),
			AccountSubCode: os.Getenv(prefix + "_ACCOUNT_CODE"),
		}

		// Полностью пустой слот - не настроен, пропускаем молча
		if slot.APIKey == "" && slot.APISecret == "" &&
			slot.AccountNumber == "" && slot.AccountSubCode == "" {
			continue
		}

		if err := slot.Validate(); err != nil {
			log.Printf("config: skipping incomplete slot %d: %v", n, err)
			continue
		}

		slots[n] = slot
	}

	return slots
}

// Slot возвращает слот по номеру.
func (c *Config) Slot(number int) (*models.AccountSlot, bool) {
	slot, ok := c.Slots[number]
	return slot, ok
}

// validate проверяет критичные параметры
func (c *Config) validate() error {
	if c.Webhook.PasswordHash == "" && c.Webhook.Password == "" {
		return fmt.Errorf("WEBHOOK_PASSWORD or WEBHOOK_PASSWORD_HASH must be set")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT out of range: %d", c.Server.Port)
	}
	if c.Server.UseHTTPS && (c.Server.CertFile == "" || c.Server.KeyFile == "") {
		return fmt.Errorf("USE_HTTPS requires CERT_FILE and KEY_FILE")
	}
	if c.Broker.BaseURL == "" {
		return fmt.Errorf("BROKER_BASE_URL must not be empty")
	}
	if c.Database.PurgeMaxAgeDays < 1 {
		return fmt.Errorf("CREDENTIAL_PURGE_DAYS must be positive, got %d", c.Database.PurgeMaxAgeDays)
	}
	if len(c.Slots) == 0 {
		log.Println("config: warning: no account slots configured, all orders will be rejected")
	}
	return nil
}

// DSN собирает строку подключения к PostgreSQL.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// ============================================================
// Env helpers
// ============================================================

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		log.Printf("config: invalid integer for %s: %q, using default %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
		log.Printf("config: invalid float for %s: %q, using default %v", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
		log.Printf("config: invalid bool for %s: %q, using default %v", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		log.Printf("config: invalid duration for %s: %q, using default %v", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}

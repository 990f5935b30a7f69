// Package config, uygulamanın tüm konfigürasyonunu merkezi olarak yönetir.
// Environment variable'lardan okur, .env dosyasını da destekler.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config, uygulamanın tüm konfigürasyon değerlerini taşır.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Upload    UploadConfig
	Presence  PresenceConfig
	RateLimit RateLimitConfig
	Email     EmailConfig
	Log       LogConfig
}

// ServerConfig, HTTP server ayarları.
type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string // Boşsa tüm origin'lere izin verilir (development)
}

// DatabaseConfig, SQLite database ayarları.
type DatabaseConfig struct {
	Path string // SQLite dosya yolu (ör: ./data/sohbet.db)
}

// JWTConfig, access token doğrulama ayarları.
// Token'ları hesap servisi üretir; burada sadece paylaşılan secret ile doğrulanır.
type JWTConfig struct {
	Secret string
}

// UploadConfig, ek dosya (attachment) ayarları.
type UploadConfig struct {
	Dir     string
	MaxSize int64 // Byte cinsinden (varsayılan: 20MB)
}

// PresenceConfig, presence tracker ayarları.
type PresenceConfig struct {
	// GracePeriod: son bağlantı koptuktan sonra offline'a geçmeden önce beklenen süre.
	GracePeriod time.Duration
}

// RateLimitConfig, kullanıcı bazlı mesaj gönderme limiti ve IP bazlı ws bağlantı limiti.
type RateLimitConfig struct {
	MessagesPerSecond float64
	MessageBurst      int
	ConnectsPerMinute int
}

// EmailConfig, Resend ayarları. Üçü de doluysa email gönderimi aktif olur.
type EmailConfig struct {
	ResendAPIKey string
	FromEmail    string
	AppURL       string
}

// Enabled, email gönderiminin yapılandırılıp yapılandırılmadığını döner.
func (c EmailConfig) Enabled() bool {
	return c.ResendAPIKey != "" && c.FromEmail != "" && c.AppURL != ""
}

// LogConfig, zap logger ayarları.
type LogConfig struct {
	Level       string
	Development bool
}

// Load, environment variable'lardan Config oluşturur.
// .env dosyası varsa önce onu yükler; yoksa sessizce devam eder.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := getEnvInt("SERVER_PORT", 9090)
	if err != nil {
		return nil, err
	}

	maxSize, err := strconv.ParseInt(getEnv("UPLOAD_MAX_SIZE", "20971520"), 10, 64) // 20MB
	if err != nil {
		return nil, fmt.Errorf("invalid UPLOAD_MAX_SIZE: %w", err)
	}

	grace, err := getEnvDuration("PRESENCE_GRACE_PERIOD", 30*time.Second)
	if err != nil {
		return nil, err
	}
	if grace <= 0 {
		return nil, fmt.Errorf("PRESENCE_GRACE_PERIOD must be positive")
	}

	perSecond, err := strconv.ParseFloat(getEnv("MESSAGE_RATE_PER_SECOND", "1"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MESSAGE_RATE_PER_SECOND: %w", err)
	}

	burst, err := getEnvInt("MESSAGE_RATE_BURST", 5)
	if err != nil {
		return nil, err
	}

	connects, err := getEnvInt("WS_CONNECTS_PER_MINUTE", 30)
	if err != nil {
		return nil, err
	}

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	dev, err := strconv.ParseBool(getEnv("LOG_DEVELOPMENT", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_DEVELOPMENT: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			Port:        port,
			CORSOrigins: splitList(getEnv("CORS_ORIGINS", "")),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "./data/sohbet.db"),
		},
		JWT: JWTConfig{
			Secret: jwtSecret,
		},
		Upload: UploadConfig{
			Dir:     getEnv("UPLOAD_DIR", "./data/uploads"),
			MaxSize: maxSize,
		},
		Presence: PresenceConfig{
			GracePeriod: grace,
		},
		RateLimit: RateLimitConfig{
			MessagesPerSecond: perSecond,
			MessageBurst:      burst,
			ConnectsPerMinute: connects,
		},
		Email: EmailConfig{
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			FromEmail:    getEnv("RESEND_FROM", ""),
			AppURL:       strings.TrimRight(getEnv("APP_URL", ""), "/"),
		},
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: dev,
		},
	}

	return cfg, nil
}

// Addr, HTTP server'ın dinleyeceği adresi döner (ör: "0.0.0.0:9090").
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getEnv, environment variable'ı okur, yoksa fallback değeri döner.
func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// getEnvDuration, "30s", "1m" gibi time.ParseDuration formatını okur.
func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

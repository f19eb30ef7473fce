package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort  string `mapstructure:"APP_PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Mongo configuration.
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	DatabaseName string `mapstructure:"DATABASE_NAME"`

	// Redis configuration.
	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	RedisPassword  string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB   int    `mapstructure:"REDIS_CACHE_DB"`
	RedisContextDB int    `mapstructure:"REDIS_CONTEXT_DB"`
	RedisQueueDB   int    `mapstructure:"REDIS_QUEUE_DB"`

	// Messaging platform (Chatwoot-compatible API).
	MessagingBaseURL       string `mapstructure:"MESSAGING_BASE_URL"`
	MessagingAPIToken      string `mapstructure:"MESSAGING_API_TOKEN"`
	MessagingAccountID     int    `mapstructure:"MESSAGING_ACCOUNT_ID"`
	MessagingWebhookSecret string `mapstructure:"MESSAGING_WEBHOOK_SECRET"`

	// Google Calendar / Cloud credentials.
	GoogleServiceAccountFile string `mapstructure:"GOOGLE_SERVICE_ACCOUNT_FILE"`
	CalendarID               string `mapstructure:"CALENDAR_ID"`
	CalendarTimezone         string `mapstructure:"CALENDAR_TIMEZONE"`

	// Business hours used for alternative-slot suggestions.
	BusinessOpenHour  int `mapstructure:"BUSINESS_OPEN_HOUR"`
	BusinessCloseHour int `mapstructure:"BUSINESS_CLOSE_HOUR"`

	// Per-sender rate limiting.
	RateLimitMax       int `mapstructure:"RATE_LIMIT_MAX_MESSAGES"`
	RateLimitWindowSec int `mapstructure:"RATE_LIMIT_WINDOW_SECONDS"`

	// Transport-level limiter on the webhook endpoint.
	MaxRequestsPerMin int `mapstructure:"MAX_REQUESTS_PER_MIN"`

	// Message grouping.
	TurnFlushDelaySec int `mapstructure:"TURN_FLUSH_DELAY_SECONDS"`

	// Keywords that hand the conversation to a human agent.
	PauseKeywords []string `mapstructure:"PAUSE_KEYWORDS"`

	AvailabilityCacheTTLSec int `mapstructure:"AVAILABILITY_CACHE_TTL_SECONDS"`

	// Scheduled jobs.
	OwnerPhone          string `mapstructure:"OWNER_PHONE"`
	ReminderHour        int    `mapstructure:"DAILY_REMINDER_HOUR"`
	ReportWeekday       int    `mapstructure:"WEEKLY_REPORT_DAY"`
	ReportHour          int    `mapstructure:"WEEKLY_REPORT_HOUR"`
	CalendarSyncMinutes int    `mapstructure:"CALENDAR_SYNC_INTERVAL_MINUTES"`

	// Decision model.
	GeminiAPIKey string `mapstructure:"GEMINI_API_KEY"`
	GeminiModel  string `mapstructure:"GEMINI_MODEL"`

	// Salon identity used in replies when the catalog has no record yet.
	SalonName    string `mapstructure:"SALON_NAME"`
	SalonAddress string `mapstructure:"SALON_ADDRESS"`
	SalonPhone   string `mapstructure:"SALON_PHONE"`
	SalonHours   string `mapstructure:"SALON_HOURS"`

	// Operator API token for the admin endpoints.
	AdminToken string `mapstructure:"ADMIN_TOKEN"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	// Set default values.
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	viper.SetDefault("DATABASE_NAME", "salonflow")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_CACHE_DB", 0)
	viper.SetDefault("REDIS_CONTEXT_DB", 1)
	viper.SetDefault("REDIS_QUEUE_DB", 2)
	viper.SetDefault("MESSAGING_ACCOUNT_ID", 1)
	viper.SetDefault("CALENDAR_TIMEZONE", "America/Mexico_City")
	viper.SetDefault("BUSINESS_OPEN_HOUR", 9)
	viper.SetDefault("BUSINESS_CLOSE_HOUR", 20)
	viper.SetDefault("RATE_LIMIT_MAX_MESSAGES", 30)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 3600)
	viper.SetDefault("MAX_REQUESTS_PER_MIN", 100)
	viper.SetDefault("TURN_FLUSH_DELAY_SECONDS", 3)
	viper.SetDefault("PAUSE_KEYWORDS", []string{"agente", "humano", "persona real"})
	viper.SetDefault("AVAILABILITY_CACHE_TTL_SECONDS", 300)
	viper.SetDefault("DAILY_REMINDER_HOUR", 18)
	viper.SetDefault("WEEKLY_REPORT_DAY", 1)
	viper.SetDefault("WEEKLY_REPORT_HOUR", 9)
	viper.SetDefault("CALENDAR_SYNC_INTERVAL_MINUTES", 15)
	viper.SetDefault("GEMINI_MODEL", "models/gemini-1.5-pro")
	viper.SetDefault("SALON_NAME", "Salón de Belleza")
	viper.SetDefault("SALON_HOURS", "Lunes a Sábado: 9:00 AM - 8:00 PM")

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}

// RateLimitWindow returns the sliding-window length as a duration.
func RateLimitWindow() time.Duration {
	return time.Duration(AppConfig.RateLimitWindowSec) * time.Second
}

// TurnFlushDelay returns the quiet period before a pending turn is flushed.
func TurnFlushDelay() time.Duration {
	return time.Duration(AppConfig.TurnFlushDelaySec) * time.Second
}

// NormalizedPauseKeywords returns the configured handoff keywords lowercased.
func NormalizedPauseKeywords() []string {
	out := make([]string, 0, len(AppConfig.PauseKeywords))
	for _, kw := range AppConfig.PauseKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

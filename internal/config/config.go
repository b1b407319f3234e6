package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser            string
	DBPassword        string
	DBName            string
	DBHost            string
	DBPort            string
	RedisHost         string
	RedisPort         string
	RedisPassword     string
	BotToken          string
	BotMode           string
	BotUsername       string
	WebAppURL         string
	WebhookSecret     string
	HTTPAddr          string
	AdminToken        string
	AdminAllowedCIDRs []string
	ResetHour         int
	Location          *time.Location
	LogLevel          string
	AppEnv            string
}

const (
	BotModeWebhook = "webhook"
	BotModePolling = "polling"
)

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	return &Config{
		DBUser:            getEnv("DB_USER", "postgres"),
		DBPassword:        getEnv("DB_PASSWORD", "postgres"),
		DBName:            getEnv("DB_NAME", "tapscore"),
		DBHost:            getEnv("DB_HOST", "localhost"),
		DBPort:            getEnv("DB_PORT", "5432"),
		RedisHost:         getEnv("REDIS_HOST", "localhost"),
		RedisPort:         getEnv("REDIS_PORT", "6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		BotToken:          getEnv("TELEGRAM_BOT_TOKEN", ""),
		BotMode:           parseBotMode(getEnv("BOT_MODE", BotModeWebhook)),
		BotUsername:       strings.TrimPrefix(getEnv("BOT_USERNAME", ""), "@"),
		WebAppURL:         getEnv("WEBAPP_URL", ""),
		WebhookSecret:     getEnv("TELEGRAM_WEBHOOK_SECRET", ""),
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		AdminToken:        getEnv("ADMIN_TOKEN", ""),
		AdminAllowedCIDRs: splitList(getEnv("ADMIN_ALLOWED_CIDRS", "")),
		ResetHour:         parseResetHour(getEnv("RESET_HOUR", "0")),
		Location:          parseLocation(getEnv("GAME_TIMEZONE", "UTC")),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		AppEnv:            getEnv("APP_ENV", "production"),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func parseBotMode(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case BotModePolling:
		return BotModePolling
	case BotModeWebhook, "":
		return BotModeWebhook
	}
	log.Printf("Unknown BOT_MODE %q, using %s", v, BotModeWebhook)
	return BotModeWebhook
}

func parseResetHour(v string) int {
	hour, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || hour < 0 || hour > 23 {
		log.Printf("Invalid RESET_HOUR %q, using 0", v)
		return 0
	}
	return hour
}

func parseLocation(name string) *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(name))
	if err != nil {
		log.Printf("Invalid GAME_TIMEZONE %q, using UTC: %v", name, err)
		return time.UTC
	}
	return loc
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

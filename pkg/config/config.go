package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Stripe   StripeConfig
	Gate     GateConfig
	Log      LogConfig
	R2       R2Config
	Cron     CronConfig
}

type ServerConfig struct {
	Port   string
	AppURL string
}

type DatabaseConfig struct {
	URL string
}

type JWTConfig struct {
	Secret string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	PriceID       string
	ProProductIDs []string
	ProPriceIDs   []string
}

// GateConfig controls the dashboard access gate. Mode is "strict" or
// "permissive"; permissive authorizes on missing rows and lookup errors.
type GateConfig struct {
	Mode        string
	LoginPath   string
	PricingPath string
}

type LogConfig struct {
	Level  string
	Format string
}

type R2Config struct {
	AccountID string
	AccessKey string
	SecretKey string
	Bucket    string
}

// Enabled reports whether webhook payload archiving has credentials.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.AccessKey != "" && c.SecretKey != "" && c.Bucket != ""
}

type CronConfig struct {
	ProfileSyncSchedule string
}

func Load() *Config {
	godotenv.Load() // .env is optional in containers

	return &Config{
		Server: ServerConfig{
			Port:   getEnv("PORT", "3000"),
			AppURL: strings.TrimRight(getEnv("APP_URL", "http://localhost:3000"), "/"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			PriceID:       getEnv("STRIPE_PRICE_ID", ""),
			ProProductIDs: splitList(getEnv("STRIPE_PRO_PRODUCT_IDS", "")),
			ProPriceIDs:   splitList(getEnv("STRIPE_PRO_PRICE_IDS", "")),
		},
		Gate: GateConfig{
			Mode:        strings.ToLower(getEnv("GATE_MODE", "strict")),
			LoginPath:   getEnv("LOGIN_PATH", "/sign-in"),
			PricingPath: getEnv("PRICING_PATH", "/pricing"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		R2: R2Config{
			AccountID: getEnv("R2_ACCOUNT_ID", ""),
			AccessKey: getEnv("R2_ACCESS_KEY", ""),
			SecretKey: getEnv("R2_SECRET_KEY", ""),
			Bucket:    getEnv("R2_BUCKET_NAME", ""),
		},
		Cron: CronConfig{
			ProfileSyncSchedule: getEnv("PROFILE_SYNC_SCHEDULE", "0 4 * * *"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
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

package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DefaultPort          = "3000"
	DefaultSessionPath   = "./whatsapp_session"
	DefaultMessageFooter = "\n\n> _Sent via https://vpnmurah.com_"
	DefaultDeviceName    = "Gowa Gateway"
)

type Config struct {
	Port        string
	APIKey      string
	SessionPath string
	// Optional postgres DSN for the whatsmeow device store. Empty means a
	// sqlite file under SessionPath.
	SessionDatabaseURL string
	WebhookURL         string
	WebhookSecret      string
	Environment        string

	LogFile  string
	LogLevel string

	AllowOrigins       []string
	RateLimitPerSecond int
	RateLimitBurst     int

	MessageFooter string
	DeviceName    string
}

// Load reads the env file (missing file is fine, e.g. in production) and
// builds the Config from the process environment.
func Load(envFile string) *Config {
	if envFile == "" {
		_ = godotenv.Load()
	} else {
		_ = godotenv.Load(envFile)
	}

	env := strings.ToLower(getEnv("APP_ENV", getEnv("NODE_ENV", EnvDevelopment)))

	return &Config{
		Port:               getEnv("PORT", DefaultPort),
		APIKey:             os.Getenv("API_KEY"),
		SessionPath:        getEnv("WHATSAPP_SESSION_PATH", DefaultSessionPath),
		SessionDatabaseURL: os.Getenv("SESSION_DATABASE_URL"),
		WebhookURL:         os.Getenv("WEBHOOK_URL"),
		WebhookSecret:      os.Getenv("WEBHOOK_SECRET"),
		Environment:        env,
		LogFile:            os.Getenv("LOG_FILE"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		AllowOrigins:       splitList(getEnv("CORS_ALLOW_ORIGINS", "*")),
		RateLimitPerSecond: getEnvAsInt("RATE_LIMIT_PER_SECOND", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),
		MessageFooter:      getEnvRaw("MESSAGE_FOOTER", DefaultMessageFooter),
		DeviceName:         getEnv("WHATSAPP_DEVICE_NAME", DefaultDeviceName),
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

// getEnvRaw keeps surrounding whitespace, the footer starts with newlines.
// A set-but-empty variable disables the value.
func getEnvRaw(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.ReplaceAll(value, `\n`, "\n")
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := cast.ToIntE(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

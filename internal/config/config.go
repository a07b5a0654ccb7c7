package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr             string
	DatabaseURL          string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	JWTSecret string

	GroqAPIKey  string
	GroqBaseURL string
	GroqModel   string

	FCMServerKey string
	FCMEndpoint  string

	GmailBaseURL string

	NotifyHours       []int
	NotifyBatchSize   int
	NotifyMaxAttempts int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:          mustGetenv("DATABASE_URL"),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",

		GroqAPIKey:  getenv("GROQ_API_KEY", ""),
		GroqBaseURL: getenv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		GroqModel:   getenv("GROQ_MODEL", "llama-3.3-70b-versatile"),

		FCMServerKey: getenv("FCM_SERVER_KEY", ""),
		FCMEndpoint:  getenv("FCM_ENDPOINT", "https://fcm.googleapis.com/fcm/send"),

		GmailBaseURL: getenv("GMAIL_BASE_URL", "https://gmail.googleapis.com/gmail/v1"),

		NotifyBatchSize:   getenvInt("NOTIFY_BATCH_SIZE", 100),
		NotifyMaxAttempts: getenvInt("NOTIFY_MAX_ATTEMPTS", 8),
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	// Hours of day (0-23) the notification scheduler fires at.
	hours := strings.Split(getenv("NOTIFY_HOURS", "2,8,14,20"), ",")
	for _, h := range hours {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if n, err := strconv.Atoi(h); err == nil && n >= 0 && n <= 23 {
			cfg.NotifyHours = append(cfg.NotifyHours, n)
		}
	}

	cfg.JWTSecret = mustGetenv("JWT_SECRET")
	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func mustGetenv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		panic("missing env: " + key)
	}
	return v
}

package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr string
	StaticDir  string

	STUNServers []string

	TranslateEndpoint string
	TranslateAPIKey   string
	TranslateTimeout  time.Duration

	// Client-side settings.
	SignalURL  string
	Room       string
	OutputLang string
	NotesDB    string
}

func Load() *Config {
	// A missing .env file is fine; env vars win either way.
	_ = godotenv.Load()

	return &Config{
		ListenAddr:        getEnv("LISTEN_ADDR", ":8080"),
		StaticDir:         getEnv("STATIC_DIR", ""),
		STUNServers:       splitList(getEnv("STUN_SERVERS", "stun:stun.l.google.com:19302")),
		TranslateEndpoint: getEnv("TRANSLATE_ENDPOINT", "https://translation.googleapis.com/language/translate/v2"),
		TranslateAPIKey:   getEnv("TRANSLATE_API_KEY", ""),
		TranslateTimeout:  getDuration("TRANSLATE_TIMEOUT", 10*time.Second),
		SignalURL:         getEnv("SIGNAL_URL", "ws://localhost:8080/ws"),
		Room:              getEnv("ROOM", "rtm"),
		OutputLang:        getEnv("OUTPUT_LANG", "en"),
		NotesDB:           getEnv("NOTES_DB", "rtm-notes.db"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

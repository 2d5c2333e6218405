// Package config loads runtime settings from the environment and an
// optional .env file.
package config

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Limit is a request budget over a window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// NATS holds the optional relay connection settings. An empty URL
// disables the relay.
type NATS struct {
	URL           string
	User          string
	Password      string
	CredsFile     string
	SubjectPrefix string
}

type Config struct {
	Port             string
	AllowedOrigins   []string
	MaxMessageSize   int64
	MessageRate      Limit
	ConnectRate      Limit
	NicknameMaxLen   int
	SanitizeMessages bool
	// TrustProxyHeaders takes the client IP from X-Forwarded-For/X-Real-IP.
	TrustProxyHeaders bool
	LogLevel          slog.Level
	NATS              NATS
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Port:           "8080",
		AllowedOrigins: []string{"localhost:8080"},
		MaxMessageSize: 4096,
		MessageRate:    Limit{Requests: 30, Window: time.Minute},
		ConnectRate:    Limit{Requests: 20, Window: time.Minute},
		NicknameMaxLen: 32,
		LogLevel:       slog.LevelInfo,
		NATS:           NATS{SubjectPrefix: "roomchat"},
	}
}

// Load reads files (".env" when none are given) into the process
// environment and builds a Config from it. A missing file is not an error.
func Load(files ...string) Config {
	if err := godotenv.Load(files...); err != nil {
		log.Printf("failed to load .env file: %+v", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, falling back to Default for unset
// or invalid values.
func FromEnv(getenv func(string) string) Config {
	cfg := Default()

	if v := getenv("PORT"); v != "" {
		cfg.Port = strings.TrimPrefix(v, ":")
	}
	if v := getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = parseList(v)
	}
	cfg.MaxMessageSize = parseInt64(getenv("MAX_MESSAGE_SIZE"), cfg.MaxMessageSize)

	cfg.MessageRate.Requests = parseInt(getenv("MESSAGE_RATE_LIMIT"), cfg.MessageRate.Requests)
	cfg.MessageRate.Window = parseDuration(getenv("MESSAGE_RATE_WINDOW"), cfg.MessageRate.Window)
	cfg.ConnectRate.Requests = parseInt(getenv("IP_RATE_LIMIT"), cfg.ConnectRate.Requests)
	cfg.ConnectRate.Window = parseDuration(getenv("IP_RATE_WINDOW"), cfg.ConnectRate.Window)

	cfg.NicknameMaxLen = parseInt(getenv("NICKNAME_MAX_LENGTH"), cfg.NicknameMaxLen)
	if v, err := strconv.ParseBool(getenv("SANITIZE_MESSAGES")); err == nil {
		cfg.SanitizeMessages = v
	}
	if v, err := strconv.ParseBool(getenv("TRUST_PROXY_HEADERS")); err == nil {
		cfg.TrustProxyHeaders = v
	}
	cfg.LogLevel = parseLevel(getenv("LOG_LEVEL"), cfg.LogLevel)

	cfg.NATS.URL = getenv("NATS_URL")
	cfg.NATS.User = getenv("NATS_USER")
	cfg.NATS.Password = getenv("NATS_PASSWORD")
	cfg.NATS.CredsFile = getenv("NATS_CRED")
	if v := getenv("NATS_SUBJECT_PREFIX"); v != "" {
		cfg.NATS.SubjectPrefix = v
	}

	return cfg
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return "0.0.0.0:" + c.Port
}

func parseList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt(v string, def int) int {
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return n
	}
	return def
}

func parseInt64(v string, def int64) int64 {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
		return n
	}
	return def
}

// parseDuration accepts Go durations ("30s") or a bare number of seconds.
func parseDuration(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}

func parseLevel(v string, def slog.Level) slog.Level {
	if v == "" {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		return def
	}
	return l
}

package session

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"strconv"
)

// Config holds cookie settings for the per-tab session.
type Config struct {
	CookieName string
	// HashKey authenticates the cookie; BlockKey encrypts it (16, 24 or 32 bytes).
	HashKey  []byte
	BlockKey []byte
	Secure   bool
	// MaxAge of zero keeps the cookie for the browser session only.
	MaxAge int
	// Ephemeral is true when keys were generated at startup.
	Ephemeral bool
}

// LoadConfig loads session configuration from environment variables.
// Keys are base64 encoded; missing keys are generated, which invalidates
// sessions on restart.
func LoadConfig() Config {
	cfg := Config{
		CookieName: getenv("SESSION_COOKIE_NAME", "invoice-manager-session"),
		Secure:     getBool("SESSION_COOKIE_SECURE", false),
		MaxAge:     getInt("SESSION_MAX_AGE", 0),
	}
	cfg.HashKey = decodeKey(os.Getenv("SESSION_HASH_KEY"))
	cfg.BlockKey = decodeKey(os.Getenv("SESSION_BLOCK_KEY"))
	if cfg.HashKey == nil {
		cfg.HashKey = randomKey(64)
		cfg.Ephemeral = true
	}
	if cfg.BlockKey == nil {
		cfg.BlockKey = randomKey(32)
		cfg.Ephemeral = true
	}
	return cfg
}

func decodeKey(v string) []byte {
	if v == "" {
		return nil
	}
	b, err := base64.StdEncoding.DecodeString(v)
	if err != nil || len(b) == 0 {
		return nil
	}
	return b
}

func randomKey(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

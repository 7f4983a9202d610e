package assist

import (
	"os"
	"time"
)

// Config selects the chat-completions endpoint used by HTTPRunner.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// Enabled reports whether an endpoint is configured.
func (c Config) Enabled() bool { return c.Endpoint != "" }

func LoadConfig() Config {
	return Config{
		Endpoint: getenv("AI_ENDPOINT", ""),
		APIKey:   getenv("AI_API_KEY", ""),
		Model:    getenv("AI_MODEL", "gpt-4o-mini"),
		Timeout:  getDuration("AI_TIMEOUT", 20*time.Second),
	}
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

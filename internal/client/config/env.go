package config

import (
	"os"

	"github.com/joho/godotenv"
)

// loadDotEnv is replaced in tests.
var loadDotEnv = func() { _ = godotenv.Load() }

// parseEnv reads API_BASE_URL, falling back to NEXT_PUBLIC_BASE_URL which
// the web frontend uses for the same value.
func parseEnv(c *Config) {
	loadDotEnv()

	for _, key := range []string{"API_BASE_URL", "NEXT_PUBLIC_BASE_URL"} {
		if v := os.Getenv(key); v != "" {
			c.APIBaseURL = v
			return
		}
	}
}

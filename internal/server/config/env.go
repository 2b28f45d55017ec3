package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// loadDotEnv is replaced in tests so a developer's .env does not leak in.
var loadDotEnv = func() { _ = godotenv.Load() }

// parseEnv overlays every variable that is set and non-empty.
func parseEnv(c *Config) error {
	loadDotEnv()

	setString(&c.Port, "PORT")
	setString(&c.BaseURL, "BASE_URL")
	setString(&c.GinMode, "GIN_MODE")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.DatabaseDSN, "DATABASE_URL")
	setString(&c.SecretKey, "JWT_SECRET")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.EdgeAddress, "EDGE_ADDRESS")
	setString(&c.FrontendUpstream, "FRONTEND_UPSTREAM")
	setString(&c.S3RootUser, "S3_ROOT_USER")
	setString(&c.S3RootPassword, "S3_ROOT_PASSWORD")
	setString(&c.S3Bucket, "S3_BUCKET")
	setString(&c.S3Region, "S3_REGION")
	setString(&c.S3BaseEndpoint, "S3_BASE_ENDPOINT")
	setString(&c.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORSAllowedOrigins = splitList(v)
	}

	durations := []struct {
		dst *time.Duration
		key string
	}{
		{&c.AccessTokenValidityDuration, "ACCESS_TOKEN_TTL"},
		{&c.RefreshTokenValidityDuration, "REFRESH_TOKEN_TTL"},
		{&c.PasswordResetValidity, "PASSWORD_RESET_TTL"},
		{&c.LoginAttemptWindow, "LOGIN_ATTEMPT_WINDOW"},
		{&c.LoginLockDuration, "LOGIN_LOCK_DURATION"},
		{&c.AuditWriteTimeout, "AUDIT_WRITE_TIMEOUT"},
		{&c.AuditArchiveInterval, "AUDIT_ARCHIVE_INTERVAL"},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.key); err != nil {
			return err
		}
	}

	if err := setInt(&c.LoginMaxAttempts, "LOGIN_MAX_ATTEMPTS"); err != nil {
		return err
	}
	return setInt(&c.RealtimeBuffer, "REALTIME_BUFFER")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Tarcisio20/meu-gerente/internal/flagx"
	"github.com/Tarcisio20/meu-gerente/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors Config for config files. Zero values leave the
// current setting untouched.
type FileConfig struct {
	Port                         string         `json:"port" yaml:"port"`
	BaseURL                      string         `json:"base_url" yaml:"base_url"`
	GinMode                      string         `json:"gin_mode" yaml:"gin_mode"`
	LogLevel                     string         `json:"log_level" yaml:"log_level"`
	DatabaseDSN                  string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey                    string         `json:"secret_key" yaml:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration" yaml:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration" yaml:"refresh_token_validity_duration"`
	PasswordResetValidity        timex.Duration `json:"password_reset_validity" yaml:"password_reset_validity"`
	RedisURL                     string         `json:"redis_url" yaml:"redis_url"`
	CORSAllowedOrigins           []string       `json:"cors_allowed_origins" yaml:"cors_allowed_origins"`
	EdgeAddress                  string         `json:"edge_address" yaml:"edge_address"`
	FrontendUpstream             string         `json:"frontend_upstream" yaml:"frontend_upstream"`
	LoginMaxAttempts             int            `json:"login_max_attempts" yaml:"login_max_attempts"`
	LoginAttemptWindow           timex.Duration `json:"login_attempt_window" yaml:"login_attempt_window"`
	LoginLockDuration            timex.Duration `json:"login_lock_duration" yaml:"login_lock_duration"`
	AuditWriteTimeout            timex.Duration `json:"audit_write_timeout" yaml:"audit_write_timeout"`
	AuditArchiveInterval         timex.Duration `json:"audit_archive_interval" yaml:"audit_archive_interval"`
	S3RootUser                   string         `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region                     string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	OTLPEndpoint                 string         `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	RealtimeBuffer               int            `json:"realtime_buffer" yaml:"realtime_buffer"`
}

// parseFile reads the file named by -c/-config. The extension picks the
// decoder: .yaml and .yml use YAML, anything else JSON.
func parseFile(c *Config) error {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	fc := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	fc.apply(c)
	return nil
}

func (fc *FileConfig) apply(c *Config) {
	strs := []struct {
		dst *string
		v   string
	}{
		{&c.Port, fc.Port},
		{&c.BaseURL, fc.BaseURL},
		{&c.GinMode, fc.GinMode},
		{&c.LogLevel, fc.LogLevel},
		{&c.DatabaseDSN, fc.DatabaseDSN},
		{&c.SecretKey, fc.SecretKey},
		{&c.RedisURL, fc.RedisURL},
		{&c.EdgeAddress, fc.EdgeAddress},
		{&c.FrontendUpstream, fc.FrontendUpstream},
		{&c.S3RootUser, fc.S3RootUser},
		{&c.S3RootPassword, fc.S3RootPassword},
		{&c.S3Bucket, fc.S3Bucket},
		{&c.S3Region, fc.S3Region},
		{&c.S3BaseEndpoint, fc.S3BaseEndpoint},
		{&c.OTLPEndpoint, fc.OTLPEndpoint},
	}
	for _, s := range strs {
		if s.v != "" {
			*s.dst = s.v
		}
	}

	durs := []struct {
		dst *time.Duration
		v   timex.Duration
	}{
		{&c.AccessTokenValidityDuration, fc.AccessTokenValidityDuration},
		{&c.RefreshTokenValidityDuration, fc.RefreshTokenValidityDuration},
		{&c.PasswordResetValidity, fc.PasswordResetValidity},
		{&c.LoginAttemptWindow, fc.LoginAttemptWindow},
		{&c.LoginLockDuration, fc.LoginLockDuration},
		{&c.AuditWriteTimeout, fc.AuditWriteTimeout},
		{&c.AuditArchiveInterval, fc.AuditArchiveInterval},
	}
	for _, d := range durs {
		if d.v.Duration != 0 {
			*d.dst = d.v.Duration
		}
	}

	if len(fc.CORSAllowedOrigins) > 0 {
		c.CORSAllowedOrigins = fc.CORSAllowedOrigins
	}
	if fc.LoginMaxAttempts != 0 {
		c.LoginMaxAttempts = fc.LoginMaxAttempts
	}
	if fc.RealtimeBuffer != 0 {
		c.RealtimeBuffer = fc.RealtimeBuffer
	}
}

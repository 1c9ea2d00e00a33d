package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/storefront/internal/timex"
)

// JsonConfig is the on-disk shape of the optional config file. Durations use
// timex.Duration so both "15m" and integer nanoseconds are accepted.
type JsonConfig struct {
	HTTPAddr      string `json:"http_addr"`
	GRPCAddr      string `json:"grpc_addr"`
	StorageDriver string `json:"storage_driver"`
	DatabaseDSN   string `json:"database_dsn"`
	LogLevel      string `json:"log_level"`

	SecretKey                    string         `json:"secret_key"`
	Issuer                       string         `json:"issuer"`
	Audience                     string         `json:"audience"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`

	RedisAddr        string         `json:"redis_addr"`
	LoginMaxAttempts int            `json:"login_max_attempts"`
	LoginWindow      timex.Duration `json:"login_window"`

	CORSOrigins []string `json:"cors_origins"`

	AuditBufferSize int    `json:"audit_buffer_size"`
	AuditBucket     string `json:"audit_bucket"`
	S3Region        string `json:"s3_region"`
	S3BaseEndpoint  string `json:"s3_base_endpoint"`
	S3RootUser      string `json:"s3_root_user"`
	S3RootPassword  string `json:"s3_root_password"`

	ResendAPIKey string `json:"resend_api_key"`
	AlertFrom    string `json:"alert_from"`
	AlertTo      string `json:"alert_to"`
}

// parseJson overlays the non-empty values of the JSON file at path onto
// config. An empty path loads nothing.
func parseJson(config *Config, path string) error {
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.StorageDriver, c.StorageDriver)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.Issuer, c.Issuer)
	setString(&config.Audience, c.Audience)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setString(&config.RedisAddr, c.RedisAddr)
	setInt(&config.LoginMaxAttempts, c.LoginMaxAttempts)
	setDuration(&config.LoginWindow, c.LoginWindow)
	if len(c.CORSOrigins) > 0 {
		config.CORSOrigins = c.CORSOrigins
	}
	setInt(&config.AuditBufferSize, c.AuditBufferSize)
	setString(&config.AuditBucket, c.AuditBucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.ResendAPIKey, c.ResendAPIKey)
	setString(&config.AlertFrom, c.AlertFrom)
	setString(&config.AlertTo, c.AlertTo)

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names read by parseEnv.
const (
	envHTTPAddr      = "STOREFRONT_HTTP_ADDR"
	envGRPCAddr      = "STOREFRONT_GRPC_ADDR"
	envStorageDriver = "STOREFRONT_STORAGE"
	envDatabaseDSN   = "DATABASE_URL"
	envLogLevel      = "STOREFRONT_LOG_LEVEL"
	envSecretKey     = "JWT_SECRET"
	envIssuer        = "JWT_ISSUER"
	envAudience      = "JWT_AUDIENCE"
	envAccessTTL     = "ACCESS_TOKEN_TTL"
	envRefreshTTL    = "REFRESH_TOKEN_TTL"
	envRedisAddr     = "REDIS_ADDR"
	envLoginMax      = "LOGIN_MAX_ATTEMPTS"
	envLoginWindow   = "LOGIN_WINDOW"
	envCORSOrigins   = "CORS_ORIGINS"
	envAuditBuffer   = "AUDIT_BUFFER_SIZE"
	envAuditBucket   = "AUDIT_S3_BUCKET"
	envS3Region      = "S3_REGION"
	envS3Endpoint    = "S3_BASE_ENDPOINT"
	envS3User        = "S3_ROOT_USER"
	envS3Password    = "S3_ROOT_PASSWORD"
	envResendAPIKey  = "RESEND_API_KEY"
	envAlertFrom     = "ALERT_FROM"
	envAlertTo       = "ALERT_TO"
)

// parseEnv loads the .env file at path (or ./.env when path is empty and the
// file exists) into the process environment and overlays every variable that
// is set. Variables already present in the environment win over the file.
func parseEnv(config *Config, path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("config: load %s: %w", path, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: load .env: %w", err)
	}

	envString(&config.HTTPAddr, envHTTPAddr)
	envString(&config.GRPCAddr, envGRPCAddr)
	envString(&config.StorageDriver, envStorageDriver)
	envString(&config.DatabaseDSN, envDatabaseDSN)
	envString(&config.LogLevel, envLogLevel)
	envString(&config.SecretKey, envSecretKey)
	envString(&config.Issuer, envIssuer)
	envString(&config.Audience, envAudience)
	envString(&config.RedisAddr, envRedisAddr)
	envString(&config.AuditBucket, envAuditBucket)
	envString(&config.S3Region, envS3Region)
	envString(&config.S3BaseEndpoint, envS3Endpoint)
	envString(&config.S3RootUser, envS3User)
	envString(&config.S3RootPassword, envS3Password)
	envString(&config.ResendAPIKey, envResendAPIKey)
	envString(&config.AlertFrom, envAlertFrom)
	envString(&config.AlertTo, envAlertTo)

	if v, ok := os.LookupEnv(envCORSOrigins); ok && v != "" {
		config.CORSOrigins = splitList(v)
	}

	for name, dst := range map[string]*time.Duration{
		envAccessTTL:   &config.AccessTokenValidityDuration,
		envRefreshTTL:  &config.RefreshTokenValidityDuration,
		envLoginWindow: &config.LoginWindow,
	} {
		if err := envDuration(dst, name); err != nil {
			return err
		}
	}

	for name, dst := range map[string]*int{
		envLoginMax:    &config.LoginMaxAttempts,
		envAuditBuffer: &config.AuditBufferSize,
	} {
		if err := envInt(dst, name); err != nil {
			return err
		}
	}

	return nil
}

func envString(dst *string, name string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*dst = v
	}
}

func envDuration(dst *time.Duration, name string) error {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", name, err)
	}
	*dst = d
	return nil
}

func envInt(dst *int, name string) error {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", name, err)
	}
	*dst = n
	return nil
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

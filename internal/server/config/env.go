package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvGRPCAddr       = "THEWORK_GRPC_ADDR"
	EnvDatabaseDSN    = "THEWORK_DATABASE_DSN"
	EnvSecretKey      = "THEWORK_SECRET_KEY"
	EnvAccessTTL      = "THEWORK_ACCESS_TOKEN_TTL"
	EnvRefreshTTL     = "THEWORK_REFRESH_TOKEN_TTL"
	EnvStorageBackend = "THEWORK_STORAGE_BACKEND"
	EnvCouchDBURL     = "THEWORK_COUCHDB_URL"
	EnvCouchDBName    = "THEWORK_COUCHDB_NAME"
	EnvS3User         = "THEWORK_S3_USER"
	EnvS3Password     = "THEWORK_S3_PASSWORD"
	EnvS3Bucket       = "THEWORK_S3_BUCKET"
	EnvS3Region       = "THEWORK_S3_REGION"
	EnvS3BaseEndpoint = "THEWORK_S3_ENDPOINT"
	dotEnvFile        = ".env"
)

// parseEnv overlays variables from the process environment. A .env file in
// the working directory is loaded first when present; it never overrides
// variables that are already set.
func parseEnv(config *Config) {
	_ = godotenv.Load(dotEnvFile)

	setString(&config.EndpointAddrGRPC, EnvGRPCAddr)
	setString(&config.DatabaseDSN, EnvDatabaseDSN)
	setString(&config.SecretKey, EnvSecretKey)
	setDuration(&config.AccessTokenValidityDuration, EnvAccessTTL)
	setDuration(&config.RefreshTokenValidityDuration, EnvRefreshTTL)
	setString(&config.StorageBackend, EnvStorageBackend)
	setString(&config.CouchDBURL, EnvCouchDBURL)
	setString(&config.CouchDBName, EnvCouchDBName)
	setString(&config.S3RootUser, EnvS3User)
	setString(&config.S3RootPassword, EnvS3Password)
	setString(&config.S3Bucket, EnvS3Bucket)
	setString(&config.S3Region, EnvS3Region)
	setString(&config.S3BaseEndpoint, EnvS3BaseEndpoint)
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// setDuration accepts Go durations ("15m") or bare minutes ("15").
func setDuration(dst *time.Duration, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Minute
		return
	}
	panic("invalid duration in " + key + ": " + v)
}

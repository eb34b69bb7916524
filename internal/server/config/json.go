package config

import (
	"github.com/simonexmachina/the-work/internal/flagx"
	"github.com/simonexmachina/the-work/internal/timex"
)

// JsonConfig mirrors Config for JSON files. Durations accept "15m" or
// integer nanoseconds. Absent keys leave the current value untouched.
type JsonConfig struct {
	EndpointAddrGRPC             *string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                  *string         `json:"database_dsn"`
	SecretKey                    *string         `json:"secret_key"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	StorageBackend               *string         `json:"storage_backend"`
	CouchDBURL                   *string         `json:"couchdb_url"`
	CouchDBName                  *string         `json:"couchdb_name"`
	S3RootUser                   *string         `json:"s3_root_user"`
	S3RootPassword               *string         `json:"s3_root_password"`
	S3Bucket                     *string         `json:"s3_bucket"`
	S3Region                     *string         `json:"s3_region"`
	S3BaseEndpoint               *string         `json:"s3_base_endpoint"`
}

// parseJson overlays the file named by -c/-config, if any.
func parseJson(config *Config) {
	path := flagx.JsonConfigFlags()
	if path == "" {
		return
	}

	c := &JsonConfig{}
	if err := flagx.LoadJSON(path, c); err != nil {
		panic(err)
	}
	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	for _, f := range []struct {
		src *string
		dst *string
	}{
		{c.EndpointAddrGRPC, &config.EndpointAddrGRPC},
		{c.DatabaseDSN, &config.DatabaseDSN},
		{c.SecretKey, &config.SecretKey},
		{c.StorageBackend, &config.StorageBackend},
		{c.CouchDBURL, &config.CouchDBURL},
		{c.CouchDBName, &config.CouchDBName},
		{c.S3RootUser, &config.S3RootUser},
		{c.S3RootPassword, &config.S3RootPassword},
		{c.S3Bucket, &config.S3Bucket},
		{c.S3Region, &config.S3Region},
		{c.S3BaseEndpoint, &config.S3BaseEndpoint},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}

	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration != nil {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
}

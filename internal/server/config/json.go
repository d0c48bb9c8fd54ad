package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/uploadsvc/internal/flagx"
	"github.com/dmitrijs2005/uploadsvc/internal/timex"
)

// JsonConfig is the on-disk shape of the JSON config file. Durations use
// timex.Duration so both "500ms" and integer nanoseconds are accepted.
// Pointer fields distinguish "absent" from an explicit zero value.
type JsonConfig struct {
	EndpointAddrHTTP   string          `json:"endpoint_addr_http"`
	DatabaseDSN        string          `json:"database_dsn"`
	SecretKey          string          `json:"secret_key"`
	LogLevel           string          `json:"log_level"`
	S3AccessKey        string          `json:"s3_access_key"`
	S3SecretKey        string          `json:"s3_secret_key"`
	S3Bucket           string          `json:"s3_bucket"`
	S3Region           string          `json:"s3_region"`
	S3BaseEndpoint     string          `json:"s3_base_endpoint"`
	S3UsePathStyle     *bool           `json:"s3_use_path_style"`
	PartSize           int64           `json:"part_size"`
	MaxRetries         int             `json:"s3_retry_count"`
	RetryDelay         *timex.Duration `json:"retry_delay"`
	PartURLExpiry      *timex.Duration `json:"part_url_expiry"`
	DownloadURLExpiry  *timex.Duration `json:"download_url_expiry"`
	PresignConcurrency int             `json:"presign_concurrency"`
	TablePrefix        *string         `json:"tables_prefix"`
	UsersTable         string          `json:"users_table"`
	RoutesPrefix       string          `json:"routes_prefix"`
}

// parseJson overlays Config with values from the JSON file named by the -c
// or -config flag. Without the flag nothing is loaded. Fields missing from
// the file keep their current value. An unreadable file or invalid JSON
// panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.UsersTable, c.UsersTable)
	setString(&config.RoutesPrefix, c.RoutesPrefix)

	if c.S3UsePathStyle != nil {
		config.S3UsePathStyle = *c.S3UsePathStyle
	}
	if c.PartSize != 0 {
		config.PartSize = c.PartSize
	}
	if c.MaxRetries != 0 {
		config.MaxRetries = c.MaxRetries
	}
	if c.PresignConcurrency != 0 {
		config.PresignConcurrency = c.PresignConcurrency
	}
	if c.RetryDelay != nil {
		config.RetryDelay = c.RetryDelay.Duration
	}
	if c.PartURLExpiry != nil {
		config.PartURLExpiry = c.PartURLExpiry.Duration
	}
	if c.DownloadURLExpiry != nil {
		config.DownloadURLExpiry = c.DownloadURLExpiry.Duration
	}
	if c.TablePrefix != nil {
		config.TablePrefix = *c.TablePrefix
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

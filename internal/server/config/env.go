package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/uploadsvc/internal/flagx"
	"github.com/joho/godotenv"
)

// parseEnv overlays Config with environment variables. A dotenv file named
// by -env-file, or ./.env when present, is loaded first; variables already
// set in the process environment win over the file.
//
// Recognised variables:
//
//	UPLOAD_HTTP_ADDR, DATABASE_URL, UPLOAD_SECRET_KEY, LOG_LEVEL,
//	UPLOAD_S3_KEY, UPLOAD_S3_SECRET, AWS_S3_BUCKET, AWS_REGION,
//	UPLOAD_S3_ENDPOINT, UPLOAD_S3_PATH_STYLE, UPLOAD_PART_SIZE,
//	UPLOAD_S3_RETRY_COUNT, UPLOAD_RETRY_DELAY, UPLOAD_PART_URL_EXPIRY,
//	UPLOAD_DOWNLOAD_URL_EXPIRY, UPLOAD_PRESIGN_CONCURRENCY,
//	UPLOAD_TABLES_PREFIX, UPLOAD_USERS_TABLE, UPLOAD_ROUTES_PREFIX
//
// Empty variables are ignored. Malformed numeric, boolean or duration values panic, like malformed JSON.
func parseEnv(config *Config) {
	envFile := flagx.EnvFileFlags()
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			panic(err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	envString("UPLOAD_HTTP_ADDR", &config.EndpointAddrHTTP)
	envString("DATABASE_URL", &config.DatabaseDSN)
	envString("UPLOAD_SECRET_KEY", &config.SecretKey)
	envString("LOG_LEVEL", &config.LogLevel)
	envString("UPLOAD_S3_KEY", &config.S3AccessKey)
	envString("UPLOAD_S3_SECRET", &config.S3SecretKey)
	envString("AWS_S3_BUCKET", &config.S3Bucket)
	envString("AWS_REGION", &config.S3Region)
	envString("UPLOAD_S3_ENDPOINT", &config.S3BaseEndpoint)
	envBool("UPLOAD_S3_PATH_STYLE", &config.S3UsePathStyle)
	envInt64("UPLOAD_PART_SIZE", &config.PartSize)
	envInt("UPLOAD_S3_RETRY_COUNT", &config.MaxRetries)
	envDuration("UPLOAD_RETRY_DELAY", &config.RetryDelay)
	envDuration("UPLOAD_PART_URL_EXPIRY", &config.PartURLExpiry)
	envDuration("UPLOAD_DOWNLOAD_URL_EXPIRY", &config.DownloadURLExpiry)
	envInt("UPLOAD_PRESIGN_CONCURRENCY", &config.PresignConcurrency)
	envString("UPLOAD_TABLES_PREFIX", &config.TablePrefix)
	envString("UPLOAD_USERS_TABLE", &config.UsersTable)
	envString("UPLOAD_ROUTES_PREFIX", &config.RoutesPrefix)
}

func envString(name string, dst *string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*dst = v
	}
}

func envBool(name string, dst *bool) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			panic(name + ": " + err.Error())
		}
		*dst = b
	}
}

func envInt(name string, dst *int) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			panic(name + ": " + err.Error())
		}
		*dst = n
	}
}

func envInt64(name string, dst *int64) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			panic(name + ": " + err.Error())
		}
		*dst = n
	}
}

func envDuration(name string, dst *time.Duration) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			panic(name + ": " + err.Error())
		}
		*dst = d
	}
}

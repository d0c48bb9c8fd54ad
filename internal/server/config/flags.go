package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/uploadsvc/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-u string   S3 access key
//	-p string   S3 secret key
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-z int      multipart part size, bytes
//	-r int      provider retry attempts
//	-w int      delay between retry attempts, milliseconds
//	-x string   table name prefix
//
// Only the flags above are taken from os.Args (see flagx.FilterArgs), so
// -c and -env-file can coexist on the same command line.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-u", "-p", "-b", "-g", "-e", "-z", "-r", "-w", "-x"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	fs.StringVar(&config.S3AccessKey, "u", config.S3AccessKey, "S3 access key")
	fs.StringVar(&config.S3SecretKey, "p", config.S3SecretKey, "S3 secret key")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.Int64Var(&config.PartSize, "z", config.PartSize, "multipart part size (bytes)")
	fs.IntVar(&config.MaxRetries, "r", config.MaxRetries, "provider retry attempts")
	retryDelay := fs.Int("w", int(config.RetryDelay.Milliseconds()), "retry delay (in milliseconds)")
	fs.StringVar(&config.TablePrefix, "x", config.TablePrefix, "table name prefix")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.RetryDelay = time.Duration(*retryDelay) * time.Millisecond
}

// Command server runs the multipart upload service.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/dmitrijs2005/uploadsvc/internal/server"
	"github.com/dmitrijs2005/uploadsvc/internal/server/config"
)

// startupTimeout bounds database ping, migrations and AWS config loading.
const startupTimeout = 30 * time.Second

func main() {
	cfg := config.LoadConfig()

	startCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	app, err := server.NewApp(startCtx, cfg)
	cancel()
	if err != nil {
		log.Printf("startup failed: %v", err)
		os.Exit(1)
	}

	app.Run(context.Background())
}

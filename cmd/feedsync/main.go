// Command feedsync runs one feed to catalog sync and exits.
// The exit code is 1 when configuration is invalid or the run could not complete.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/feedsync/backend/config"
	"github.com/feedsync/backend/internal/app"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Printf("Failed to initialize: %v", err)
		return 1
	}
	defer application.Close()

	report, err := application.Sync.Run(ctx)
	if err != nil {
		log.Printf("Run failed: %v", err)
		return 1
	}

	log.Printf("Run %s finished: %d created, %d updated, %d unchanged, %d skipped, %d failed",
		report.ID, report.Created, report.Updated, report.Unchanged, report.Skipped, report.Failed)
	return 0
}

func init() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.SetOutput(os.Stdout)
}

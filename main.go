package main

import (
	"log"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/anonydoc/anonydoc/cli"
)

func main() {
	// Load .env before anything reads the environment
	if err := godotenv.Load(); err == nil {
		log.Println("📋 Loaded configuration from .env")
	}

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Environment: os.Getenv("SENTRY_ENVIRONMENT"),
		}); err != nil {
			log.Printf("⚠️ Sentry initialization failed: %v", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	if err := cli.Execute(); err != nil {
		log.Printf("❌ %v", err)
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"flag"
	"log"

	"post2image/internal/capture"
	"post2image/internal/env"
	"post2image/internal/platform"
	"post2image/internal/runnable"

	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is fine; the process environment still applies.
	_ = godotenv.Load()

	var backend string
	flag.StringVar(&backend, "browser-backend", env.OrDefault("BROWSER_BACKEND", capture.BackendPlaywright), "Browser backend (playwright or chromedp)")
	flag.BoolVar(&runnable.Debug, "debug", env.OrDefault("DEBUG", false), "Enable text logs and /debug/pprof")
	flag.Parse()

	ctx := context.Background()

	captureConfig, err := capture.ConfigFromEnv()
	if err != nil {
		log.Fatalf("invalid capture configuration: %v", err)
	}

	registry, err := platform.NewDefaultRegistry(platform.TimingsFromEnv())
	if err != nil {
		log.Fatalf("failed to build platform registry: %v", err)
	}

	browser, err := capture.NewBrowser(ctx, backend, capture.BrowserConfigFromEnv())
	if err != nil {
		log.Fatalf("failed to start browser: %v", err)
	}
	defer func() {
		if err := browser.Close(); err != nil {
			log.Printf("failed to close browser: %v", err)
		}
	}()

	if err := runnable.NewServer(browser, registry, captureConfig).Start(ctx); err != nil {
		log.Printf("server stopped: %v", err)
		return
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image/png"
	"log"
	"os"
	"slices"
	"time"

	"post2image/internal/capture"
	"post2image/internal/env"
	"post2image/internal/platform"
	"post2image/internal/storage"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

type captureOutput struct {
	Link     string `json:"link"`
	Platform string `json:"platform,omitempty"`
	Location string `json:"location,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Error    string `json:"error,omitempty"`
}

func main() {
	_ = godotenv.Load()

	var backend string
	var platformName string
	var storageBackend string
	var directory string
	var concurrency int
	var timeout time.Duration
	var verify bool
	flag.StringVar(&backend, "browser-backend", env.OrDefault("BROWSER_BACKEND", capture.BackendPlaywright), "Browser backend (playwright or chromedp)")
	flag.StringVar(&platformName, "platform", env.OrDefault("PLATFORM", ""), "Platform of every link; inferred from each link when empty")
	flag.StringVar(&storageBackend, "storage-backend", env.OrDefault("STORAGE_BACKEND", "file"), "Storage backend (file or s3)")
	flag.StringVar(&directory, "directory", env.OrDefault("DIRECTORY", "/tmp"), "Output directory for the file backend")
	flag.IntVar(&concurrency, "concurrency", env.OrDefault("MAX_SESSIONS", 4), "Links captured at once")
	flag.DurationVar(&timeout, "timeout", env.OrDefault("REQUEST_TIMEOUT", 120*time.Second), "Time limit per link")
	flag.BoolVar(&verify, "verify", env.OrDefault("VERIFY", false), "Read every stored capture back and check it")
	flag.Parse()

	links := flag.Args()
	if len(links) == 0 {
		log.Fatalf("usage: capture [flags] <link>...")
	}

	ctx := context.Background()

	var s storage.Storage
	var err error
	switch storageBackend {
	case "file":
		s, err = storage.NewFileStorage(ctx, storage.FileConfig{
			Directory: directory,
		})
	case "s3":
		s, err = storage.NewS3Storage(ctx, storage.S3Config{
			Bucket: os.Getenv("S3_BUCKET"),
			Prefix: env.OrDefault("S3_PREFIX", "Post2Image"),
		})
	default:
		err = xerrors.Errorf("unknown storage backend %q", storageBackend)
	}
	if err != nil {
		log.Fatalf("failed to create storage backend: %v", err)
	}

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

	capturer, err := capture.NewCapturer(browser, registry, captureConfig, nil)
	if err != nil {
		_ = browser.Close()
		log.Fatalf("failed to create capturer: %v", err)
	}

	outputs := make([]captureOutput, len(links))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(concurrency, 1))
	for i, link := range links {
		eg.Go(func() error {
			outputs[i] = captureOne(ctx, capturer, s, link, platformName, timeout, verify)
			return nil
		})
	}
	_ = eg.Wait()

	if err := browser.Close(); err != nil {
		log.Printf("failed to close browser: %v", err)
	}

	j, err := json.MarshalIndent(outputs, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal result: %v", err)
	}
	fmt.Println(string(j))

	if slices.ContainsFunc(outputs, func(o captureOutput) bool { return o.Error != "" }) {
		os.Exit(1)
	}
}

func captureOne(ctx context.Context, capturer *capture.Capturer, s storage.Storage, link string, platformName string, timeout time.Duration, verify bool) captureOutput {
	output := captureOutput{Link: link}

	if platformName == "" {
		id, err := platform.Classify(link)
		if err != nil {
			output.Error = err.Error()
			return output
		}
		platformName = id.String()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := capturer.Capture(ctx, capture.Request{Link: link, Platform: platformName})
	if err != nil {
		output.Error = fmt.Sprintf("%s: %v", capture.Kind(err), err)
		return output
	}

	location, err := s.Put(ctx, storage.Key(result.Platform.String(), link, time.Now()), result.Image, result.MimeType)
	if err != nil {
		output.Error = err.Error()
		return output
	}
	if verify {
		if err := verifyStored(ctx, s, location, result.Image); err != nil {
			output.Error = err.Error()
			return output
		}
	}

	output.Platform = result.Platform.String()
	output.Location = location
	output.Width = result.Width
	output.Height = result.Height
	return output
}

// verifyStored reads a capture back from storage and checks that it is the
// image that was written.
func verifyStored(ctx context.Context, s storage.Storage, location string, want []byte) error {
	got, err := s.Get(ctx, location)
	if err != nil {
		return xerrors.Errorf("failed to read back %s: %w", location, err)
	}
	if !bytes.Equal(got, want) {
		return xerrors.Errorf("%s holds %d bytes, wrote %d", location, len(got), len(want))
	}
	if _, err := png.DecodeConfig(bytes.NewReader(got)); err != nil {
		return xerrors.Errorf("%s is not a PNG: %w", location, err)
	}
	return nil
}

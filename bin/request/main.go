package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"post2image/internal/dataurl"
	"post2image/internal/env"
	"post2image/internal/retry"

	"github.com/joho/godotenv"
	"golang.org/x/xerrors"
)

type convertRequest struct {
	Link     string `json:"link"`
	Platform string `json:"platform"`
}

type convertResponse struct {
	ImageURL string `json:"imageUrl"`
	Platform string `json:"platform"`
	Message  string `json:"message"`
	Error    string `json:"error"`
}

func main() {
	_ = godotenv.Load()

	var endpoint string
	var platformName string
	var output string
	var retryOn string
	var maxRetries uint
	var timeout time.Duration
	flag.StringVar(&endpoint, "endpoint", env.OrDefault("POST2IMAGE_ENDPOINT", "http://localhost:8080/"), "Capture service URL")
	flag.StringVar(&platformName, "platform", env.OrDefault("PLATFORM", "X"), "Platform of the link")
	flag.StringVar(&output, "output", env.OrDefault("OUTPUT", "post.png"), "Where to write the PNG")
	flag.StringVar(&retryOn, "retry-on", env.OrDefault("RETRY_ON", retry.DefaultOn().String()), "Conditions that trigger a retry")
	flag.UintVar(&maxRetries, "max-retries", env.OrDefault("MAX_RETRIES", uint(3)), "Retries after the first attempt")
	flag.DurationVar(&timeout, "timeout", env.OrDefault("REQUEST_TIMEOUT", 5*time.Minute), "Overall time limit including retries")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("usage: request [flags] <link>")
	}

	on, err := retry.ParseOn(retryOn)
	if err != nil {
		log.Fatalf("invalid -retry-on: %v", err)
	}
	client := &http.Client{
		Transport: &retry.Transport{
			Strategy: retry.ExponentialBackOff{
				Base:       time.Second,
				Max:        30 * time.Second,
				MaxRetries: maxRetries,
			},
			On: on,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	response, err := convert(ctx, client, endpoint, convertRequest{Link: flag.Arg(0), Platform: platformName})
	if err != nil {
		log.Fatalf("failed to convert post: %v", err)
	}

	mimeType, data, err := dataurl.Decode(response.ImageURL)
	if err != nil {
		log.Fatalf("failed to decode image: %v", err)
	}
	if err := os.WriteFile(output, data, 0644); err != nil {
		log.Fatalf("failed to write %s: %v", output, err)
	}
	fmt.Printf("%s %s (%s, %d bytes)\n", response.Platform, output, mimeType, len(data))
}

func convert(ctx context.Context, client *http.Client, endpoint string, body convertRequest) (*convertResponse, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal request: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, xerrors.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := client.Do(request)
	if err != nil {
		return nil, xerrors.Errorf("failed to send request: %w", err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, xerrors.Errorf("failed to read response: %w", err)
	}
	var r convertResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, xerrors.Errorf("unexpected response %d %q: %w", response.StatusCode, raw, err)
	}
	if response.StatusCode != http.StatusOK {
		msg := r.Message
		if msg == "" {
			msg = r.Error
		}
		return nil, xerrors.Errorf("service answered %d: %s", response.StatusCode, msg)
	}
	return &r, nil
}

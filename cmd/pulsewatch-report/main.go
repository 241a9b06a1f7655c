// pulsewatch-report uploads a collector-produced report JSON file to the
// aggregation service. The collectors themselves write the file; this
// tool only speaks the wire contract.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/pulsewatch/pulsewatch/internal/client"
	"github.com/pulsewatch/pulsewatch/internal/models"
)

func main() {
	_ = godotenv.Load()

	var (
		file    string
		server  string
		token   string
		timeout time.Duration
	)
	flag.StringVar(&file, "file", "", "Path to the report JSON file (required)")
	flag.StringVar(&server, "server", envOr("SERVER_URL", "http://localhost:8080/upload"), "Upload endpoint URL")
	flag.StringVar(&token, "token", os.Getenv("API_TOKEN"), "Bearer token, if the server requires one")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Per-request timeout")
	flag.Parse()

	if file == "" {
		fmt.Fprintln(os.Stderr, "usage: pulsewatch-report -file report.json [-server URL] [-token TOKEN]")
		os.Exit(2)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read report: %v\n", err)
		os.Exit(1)
	}

	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		fmt.Fprintf(os.Stderr, "parse report: %v\n", err)
		os.Exit(1)
	}

	uploader := client.New(client.Config{
		ServerURL: server,
		Token:     token,
		Timeout:   timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := uploader.Upload(ctx, report); err != nil {
		fmt.Fprintf(os.Stderr, "upload: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("uploaded report for host %s\n", report.Host)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

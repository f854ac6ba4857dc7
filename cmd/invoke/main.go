// Command invoke runs the offers function once against a gateway event read
// from a file or stdin and prints the response event.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"offers-function/internal/app"
	"offers-function/internal/config"
	"offers-function/internal/gateway"
	"offers-function/internal/logger"
)

func main() {
	configFile := flag.String("config", "", "Path to JSON config file")
	eventFile := flag.String("event", "", "Path to the gateway event JSON (default: stdin)")
	flag.Parse()

	if err := run(*configFile, *eventFile, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configFile, eventFile string, stdin io.Reader, stdout io.Writer) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Logs go to stderr so stdout carries only the response event.
	log := logger.New(logger.Options{Level: cfg.LogLevel, Output: os.Stderr})

	in := stdin
	if eventFile != "" {
		f, err := os.Open(eventFile)
		if err != nil {
			return fmt.Errorf("failed to open event: %w", err)
		}
		defer f.Close()
		in = f
	}

	var req gateway.Request
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.Handler.Handle(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

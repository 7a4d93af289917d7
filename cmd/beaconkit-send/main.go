// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

// beaconkit-send is a smoke-test sender: it loads an SDK configuration,
// opens one session against the configured endpoint, reports an event
// per positional argument, and shuts down cleanly. Useful for checking
// endpoint reachability and watching the wire traffic of a deployment.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"github.com/beaconkit/beaconkit"
	"github.com/beaconkit/beaconkit/lib/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the YAML configuration file (required)")
	clientIP := flag.String("client-ip", "", "client IP reported with the session's beacons")
	userTag := flag.String("user", "", "user tag for the session (default: a random UUID)")
	initTimeout := flag.Duration("init-timeout", 30*time.Second, "how long to wait for the server handshake")
	linger := flag.Duration("linger", 0, "keep the session open this long (or until interrupted) before ending it")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *configPath == "" {
		return fmt.Errorf("--config is required")
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sdk, err := beaconkit.New(beaconkit.Config{
		Config: cfg,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer sdk.Shutdown()

	if !sdk.WaitForInitCompletion(*initTimeout) {
		return fmt.Errorf("handshake with %s did not complete within %v", cfg.EndpointURL, *initTimeout)
	}

	session := sdk.CreateSession(*clientIP)
	tag := *userTag
	if tag == "" {
		tag = uuid.NewString()
	}
	session.IdentifyUser(tag)

	for _, name := range flag.Args() {
		session.ReportEvent(name)
	}
	logger.Info("session opened",
		"endpoint", cfg.EndpointURL,
		"user", tag,
		"events", len(flag.Args()),
	)

	if *linger > 0 {
		select {
		case <-ctx.Done():
			logger.Info("interrupted, ending session")
		case <-time.After(*linger):
		}
	}

	session.End()
	sdk.Shutdown()
	logger.Info("session delivered")
	return nil
}

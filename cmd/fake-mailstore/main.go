// ABOUTME: Stand-in shared message store for local development
// ABOUTME: Accepts mail over SMTP and serves the tenant-agnostic HTTP API

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/mailgate/internal/devstore"
)

func main() {
	_ = godotenv.Load()

	httpAddr := flag.String("http", envOr("FAKE_MAILSTORE_HTTP", "localhost:8025"), "HTTP API listen address")
	smtpAddr := flag.String("smtp", envOr("FAKE_MAILSTORE_SMTP", "localhost:1025"), "SMTP listen address")
	dbPath := flag.String("db", envOr("FAKE_MAILSTORE_DB", "fake-mailstore.db"), "SQLite database path")
	flag.Parse()

	if err := run(*httpAddr, *smtpAddr, *dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(httpAddr, smtpAddr, dbPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default().With("component", "fake-mailstore")

	store, err := devstore.NewMessageStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening message store: %w", err)
	}
	defer store.Close()

	green := color.New(color.FgGreen)
	green.Print("  ▶ ")
	fmt.Printf("HTTP: %s\n", httpAddr)
	green.Print("  ▶ ")
	fmt.Printf("SMTP: %s\n", smtpAddr)
	green.Print("  ▶ ")
	fmt.Printf("DB:   %s\n", dbPath)
	fmt.Println()

	smtpServer := devstore.NewSMTPServer(store, smtpAddr)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           devstore.NewAPIServer(store).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("SMTP server listening", "addr", smtpAddr)
		if err := smtpServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("SMTP server: %w", err)
		}
	}()

	go func() {
		logger.Info("HTTP server listening", "addr", httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		logger.Info("context canceled, shutting down")
	case serverErr = <-errCh:
		logger.Error("server error", "error", serverErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown", "error", err)
	}
	if err := smtpServer.Close(); err != nil {
		logger.Error("SMTP shutdown", "error", err)
	}

	return serverErr
}

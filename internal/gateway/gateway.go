// ABOUTME: Gateway orchestrator that wires the store, resolver, API, and MCP bridge
// ABOUTME: Manages the HTTP server and background resolver lifecycle

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/mailgate/internal/api"
	"github.com/2389/mailgate/internal/auth"
	"github.com/2389/mailgate/internal/config"
	"github.com/2389/mailgate/internal/mailstore"
	"github.com/2389/mailgate/internal/mcp"
	"github.com/2389/mailgate/internal/proxy"
	"github.com/2389/mailgate/internal/resolver"
	"github.com/2389/mailgate/internal/store"
)

// Gateway orchestrates the mailgate server components. It owns the HTTP
// server for the API and MCP endpoints and the background ownership
// resolver.
type Gateway struct {
	config     *config.Config
	store      store.Store
	issuer     *auth.Issuer
	proxy      *proxy.Service
	resolver   *resolver.Resolver
	httpServer *http.Server
	logger     *slog.Logger

	// serverID identifies this gateway instance
	serverID string

	mu        sync.Mutex
	boundAddr string
}

// Addr returns the address the HTTP server is bound to, or empty until
// Run has started listening. Useful when the configured address uses
// port 0.
func (g *Gateway) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.boundAddr
}

// initStore creates and returns a store based on config and environment.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("MAILGATE_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	issuer := auth.NewIssuer(s)
	mail := mailstore.NewClient(cfg.Mailstore.BaseURL)
	svc := proxy.New(s, mail)

	res := resolver.New(s, mail, resolver.Options{
		Interval:   cfg.Resolver.Interval,
		LeaseTTL:   cfg.Resolver.LeaseTTL,
		BatchLimit: cfg.Resolver.BatchLimit,
		MaxBackoff: cfg.Resolver.MaxBackoff,
	})

	gw := &Gateway{
		config:   cfg,
		store:    s,
		issuer:   issuer,
		proxy:    svc,
		resolver: res,
		logger:   logger.With("component", "gateway"),
		serverID: generateServerID(),
	}

	mux := http.NewServeMux()
	mux.Handle("/", api.NewServer(issuer, svc).Handler())

	if cfg.MCP.Enabled {
		mcpServer, err := mcp.NewServer(mcp.Config{
			Issuer:       issuer,
			Proxy:        svc,
			Logger:       logger.With("component", "mcp"),
			DefaultToken: cfg.MCP.DefaultToken,
		})
		if err != nil {
			return nil, fmt.Errorf("creating MCP server: %w", err)
		}
		mcpServer.RegisterRoutes(mux)
		logger.Info("MCP endpoint enabled at /mcp", "default_token_set", cfg.MCP.DefaultToken != "")
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// generateServerID returns a unique identifier for this gateway instance.
func generateServerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "mailgate"
	}
	return hostname + "-" + uuid.New().String()[:8]
}

// Run starts the HTTP server and the ownership resolver and blocks until
// the context is canceled. Returns nil on graceful shutdown, or an error
// if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	g.mu.Lock()
	g.boundAddr = ln.Addr().String()
	g.mu.Unlock()

	resolverCtx, stopResolver := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := g.resolver.Run(resolverCtx); err != nil {
			g.logger.Error("resolver stopped", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String(), "server_id", g.serverID)
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	stopResolver()
	wg.Wait()

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and closes the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var firstErr error

	if err := g.httpServer.Shutdown(ctx); err != nil {
		g.logger.Error("HTTP server shutdown", "error", err)
		firstErr = err
	}

	if err := g.store.Close(); err != nil {
		g.logger.Error("closing store", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	g.logger.Info("shutdown complete")
	return firstErr
}

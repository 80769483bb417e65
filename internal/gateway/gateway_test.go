// ABOUTME: End-to-end tests for the gateway orchestrator
// ABOUTME: Boots a full gateway against a stand-in message store over real HTTP

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mailgate/internal/config"
	"github.com/2389/mailgate/internal/devstore"
)

// startGateway boots a gateway on an ephemeral port and returns its base
// URL plus a cancel func that triggers graceful shutdown.
func startGateway(t *testing.T, cfg *config.Config) (string, context.CancelFunc) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := New(cfg, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("gateway did not shut down in time")
		}
	})

	// Wait for the listener to come up
	deadline := time.Now().Add(5 * time.Second)
	for gw.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("gateway never started listening")
		}
		time.Sleep(10 * time.Millisecond)
	}

	return "http://" + gw.Addr(), cancel
}

func testConfig(t *testing.T, mailstoreURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Server:    config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database:  config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "gate.db")},
		Mailstore: config.MailstoreConfig{BaseURL: mailstoreURL},
		Resolver: config.ResolverConfig{
			Interval: 50 * time.Millisecond,
			LeaseTTL: 5 * time.Second,
		},
		MCP: config.MCPConfig{Enabled: true},
	}
}

func newBackingStore(t *testing.T) string {
	t.Helper()
	backing, err := devstore.NewMessageStore(filepath.Join(t.TempDir(), "mail.db"))
	require.NoError(t, err)
	t.Cleanup(func() { backing.Close() })

	srv := httptest.NewServer(devstore.NewAPIServer(backing).Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestGateway_HealthAndRegister(t *testing.T) {
	base, _ := startGateway(t, testConfig(t, newBackingStore(t)))

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := json.Marshal(map[string]string{
		"address": "alice@example.com",
		"secret":  "test-secret-1",
	})
	require.NoError(t, err)

	resp, err = http.Post(base+"/api/v1/register", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var account struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&account))
	assert.NotEmpty(t, account.Token)
}

func TestGateway_ResolverAssignsOwnership(t *testing.T) {
	mailURL := newBackingStore(t)
	base, _ := startGateway(t, testConfig(t, mailURL))

	// Register an account
	regBody, _ := json.Marshal(map[string]string{
		"address": "alice@example.com",
		"secret":  "test-secret-1",
	})
	resp, err := http.Post(base+"/api/v1/register", "application/json", bytes.NewReader(regBody))
	require.NoError(t, err)
	var account struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&account))
	resp.Body.Close()

	// Deliver a message through the backing store's submit endpoint
	sendBody, _ := json.Marshal(map[string]any{
		"From":    map[string]string{"Address": "sender@example.com"},
		"To":      []map[string]string{{"Address": "alice@example.com"}},
		"Subject": "hello",
		"Text":    "for alice",
	})
	resp, err = http.Post(mailURL+"/api/v1/send", "application/json", bytes.NewReader(sendBody))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The background resolver should grant alice ownership shortly
	deadline := time.Now().Add(5 * time.Second)
	for {
		req, err := http.NewRequest(http.MethodGet, base+"/api/v1/messages", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+account.Token)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		var list struct {
			Total int `json:"total"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
		resp.Body.Close()

		if list.Total == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("resolver never assigned ownership")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestGateway_MCPEndpointMounted(t *testing.T) {
	base, _ := startGateway(t, testConfig(t, newBackingStore(t)))

	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-11-25"}}`
	resp, err := http.Post(base+"/mcp", "application/json", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Mcp-Session-Id"))
}

func TestGateway_GracefulShutdown(t *testing.T) {
	base, cancel := startGateway(t, testConfig(t, newBackingStore(t)))

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	resp.Body.Close()

	cancel()

	// After shutdown the port stops accepting requests
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/health")
		if err != nil {
			break
		}
		resp.Body.Close()
		if time.Now().After(deadline) {
			t.Fatal("server still serving after shutdown")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// ABOUTME: Tests for the MCP tool bridge
// ABOUTME: Exercises the Streamable HTTP transport and per-call credential resolution

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mailgate/internal/auth"
	"github.com/2389/mailgate/internal/devstore"
	"github.com/2389/mailgate/internal/mailstore"
	"github.com/2389/mailgate/internal/proxy"
	"github.com/2389/mailgate/internal/store"
)

type mcpFixture struct {
	t       *testing.T
	store   *store.SQLiteStore
	backing *devstore.MessageStore
	issuer  *auth.Issuer
	server  *httptest.Server
}

// rpcResponse mirrors JSONRPCResponse with a raw result so tests can
// decode into whichever result type the method returns.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *JSONRPCError   `json:"error"`
}

func newMCPFixture(t *testing.T, defaultToken string) *mcpFixture {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "gate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	backing, err := devstore.NewMessageStore(filepath.Join(t.TempDir(), "mail.db"))
	require.NoError(t, err)
	t.Cleanup(func() { backing.Close() })

	mailSrv := httptest.NewServer(devstore.NewAPIServer(backing).Handler())
	t.Cleanup(mailSrv.Close)

	issuer := auth.NewIssuer(st)
	svc := proxy.New(st, mailstore.NewClient(mailSrv.URL))

	mcpSrv, err := NewServer(Config{
		Issuer:       issuer,
		Proxy:        svc,
		DefaultToken: defaultToken,
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	mcpSrv.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &mcpFixture{
		t:       t,
		store:   st,
		backing: backing,
		issuer:  issuer,
		server:  srv,
	}
}

func (f *mcpFixture) account(address string) *store.Account {
	f.t.Helper()
	account, err := f.issuer.Register(context.Background(), address, "Test", "test-secret-1")
	require.NoError(f.t, err)
	return account
}

func (f *mcpFixture) seed(id, from string, to []string, subject string, owners ...*store.Account) {
	f.t.Helper()
	ctx := context.Background()

	msg := &mailstore.Message{
		Summary: mailstore.Summary{
			ID:      id,
			From:    mailstore.Address{Address: from},
			Subject: subject,
			Created: time.Now().UTC(),
		},
		Text: "body of " + id,
	}
	for _, addr := range to {
		msg.To = append(msg.To, mailstore.Address{Address: addr})
	}
	require.NoError(f.t, f.backing.Insert(ctx, msg))

	for _, owner := range owners {
		_, err := f.store.AddOwnership(ctx, id, owner.ID)
		require.NoError(f.t, err)
	}
}

// post sends raw JSON to the MCP endpoint and returns the HTTP response.
func (f *mcpFixture) post(sessionID string, body string) *http.Response {
	f.t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/mcp", bytes.NewReader([]byte(body)))
	require.NoError(f.t, err)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	return resp
}

// rpc sends a JSON-RPC request and decodes the response envelope.
func (f *mcpFixture) rpc(sessionID, method string, params any) *rpcResponse {
	f.t.Helper()

	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		req["params"] = params
	}
	body, err := json.Marshal(req)
	require.NoError(f.t, err)

	resp := f.post(sessionID, string(body))
	defer resp.Body.Close()
	require.Equal(f.t, http.StatusOK, resp.StatusCode)

	var out rpcResponse
	require.NoError(f.t, json.NewDecoder(resp.Body).Decode(&out))
	return &out
}

// initialize performs the handshake and returns the session ID.
func (f *mcpFixture) initialize() string {
	f.t.Helper()

	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-11-25","capabilities":{},"clientInfo":{"name":"test","version":"0"}}}`
	resp := f.post("", body)
	defer resp.Body.Close()
	require.Equal(f.t, http.StatusOK, resp.StatusCode)

	sessionID := resp.Header.Get("Mcp-Session-Id")
	require.NotEmpty(f.t, sessionID)
	return sessionID
}

// callTool invokes tools/call and returns the decoded tool result.
func (f *mcpFixture) callTool(sessionID, name string, args map[string]any) *MCPCallToolResult {
	f.t.Helper()

	resp := f.rpc(sessionID, "tools/call", MCPCallToolParams{
		Name:      name,
		Arguments: mustMarshal(f.t, args),
	})
	require.Nil(f.t, resp.Error, "expected no JSON-RPC error")

	var result MCPCallToolResult
	require.NoError(f.t, json.Unmarshal(resp.Result, &result))
	return &result
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func toolText(t *testing.T, result *MCPCallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return result.Content[0].Text
}

func TestInitialize_CreatesSession(t *testing.T) {
	f := newMCPFixture(t, "")

	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-11-25"}}`
	resp := f.post("", body)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Mcp-Session-Id"))

	var out rpcResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Nil(t, out.Error)

	var result struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name string `json:"name"`
		} `json:"serverInfo"`
	}
	require.NoError(t, json.Unmarshal(out.Result, &result))
	assert.Equal(t, "2025-11-25", result.ProtocolVersion)
	assert.Equal(t, "mailgate", result.ServerInfo.Name)
}

func TestRequest_WithoutSession(t *testing.T) {
	f := newMCPFixture(t, "")

	resp := f.post("", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRequest_UnknownSession(t *testing.T) {
	f := newMCPFixture(t, "")

	resp := f.post("no-such-session", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNotification_Accepted(t *testing.T) {
	f := newMCPFixture(t, "")
	session := f.initialize()

	resp := f.post(session, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestInvalidJSON(t *testing.T) {
	f := newMCPFixture(t, "")

	resp := f.post("", `{not json`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out rpcResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Error)
	assert.Equal(t, JSONRPCParseError, out.Error.Code)
}

func TestMethodNotFound(t *testing.T) {
	f := newMCPFixture(t, "")
	session := f.initialize()

	resp := f.rpc(session, "resources/list", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, JSONRPCMethodNotFound, resp.Error.Code)
}

func TestToolsList(t *testing.T) {
	f := newMCPFixture(t, "")
	session := f.initialize()

	resp := f.rpc(session, "tools/list", nil)
	require.Nil(t, resp.Error)

	var result MCPListToolsResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))

	names := make(map[string]bool)
	for _, tool := range result.Tools {
		names[tool.Name] = true

		var schema struct {
			Properties map[string]json.RawMessage `json:"properties"`
			Required   []string                   `json:"required"`
		}
		require.NoError(t, json.Unmarshal(tool.InputSchema, &schema), tool.Name)
		assert.Contains(t, schema.Properties, "access_token", tool.Name)
		assert.Contains(t, schema.Required, "access_token", tool.Name)
	}

	for _, want := range []string{
		"list_messages", "get_message", "list_attachments", "search_messages",
		"send_email", "send_reply", "forward_message", "delete_messages",
		"mark_read", "toggle_star",
	} {
		assert.True(t, names[want], "missing tool %s", want)
	}
}

func TestCallTool_ValidToken(t *testing.T) {
	f := newMCPFixture(t, "")
	alice := f.account("alice@example.com")
	f.seed("m1", "x@example.com", []string{"alice@example.com"}, "hello alice", alice)

	session := f.initialize()
	result := f.callTool(session, "list_messages", map[string]any{
		"access_token": alice.Token,
	})
	require.False(t, result.IsError)

	var listed struct {
		Messages []proxy.MessageSummary `json:"Messages"`
		Total    int                    `json:"Total"`
	}
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &listed))
	assert.Equal(t, 1, listed.Total)
	require.Len(t, listed.Messages, 1)
	assert.Equal(t, "m1", listed.Messages[0].ID)
}

func TestCallTool_BadThenGoodTokenOnSameSession(t *testing.T) {
	f := newMCPFixture(t, "")
	alice := f.account("alice@example.com")
	session := f.initialize()

	bad := f.callTool(session, "list_messages", map[string]any{
		"access_token": "bogus-token",
	})
	require.True(t, bad.IsError)
	assert.Contains(t, toolText(t, bad), "invalid or expired access token")

	// The session survives the failed credential and works with a good one
	good := f.callTool(session, "list_messages", map[string]any{
		"access_token": alice.Token,
	})
	assert.False(t, good.IsError)
}

func TestCallTool_RotatedTokenRejected(t *testing.T) {
	f := newMCPFixture(t, "")
	alice := f.account("alice@example.com")
	session := f.initialize()

	newToken, err := f.issuer.Rotate(context.Background(), alice.Token)
	require.NoError(t, err)

	stale := f.callTool(session, "list_messages", map[string]any{
		"access_token": alice.Token,
	})
	require.True(t, stale.IsError)
	assert.Contains(t, toolText(t, stale), "invalid or expired access token")

	fresh := f.callTool(session, "list_messages", map[string]any{
		"access_token": newToken,
	})
	assert.False(t, fresh.IsError)
}

func TestCallTool_MissingTokenNoDefault(t *testing.T) {
	f := newMCPFixture(t, "")
	session := f.initialize()

	result := f.callTool(session, "list_messages", map[string]any{})
	require.True(t, result.IsError)
	assert.Contains(t, toolText(t, result), "invalid or expired access token")
}

func TestCallTool_DefaultToken(t *testing.T) {
	base := newMCPFixture(t, "")
	bob := base.account("bob@example.com")

	f := newMCPFixtureWithToken(t, base, bob.Token)
	session := f.initialize()

	result := f.callTool(session, "list_messages", map[string]any{})
	assert.False(t, result.IsError)
}

// newMCPFixtureWithToken mounts a second MCP server over an existing
// fixture's stores with a configured default token.
func newMCPFixtureWithToken(t *testing.T, base *mcpFixture, token string) *mcpFixture {
	t.Helper()

	mailSrv := httptest.NewServer(devstore.NewAPIServer(base.backing).Handler())
	t.Cleanup(mailSrv.Close)

	svc := proxy.New(base.store, mailstore.NewClient(mailSrv.URL))
	mcpSrv, err := NewServer(Config{
		Issuer:       base.issuer,
		Proxy:        svc,
		DefaultToken: token,
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	mcpSrv.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &mcpFixture{
		t:       t,
		store:   base.store,
		backing: base.backing,
		issuer:  base.issuer,
		server:  srv,
	}
}

func TestCallTool_UnownedMessageNotFound(t *testing.T) {
	f := newMCPFixture(t, "")
	alice := f.account("alice@example.com")
	bob := f.account("bob@example.com")
	f.seed("m1", "x@example.com", []string{"alice@example.com"}, "private", alice)

	session := f.initialize()
	result := f.callTool(session, "get_message", map[string]any{
		"access_token": bob.Token,
		"id":           "m1",
	})
	require.True(t, result.IsError)
	assert.Contains(t, toolText(t, result), "not found")

	missing := f.callTool(session, "get_message", map[string]any{
		"access_token": bob.Token,
		"id":           "no-such-id",
	})
	require.True(t, missing.IsError)
	assert.Equal(t, toolText(t, result), toolText(t, missing))
}

func TestCallTool_SendAndReadBack(t *testing.T) {
	f := newMCPFixture(t, "")
	alice := f.account("alice@example.com")
	session := f.initialize()

	sent := f.callTool(session, "send_email", map[string]any{
		"access_token": alice.Token,
		"to":           []string{"bob@example.com"},
		"subject":      "greetings",
		"body":         "hello bob",
	})
	require.False(t, sent.IsError)

	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(toolText(t, sent)), &out))
	require.NotEmpty(t, out.ID)

	fetched := f.callTool(session, "get_message", map[string]any{
		"access_token": alice.Token,
		"id":           out.ID,
	})
	require.False(t, fetched.IsError)
	assert.Contains(t, toolText(t, fetched), "greetings")
}

func TestCallTool_ListAttachmentsAndForward(t *testing.T) {
	f := newMCPFixture(t, "")
	alice := f.account("alice@example.com")
	session := f.initialize()

	msg := &mailstore.Message{
		Summary: mailstore.Summary{
			ID:      "m1",
			From:    mailstore.Address{Address: "x@example.com"},
			Subject: "with files",
			Created: time.Now().UTC(),
		},
		Text: "see attached",
		Attachments: []mailstore.Attachment{
			{PartID: "1", FileName: "report.pdf", ContentType: "application/pdf", Size: 2048},
		},
	}
	require.NoError(t, f.backing.Insert(context.Background(), msg))
	_, err := f.store.AddOwnership(context.Background(), "m1", alice.ID)
	require.NoError(t, err)

	atts := f.callTool(session, "list_attachments", map[string]any{
		"access_token": alice.Token,
		"id":           "m1",
	})
	require.False(t, atts.IsError)
	assert.Contains(t, toolText(t, atts), "report.pdf")

	fwd := f.callTool(session, "forward_message", map[string]any{
		"access_token": alice.Token,
		"id":           "m1",
		"to":           []string{"carol@example.com"},
		"body":         "worth a look",
	})
	require.False(t, fwd.IsError)

	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(toolText(t, fwd)), &out))
	require.NotEmpty(t, out.ID)

	fetched := f.callTool(session, "get_message", map[string]any{
		"access_token": alice.Token,
		"id":           out.ID,
	})
	require.False(t, fetched.IsError)
	assert.Contains(t, toolText(t, fetched), "Fwd: with files")
	assert.Contains(t, toolText(t, fetched), "worth a look")
}

func TestCallTool_MarkReadAndStar(t *testing.T) {
	f := newMCPFixture(t, "")
	alice := f.account("alice@example.com")
	f.seed("m1", "x@example.com", []string{"alice@example.com"}, "status", alice)
	session := f.initialize()

	read := f.callTool(session, "mark_read", map[string]any{
		"access_token": alice.Token,
		"id":           "m1",
	})
	require.False(t, read.IsError)

	star := f.callTool(session, "toggle_star", map[string]any{
		"access_token": alice.Token,
		"id":           "m1",
		"starred":      true,
	})
	require.False(t, star.IsError)

	fetched := f.callTool(session, "get_message", map[string]any{
		"access_token": alice.Token,
		"id":           "m1",
	})
	require.False(t, fetched.IsError)

	var msg proxy.Message
	require.NoError(t, json.Unmarshal([]byte(toolText(t, fetched)), &msg))
	assert.True(t, msg.Read)
	assert.True(t, msg.Starred)
}

func TestCallTool_UnknownTool(t *testing.T) {
	f := newMCPFixture(t, "")
	session := f.initialize()

	resp := f.rpc(session, "tools/call", MCPCallToolParams{Name: "no_such_tool"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, JSONRPCInvalidParams, resp.Error.Code)
}

func TestDeleteSession(t *testing.T) {
	f := newMCPFixture(t, "")
	session := f.initialize()

	req, err := http.NewRequest(http.MethodDelete, f.server.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Mcp-Session-Id", session)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// The session is gone; further requests must re-initialize
	after := f.post(session, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	defer after.Body.Close()
	assert.Equal(t, http.StatusNotFound, after.StatusCode)
}

func TestUnsupportedProtocolVersion(t *testing.T) {
	f := newMCPFixture(t, "")
	session := f.initialize()

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/mcp",
		bytes.NewReader([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)))
	require.NoError(t, err)
	req.Header.Set("Mcp-Session-Id", session)
	req.Header.Set("Mcp-Protocol-Version", "1999-01-01")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// Package mcp implements the Model Context Protocol server for agent mail access.
//
// # Overview
//
// MCP (Model Context Protocol) is a standard for AI tool integration. This
// package exposes the mail proxy's operations as MCP tools over the
// Streamable HTTP transport (JSON-RPC 2.0 over POST /mcp).
//
// # Credentials
//
// Sessions carry protocol state only. There is deliberately no identity on
// the session or the HTTP channel: the same /mcp endpoint serves many
// principals, so every tools/call argument object carries an access_token
// that is resolved for that call alone. A process-wide default token may
// be configured for single-tenant deployments and applies only when a call
// omits the argument.
//
// An invalid or missing credential produces a structured tool result with
// isError set; the session stays valid and a retry with a corrected token
// on the same session succeeds.
//
// # Tool Discovery and Execution
//
// Clients call tools/list to discover tools and tools/call to execute one:
//
//	{
//	  "jsonrpc": "2.0",
//	  "method": "tools/call",
//	  "id": 2,
//	  "params": {
//	    "name": "list_messages",
//	    "arguments": {"access_token": "..."}
//	  }
//	}
package mcp

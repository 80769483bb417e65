// Package gateway wires the mailgate components into a running server.
//
// # Overview
//
// The Gateway owns the component lifecycle:
//
//   - SQLite store (accounts, ownership, overlays, resolver state)
//   - credential issuer for registration, login, and token rotation
//   - access-scoped proxy in front of the shared message store
//   - background ownership resolver with lease-based single-writer scanning
//   - HTTP API (register, login, messages, send, search)
//   - optional MCP endpoint for agent runtimes at /mcp
//
// All HTTP surfaces share one server and one listener. The resolver runs
// as a goroutine owned by Run and is stopped before the HTTP server
// drains during shutdown.
//
// # Usage
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	gw, err := gateway.New(cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := gw.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Run blocks until the context is canceled, then performs a graceful
// shutdown with a 5 second timeout.
package gateway

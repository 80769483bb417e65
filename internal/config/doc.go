// Package config handles configuration loading for mailgate.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	mcp:
//	  default_token: "${MAILGATE_DEFAULT_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	resolver:
//	  interval: "5s"
//	  lease_ttl: "30s"
//	  max_backoff: "2m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # API and MCP endpoint
//
// Database:
//
//	database:
//	  path: "/var/lib/mailgate/gate.db"
//
// Backing message store:
//
//	mailstore:
//	  base_url: "http://localhost:8025"
//
// Ownership resolver timing:
//
//	resolver:
//	  interval: "5s"
//	  lease_ttl: "30s"
//	  max_backoff: "2m"
//	  batch_limit: 200
//
// MCP bridge:
//
//	mcp:
//	  enabled: true
//	  default_token: ""   # opt-in fallback for calls without access_token
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration from a path:
//
//	cfg, err := config.Load("/etc/mailgate/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config

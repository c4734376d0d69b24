// Package config handles configuration loading for waplane.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from WAPLANE_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. ~/.config/waplane/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	gateway:
//	  token: "${WAPLANE_GATEWAY_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	gateway:
//	  send_timeout: "15s"
//	  dedupe_ttl: "5m"
//	bots:
//	  forward_timeout: "10s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # Console API and gateway sink
//
// Database:
//
//	database:
//	  path: "/var/lib/waplane/waplane.db"
//
// Gateway connection:
//
//	gateway:
//	  base_url: "https://wa-gateway.internal"
//	  token: "${WAPLANE_GATEWAY_TOKEN}"
//	  sink_token: "${WAPLANE_SINK_TOKEN}"
//
// Webhooks:
//
//	webhooks:
//	  signing_key: "${WAPLANE_SIGNING_KEY}"
//	  attempt_timeout: "10s"
//
// Tailscale:
//
//	tailscale:
//	  enabled: false
//	  hostname: "waplane"
//	  auth_key: "${TS_AUTHKEY}"
//	  funnel: false
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
//	cfg, err := config.Load("/etc/waplane/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config

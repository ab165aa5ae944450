// Package main is a diagnostic CLI for the tracing client.
//
// It loads configuration the same way an instrumented application does,
// makes sure an agent is running (launching and downloading it when allowed),
// registers, and then optionally:
//
//   - prints the agent's version (-ping)
//   - sends a sample transaction with nested spans (-demo)
//   - serves the client's Prometheus self-metrics until interrupted (-metrics-addr)
//
// Configuration:
//   - Environment variables (TRACEKIT_*)
//   - An optional YAML or TOML file (-config, or TRACEKIT_CONFIG_FILE)
//
// Usage:
//
//	# Check that an agent answers
//	TRACEKIT_MONITOR=true TRACEKIT_KEY=... ./tracekit -ping
//
//	# Send a sample transaction with colored debug logs
//	./tracekit -config tracekit.yaml -demo -dev
//
//	# Expose /metrics and /healthz
//	./tracekit -metrics-addr :9464
package main

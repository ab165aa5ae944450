// Package config provides layered configuration for the tracing client.
//
// Layers, lowest to highest precedence:
//  1. Default()
//  2. An optional YAML or TOML file named by TRACEKIT_CONFIG_FILE
//  3. Environment variables
//
// Configuration Sections:
//   - App: identity sent in the registration handshake (name, key, monitor flag)
//   - Agent: socket URI, launch/download permissions, binary location
//   - Transport: pool bounds, timeouts, connection-creation backoff
//   - Trace: slow-span threshold, scope mode, stack-frame ignore globs
//   - Logging: log level and output format
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	if err := cfg.Validate(); err != nil {
//		return err
//	}
//
// Environment Variables:
//   - TRACEKIT_NAME, TRACEKIT_KEY, TRACEKIT_MONITOR
//   - TRACEKIT_AGENT_SOCKET, TRACEKIT_AGENT_LAUNCH, TRACEKIT_AGENT_DOWNLOAD
//   - TRACEKIT_POOL_MIN, TRACEKIT_POOL_MAX, TRACEKIT_SEND_TIMEOUT
//   - TRACEKIT_SLOW_THRESHOLD, TRACEKIT_SCOPE_MODE, TRACEKIT_STACK_IGNORE
//   - TRACEKIT_LOG_LEVEL, TRACEKIT_LOG_DEV
package config

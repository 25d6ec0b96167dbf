// Package config provides layered configuration for the probe.
//
// Values are resolved in three layers, later layers winning:
//   - Built-in defaults (Default)
//   - An optional YAML, TOML or JSON file, chosen by extension
//   - PROBE_* environment variables
//
// Configuration Sections:
//   - Tree: entry methods, inclusion prefixes, trigger and threshold
//   - Flat: per-invocation logging selection, trigger and threshold
//   - Snapshot: capture toggle, directory, size cap, retention, serialize mode
//   - Exception: include/exclude type filters, frame depth
//   - Output: console or rolling file sink
//   - Server: status server toggle and address
//   - Logging: diagnostic log level and format
//
// The live configuration sits in a Store. The instrumented hot path calls
// Store.Load, a single atomic pointer read returning a Compiled value whose
// lookups (entry set, prefixes, error filter, trigger policies) were built
// once when it was stored.
//
// Example Usage:
//
//	cfg, err := config.Load("probe.yaml")
//	store, err := config.NewStore(cfg)
//	if store.Load().IsEntry("OrderService.place") { ... }
//
// Environment Variables:
//   - PROBE_TREE_ENTRY_METHODS, PROBE_TREE_PACKAGES, PROBE_TREE_TRIGGER, PROBE_TREE_THRESHOLD_MS
//   - PROBE_FLAT_ENABLED, PROBE_FLAT_METHODS, PROBE_FLAT_THRESHOLD_MS
//   - PROBE_SNAPSHOT_ENABLED, PROBE_SNAPSHOT_DIR, PROBE_SNAPSHOT_SERIALIZE_MODE
//   - PROBE_OUTPUT_MODE, PROBE_OUTPUT_DIR
//   - PROBE_SERVER_ENABLED, PROBE_SERVER_ADDR
//   - PROBE_LOGGING_LEVEL, PROBE_LOGGING_DEVELOPMENT
package config

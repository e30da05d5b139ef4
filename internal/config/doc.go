// Package config loads, validates, and defaults the TOML configuration shared
// by the waveq daemon and CLI.
//
// Configuration resolves in order: built-in defaults, the config file at the
// default path (or an explicit --config path), then environment overrides for
// secrets (WAVEQ_NATS_URL, WAVEQ_API_TOKEN). Paths support ~ expansion.
package config

// Package config handles configuration loading for vnguide.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion. A missing default file yields defaults that talk to a backend on
// localhost.
//
// # Configuration File
//
// Locations (in order):
//
//  1. The --config flag
//  2. Path from VNGUIDE_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/vnguide/config.yaml
//  4. ~/.config/vnguide/config.yaml
//
// Files ending in .toml are decoded as TOML. A .env file in the same
// directory is loaded first and never overrides variables already set.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  token: "${VNGUIDE_TOKEN}"
//
// VNGUIDE_API_URL and VNGUIDE_LANG override the file after loading.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	backend:
//	  timeout: "60s"
//	deletion:
//	  marker_ttl: "2m"
package config

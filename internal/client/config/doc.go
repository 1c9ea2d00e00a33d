// Package config loads runtime configuration for the storefront CLI.
//
// Sources, later ones winning:
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags -u, -g, -f and -T.
//
// JSON durations accept strings like "10s" or integer nanoseconds:
//
//	{
//	  "server_url": "https://api.storefront.example",
//	  "refresh_timeout": "10s"
//	}
package config

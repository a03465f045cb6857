// Package config loads runtime configuration for the FinanceKit client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. FINANCEKIT_* environment variables.
//  4. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the receipt service
//	-d string   data directory
//	-i int      online status check interval (seconds)
//	-u int      undo window for deletions (seconds)
//
// # JSON schema
//
// Intervals use timex.Duration, so values can be either strings like "3s" or
// integer nanoseconds:
//
//	{
//	  "server_url": "http://10.0.2.2:8000",
//	  "data_dir": "/var/lib/financekit",
//	  "online_check_interval": "3s",
//	  "undo_window": "5s"
//	}
//
// The secure store secret is only read from FINANCEKIT_SECURE_STORE_SECRET;
// the CLI prompts for it when unset.
package config

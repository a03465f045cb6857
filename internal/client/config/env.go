package config

import (
	"github.com/caarlos0/env/v11"
)

// parseEnv overlays Config with FINANCEKIT_* variables. Unset variables keep
// the current value.
func parseEnv(cfg *Config) error {
	return env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix})
}

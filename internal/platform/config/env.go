// Package config loads process configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix namespaces every variable read by ParseEnv.
const EnvPrefix = "RELAYCHAT_"

// ParseEnv loads configuration from RELAYCHAT_-prefixed environment variables.
//
// Struct tags name the variable without the prefix, so `env:"CONTROL_ADDR"`
// reads RELAYCHAT_CONTROL_ADDR.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

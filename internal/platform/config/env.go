package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
)

// ParseEnv loads configuration from the process environment.
func ParseEnv(target any) error {
	return ParseEnvMap(target, env.ToMap(os.Environ()))
}

// ParseEnvMap loads configuration from an explicit environment. Tags such as
// notEmpty and envDefault behave as they do for ParseEnv.
func ParseEnvMap(target any, environment map[string]string) error {
	if err := env.ParseWithOptions(target, env.Options{Environment: environment}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

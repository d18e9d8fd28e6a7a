package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for problems that would make the service misbehave.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	if c.Mode != ModeSolo && c.Mode != ModeServer {
		errs = append(errs, fmt.Sprintf("OBELISK_MODE must be %q or %q, got %q", ModeSolo, ModeServer, c.Mode))
	}

	// Server mode needs Postgres credentials
	if c.Mode == ModeServer && c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required in server mode")
	}
	if c.Mode == ModeSolo && c.SQLite.Path == "" {
		errs = append(errs, "SQLITE_PATH is required in solo mode")
	}

	// JWT secret is optional, but a short one is worse than none
	if c.JWT.AccessSecret != "" && len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 characters")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.Mode == ModeServer {
		if c.DB.Port < 1 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
		}
		if c.Redis.Port < 1 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
		}
	}

	// Generation knobs
	if c.Generation.DefaultWeight < 0 || c.Generation.DefaultWeight > 1 {
		errs = append(errs, fmt.Sprintf("GENERATION_DEFAULT_WEIGHT must be within [0,1], got %g", c.Generation.DefaultWeight))
	}
	if c.Generation.Timeout <= 0 {
		errs = append(errs, "GENERATION_TIMEOUT must be positive")
	}

	// Quantum source
	switch c.Quantum.Source {
	case "simulator":
	case "http":
		if c.Quantum.URL == "" {
			errs = append(errs, "QUANTUM_URL is required when QUANTUM_SOURCE=http")
		}
	default:
		errs = append(errs, fmt.Sprintf("QUANTUM_SOURCE must be \"simulator\" or \"http\", got %q", c.Quantum.Source))
	}
	if c.Quantum.Qubits < 1 || c.Quantum.Qubits > 16 {
		errs = append(errs, fmt.Sprintf("QUANTUM_QUBITS must be 1–16, got %d", c.Quantum.Qubits))
	}
	if c.Quantum.Shots < 1 {
		errs = append(errs, fmt.Sprintf("QUANTUM_SHOTS must be positive, got %d", c.Quantum.Shots))
	}

	if c.Evolution.TopContributors < 1 {
		errs = append(errs, "EVOLUTION_TOP_CONTRIBUTORS must be positive")
	}
	if c.Evolution.HalfLife <= 0 {
		errs = append(errs, "EVOLUTION_HALF_LIFE must be positive")
	}

	// Warn only
	if c.Trainer.Target != "" && c.Trainer.APIKey == "" {
		slog.Warn("TRAINER_API_KEY is empty; trainer RPCs are sent without authentication")
	}
	if c.JWT.AccessSecret == "" {
		slog.Warn("JWT_ACCESS_SECRET is empty; API is served without authentication")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}

package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Mode:   ModeServer,
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		DB: DBConfig{
			Host: "localhost", Port: 5432, User: "obelisk",
			Password: "secret", Name: "obelisk", SSLMode: "disable", MaxConns: 25,
		},
		SQLite: SQLiteConfig{Path: "obelisk.db"},
		Redis:  RedisConfig{Host: "localhost", Port: 6379},
		JWT:    JWTConfig{AccessSecret: "access-secret-that-is-at-least-32-chars!"},
		Quantum: QuantumConfig{
			Source: "simulator", Qubits: 2, Shots: 128, Timeout: 5 * time.Second,
		},
		Generation: GenerationConfig{DefaultWeight: 0.7, Timeout: 2 * time.Minute},
		Evolution:  EvolutionConfig{TopContributors: 10, HalfLife: 168 * time.Hour},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_SoloModeNeedsNoDBPassword(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = ModeSolo
	cfg.DB.Password = ""
	cfg.DB.Port = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error in solo mode, got: %v", err)
	}
}

func TestValidate_UnknownMode(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "cluster"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "OBELISK_MODE") {
		t.Fatalf("expected OBELISK_MODE error, got: %v", err)
	}
}

func TestValidate_DBPasswordRequiredInServerMode(t *testing.T) {
	cfg := validConfig()
	cfg.DB.Password = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_PASSWORD") {
		t.Fatalf("expected DB_PASSWORD error, got: %v", err)
	}
}

func TestValidate_JWTSecretTooShort(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.AccessSecret = "short"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "JWT_ACCESS_SECRET") {
		t.Fatalf("expected JWT_ACCESS_SECRET error, got: %v", err)
	}
}

func TestValidate_DefaultWeightOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Generation.DefaultWeight = 1.5
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "GENERATION_DEFAULT_WEIGHT") {
		t.Fatalf("expected GENERATION_DEFAULT_WEIGHT error, got: %v", err)
	}
}

func TestValidate_HTTPQuantumSourceNeedsURL(t *testing.T) {
	cfg := validConfig()
	cfg.Quantum.Source = "http"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "QUANTUM_URL") {
		t.Fatalf("expected QUANTUM_URL error, got: %v", err)
	}
}

func TestValidate_InvalidPorts(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.DB.Port = 99999
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected port validation errors")
	}
	if !strings.Contains(err.Error(), "SERVER_PORT") {
		t.Errorf("expected SERVER_PORT error in: %v", err)
	}
	if !strings.Contains(err.Error(), "DB_PORT") {
		t.Errorf("expected DB_PORT error in: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := &Config{
		Mode:   ModeServer,
		Server: ServerConfig{Port: 0},
		DB:     DBConfig{Port: 5432},
		Redis:  RedisConfig{Port: 6379},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected multiple validation errors")
	}
	errStr := err.Error()
	for _, substr := range []string{"DB_PASSWORD", "SERVER_PORT", "GENERATION_TIMEOUT", "QUANTUM_SOURCE", "EVOLUTION_TOP_CONTRIBUTORS"} {
		if !strings.Contains(errStr, substr) {
			t.Errorf("expected %q in error: %s", substr, errStr)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" http://a.test, ,http://b.test ")
	if len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Fatalf("unexpected list: %v", got)
	}
	if splitList("") != nil {
		t.Fatal("expected nil for empty input")
	}
}

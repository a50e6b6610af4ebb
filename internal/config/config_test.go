package config

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Provider:         ProviderOllama, // no API key needed
		ModelName:        "llama3.3",
		EmbedderModel:    "nomic-embed-text",
		OllamaHost:       "http://localhost:11434",
		SearchLimit:      5,
		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresUser:     "sherlock",
		PostgresPassword: "secret",
		PostgresDBName:   "sherlock",
		PostgresSSLMode:  "disable",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown provider", mutate: func(c *Config) { c.Provider = "cohere" }, wantErr: ErrInvalidProvider},
		{name: "empty model", mutate: func(c *Config) { c.ModelName = "" }, wantErr: ErrInvalidModelName},
		{name: "empty embedder", mutate: func(c *Config) { c.EmbedderModel = "" }, wantErr: ErrInvalidEmbedderModel},
		{name: "zero search limit", mutate: func(c *Config) { c.SearchLimit = 0 }, wantErr: ErrInvalidSearchLimit},
		{name: "huge search limit", mutate: func(c *Config) { c.SearchLimit = 50 }, wantErr: ErrInvalidSearchLimit},
		{name: "empty host", mutate: func(c *Config) { c.PostgresHost = "" }, wantErr: ErrInvalidPostgresHost},
		{name: "bad port", mutate: func(c *Config) { c.PostgresPort = 70000 }, wantErr: ErrInvalidPostgresPort},
		{name: "empty db name", mutate: func(c *Config) { c.PostgresDBName = "" }, wantErr: ErrInvalidPostgresDBName},
		{name: "bad ssl mode", mutate: func(c *Config) { c.PostgresSSLMode = "maybe" }, wantErr: ErrInvalidPostgresSSLMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_NilConfig(t *testing.T) {
	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("Validate() error = %v, want ErrConfigNil", err)
	}
}

func TestValidate_ProviderAPIKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg := validConfig()
	cfg.Provider = ProviderOpenAI
	if err := cfg.Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Validate() error = %v, want ErrMissingAPIKey", err)
	}

	t.Setenv("OPENAI_API_KEY", "sk-test")
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with key set: %v", err)
	}

	t.Setenv("GEMINI_API_KEY", "")
	cfg.Provider = ProviderGemini
	if err := cfg.Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Validate() error = %v, want ErrMissingAPIKey", err)
	}
}

func TestFullModelName(t *testing.T) {
	tests := []struct {
		provider string
		model    string
		want     string
	}{
		{ProviderOpenAI, "gpt-4o-mini", "openai/gpt-4o-mini"},
		{ProviderGemini, "gemini-2.5-flash", "googleai/gemini-2.5-flash"},
		{ProviderOllama, "llama3.3", "ollama/llama3.3"},
		{ProviderOpenAI, "openai/gpt-4o", "openai/gpt-4o"},
	}
	for _, tt := range tests {
		c := &Config{Provider: tt.provider, ModelName: tt.model}
		if got := c.FullModelName(); got != tt.want {
			t.Errorf("FullModelName(%s, %s) = %q, want %q", tt.provider, tt.model, got, tt.want)
		}
	}
}

func TestMarshalJSON_MasksPassword(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "super_secret_password"

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal() unexpected error: %v", err)
	}
	if strings.Contains(string(data), "super_secret_password") {
		t.Error("password leaked in JSON output")
	}

	// Stringer goes through the same masking.
	if strings.Contains(cfg.String(), "super_secret_password") {
		t.Error("password leaked in String() output")
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"short", maskedValue},
		{"12345678", maskedValue},
		{"my_long_secret_key", "my<" + maskedValue + ">ey"},
	}
	for _, tt := range tests {
		if got := maskSecret(tt.in); got != tt.want {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

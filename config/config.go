// Package config — .rpgtrans.yaml configuration file support.
//
// The config file lives in the project root and declares the project file,
// language pair, provider, and tuning knobs. Unset fields get defaults;
// the provider section is validated on load.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the default config file name.
const FileName = ".rpgtrans.yaml"

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// Config is the top-level .rpgtrans.yaml structure.
type Config struct {
	// ProjectFile is the path to the translation project JSON, relative to
	// the config file (default "project.json").
	ProjectFile string `yaml:"project_file,omitempty"`
	// SourceLang is the source language code (default "ja").
	SourceLang string `yaml:"source_lang,omitempty"`
	// TargetLang is the human-readable target language (default "English").
	TargetLang string `yaml:"target_lang,omitempty"`
	// Provider configures the translation backend.
	Provider Provider `yaml:"provider"`
	// Workers is the translation worker pool size (default 2).
	Workers int `yaml:"workers,omitempty"`
	// BatchSize is the calibrated batch size written by
	// `rpgtrans calibrate --save` and shown by `rpgtrans status`.
	// Informational: translation runs send one request per entry so a
	// single bad line can fail without losing its batch; the value
	// records the measured sweet spot for the server.
	BatchSize int `yaml:"batch_size,omitempty"`
	// CheckpointInterval is how many successful translations trigger an
	// auto-save (default 25).
	CheckpointInterval int `yaml:"checkpoint_interval,omitempty"`
	// Glossary maps source terms to fixed translations injected into the
	// system prompt.
	Glossary map[string]string `yaml:"glossary,omitempty"`
}

// Provider describes the translation backend.
type Provider struct {
	// Name: "openai", "ollama", or "custom".
	Name string `yaml:"name"`
	// BaseURL overrides the API base URL. Required for "custom"; defaults
	// to the Ollama OpenAI-compatible endpoint for "ollama".
	BaseURL string `yaml:"base_url,omitempty"`
	// Model is the model identifier.
	Model string `yaml:"model"`
	// APIKey authenticates requests. Usually left empty here and resolved
	// through the settings package (env var or credential store).
	APIKey string `yaml:"api_key,omitempty"`
	// Cloud overrides cloud/local detection by provider name. Local
	// (non-cloud) providers are subject to batch-size calibration.
	Cloud *bool `yaml:"cloud,omitempty"`
	// TimeoutSeconds is the per-request timeout (default 120).
	TimeoutSeconds int `yaml:"timeout,omitempty"`
}

// Known provider names.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderCustom = "custom"
)

// OllamaBaseURL is the default Ollama OpenAI-compatible endpoint.
const OllamaBaseURL = "http://localhost:11434/v1"

// IsCloud reports whether the provider runs on remote hardware. The
// explicit Cloud field wins; otherwise "openai" is cloud and everything
// else is treated as a local, resource-constrained server.
func (p Provider) IsCloud() bool {
	if p.Cloud != nil {
		return *p.Cloud
	}
	return p.Name == ProviderOpenAI
}

// Timeout returns the per-request timeout as a duration.
func (p Provider) Timeout() time.Duration {
	if p.TimeoutSeconds > 0 {
		return time.Duration(p.TimeoutSeconds) * time.Second
	}
	return 120 * time.Second
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads and validates .rpgtrans.yaml from the given directory.
// Returns nil if no config file exists.
func Load(rootDir string) (*Config, error) {
	path := filepath.Join(rootDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := cfg.applyDefaults(path); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults(path string) error {
	if c.ProjectFile == "" {
		c.ProjectFile = "project.json"
	}
	if c.SourceLang == "" {
		c.SourceLang = "ja"
	}
	if c.TargetLang == "" {
		c.TargetLang = "English"
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = 25
	}

	p := &c.Provider
	if p.Name == "" {
		return fmt.Errorf("%s: provider has no name", path)
	}
	switch p.Name {
	case ProviderOpenAI:
		// BaseURL empty means api.openai.com.
	case ProviderOllama:
		if p.BaseURL == "" {
			p.BaseURL = OllamaBaseURL
		}
	case ProviderCustom:
		if p.BaseURL == "" {
			return fmt.Errorf("%s: provider %q requires base_url", path, p.Name)
		}
	default:
		return fmt.Errorf("%s: unknown provider %q (valid: openai, ollama, custom)", path, p.Name)
	}
	if p.Model == "" {
		return fmt.Errorf("%s: provider %q has no model", path, p.Name)
	}
	return nil
}

// Save writes the config back to rootDir. Used by `calibrate --save` to
// persist the winning batch size.
func (c *Config) Save(rootDir string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	path := filepath.Join(rootDir, FileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

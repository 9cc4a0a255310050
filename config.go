package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFile holds the user defaults from ~/.chatterm/config.yaml. Every
// field is optional; an absent file is not an error.
type ConfigFile struct {
	Model         *string  `yaml:"model,omitempty"`
	Temperature   *float64 `yaml:"temperature,omitempty"`
	MaxTokens     *int     `yaml:"max_tokens,omitempty"`
	HistoryWindow *int     `yaml:"history_window,omitempty"`
	APIKey        *string  `yaml:"api_key,omitempty"`
	APIBase       *string  `yaml:"api_base,omitempty"`
	TranscriptDir *string  `yaml:"transcript_dir,omitempty"`
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".chatterm", "config.yaml"), nil
}

func loadConfig() (*ConfigFile, error) {
	path, err := configPath()
	if err != nil {
		// No home dir; run on built-in defaults.
		return &ConfigFile{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			os.MkdirAll(filepath.Dir(path), 0o755)
			return &ConfigFile{}, nil
		}
		return &ConfigFile{}, nil
	}

	var cfg ConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &cfg, nil
}

// applyConfig pushes file defaults into the session through the validating
// setters, so an out-of-range value in the file is rejected the same way a
// bad flag is.
func applyConfig(cfg *ConfigFile, s *ChatSession) error {
	if cfg.Model != nil {
		if err := s.SetModel(*cfg.Model); err != nil {
			return err
		}
	}
	if cfg.Temperature != nil {
		if err := s.SetTemperature(*cfg.Temperature); err != nil {
			return err
		}
	}
	if cfg.MaxTokens != nil {
		if err := s.SetMaxTokens(*cfg.MaxTokens); err != nil {
			return err
		}
	}
	if cfg.HistoryWindow != nil {
		if err := s.SetHistoryWindow(*cfg.HistoryWindow); err != nil {
			return err
		}
	}
	// Environment outranks the config file for API settings; the file only
	// supplies them when the env has nothing to say.
	if cfg.APIKey != nil && *cfg.APIKey != "" && os.Getenv("OPENAI_API_KEY") == "" {
		s.APIKey = *cfg.APIKey
	}
	if cfg.APIBase != nil && *cfg.APIBase != "" && os.Getenv("OPENAI_API_BASE") == "" {
		s.APIBase = *cfg.APIBase
	}
	return nil
}

// transcriptDir resolves where transcript artifacts are written: config
// value if set, else the current working directory (matching the original
// tool's behavior of dropping files next to where it runs).
func transcriptDir(cfg *ConfigFile) string {
	if cfg.TranscriptDir != nil && *cfg.TranscriptDir != "" {
		return *cfg.TranscriptDir
	}
	return "."
}

package io

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slok/comicsub/internal/model"
)

// ConfigYAMLRepository loads the application settings from YAML files.
type ConfigYAMLRepository struct {
	fs fs.FS
}

// NewConfigYAMLRepository creates a new YAML config repository.
func NewConfigYAMLRepository(filesystem fs.FS) *ConfigYAMLRepository {
	return &ConfigYAMLRepository{fs: filesystem}
}

// GetSettings loads the settings from a YAML file and returns a validated domain model.
func (r *ConfigYAMLRepository) GetSettings(ctx context.Context, path string) (model.Settings, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return model.Settings{}, fmt.Errorf("reading settings file: %w", err)
	}

	if ctx.Err() != nil {
		return model.Settings{}, ctx.Err()
	}

	var cfg SettingsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.Settings{}, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return model.Settings{}, fmt.Errorf("invalid settings: %w", err)
	}

	return cfg.toModel(), nil
}

// SettingsConfig represents the YAML structure of the settings.
type SettingsConfig struct {
	Executable string `yaml:"executable"`
	// UpdateInterval is in minutes.
	UpdateInterval int `yaml:"update_interval"`
	// CommandTimeout is in seconds.
	CommandTimeout int        `yaml:"command_timeout"`
	Mail           MailConfig `yaml:"mail"`
}

// MailConfig represents the YAML structure of the mail settings.
type MailConfig struct {
	Server    string `yaml:"server"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Recipient string `yaml:"recipient"`
}

func (c SettingsConfig) validate() error {
	if c.UpdateInterval < 0 {
		return fmt.Errorf("update_interval must be positive, got: %d", c.UpdateInterval)
	}
	if c.CommandTimeout < 0 {
		return fmt.Errorf("command_timeout must be positive, got: %d", c.CommandTimeout)
	}
	if c.Mail.Port < 0 || c.Mail.Port > 65535 {
		return fmt.Errorf("mail port is not valid, got: %d", c.Mail.Port)
	}
	return nil
}

func (c SettingsConfig) toModel() model.Settings {
	return model.Settings{
		Executable:     c.Executable,
		UpdateInterval: time.Duration(c.UpdateInterval) * time.Minute,
		CommandTimeout: time.Duration(c.CommandTimeout) * time.Second,
		Mail: model.MailSettings{
			Server:    c.Mail.Server,
			Port:      c.Mail.Port,
			Username:  c.Mail.Username,
			Password:  c.Mail.Password,
			Recipient: c.Mail.Recipient,
		},
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the resolved configuration for one invocation. Values come
// from the YAML file first; an environment variable of the documented
// name always wins over the file value.
type Config struct {
	LogLevel string  `yaml:"log_level" env:"LOG_LEVEL"`
	IMAP     Server  `yaml:"imap" envPrefix:"IMAP_"`
	SMTP     Server  `yaml:"smtp" envPrefix:"SMTP_"`
	Folders  Folders `yaml:"folders" envPrefix:"FOLDER_"`
}

type Server struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
	// STARTTLS upgrades a plain connection instead of dialing implicit TLS.
	STARTTLS bool `yaml:"starttls" env:"STARTTLS"`
}

// Folders names the well-known mailboxes the synthetic-message and
// deferred-send commands operate on.
type Folders struct {
	TODO      string `yaml:"todo" env:"TODO"`
	Drafts    string `yaml:"drafts" env:"DRAFTS"`
	Sent      string `yaml:"sent" env:"SENT"`
	SendLater string `yaml:"send_later" env:"SEND_LATER"`
}

// DefaultFilepath returns the configuration file read when no explicit
// path is given: ./config.yaml when present, otherwise the per-user
// ~/.config/tickle-me-email/config.yaml.
func DefaultFilepath() string {
	const local = "./config.yaml"
	if _, err := os.Stat(local); err == nil {
		return local
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return local
	}
	return filepath.Join(home, ".config", "tickle-me-email", "config.yaml")
}

func Load(cfgFilepath, envFilepath string) (Config, error) {
	var cfg Config

	if _, err := os.Stat(envFilepath); err == nil {
		if err = godotenv.Load(envFilepath); err != nil {
			return cfg, fmt.Errorf("unable to load environment variables from file: %w", err)
		}
	}

	//nolint:gosec
	fileBytes, err := os.ReadFile(cfgFilepath)
	switch {
	case err == nil:
		if err = yaml.Unmarshal(fileBytes, &cfg); err != nil {
			return cfg, fmt.Errorf("unable to unmarshal configuration file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Environment-only operation is fine; required values are
		// checked when a command first needs them.
	case errors.Is(err, os.ErrPermission):
		return cfg, fmt.Errorf("permission denied for accessing configuration file: %w", err)
	default:
		return cfg, fmt.Errorf("unexpected error during reading configuration file: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("unable to apply environment overrides: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.IMAP.Port == 0 {
		c.IMAP.Port = 993
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 465
	}
	if c.Folders.TODO == "" {
		c.Folders.TODO = "TODO"
	}
	if c.Folders.Drafts == "" {
		c.Folders.Drafts = "Drafts"
	}
	if c.Folders.Sent == "" {
		c.Folders.Sent = "Sent"
	}
	if c.Folders.SendLater == "" {
		c.Folders.SendLater = "SENDLATER"
	}
}

// RequireIMAP checks the credentials every mailbox command depends on.
func (c Config) RequireIMAP() error {
	if c.IMAP.Host == "" || c.IMAP.Username == "" || c.IMAP.Password == "" {
		return errors.New("missing IMAP credentials: set imap.host, imap.username and imap.password (or IMAP_HOST/IMAP_USERNAME/IMAP_PASSWORD)")
	}
	return nil
}

// RequireSMTP checks the credentials the deferred-send command depends on.
func (c Config) RequireSMTP() error {
	if c.SMTP.Host == "" || c.SMTP.Username == "" || c.SMTP.Password == "" {
		return errors.New("missing SMTP credentials: set smtp.host, smtp.username and smtp.password (or SMTP_HOST/SMTP_USERNAME/SMTP_PASSWORD)")
	}
	return nil
}

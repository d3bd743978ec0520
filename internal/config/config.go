package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DataDir           string        `env:"EXECLOG_DATA_DIR"`
	DBPath            string        `env:"EXECLOG_DB_PATH"`
	LogLevel          string        `env:"EXECLOG_LOG_LEVEL" envDefault:"info"`
	LogFormat         string        `env:"EXECLOG_LOG_FORMAT" envDefault:"console"`
	Shell             string        `env:"EXECLOG_SHELL" envDefault:"/bin/sh"`
	Timeout           time.Duration `env:"EXECLOG_TIMEOUT" envDefault:"0s"`
	UserCommandDir    string
	ProjectCommandDir string
}

func New() (*Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if c.DataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		c.DataDir = filepath.Join(homeDir, ".execlog")
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "execlog.db")
	}

	c.UserCommandDir = filepath.Join(c.DataDir, "commands")
	c.ProjectCommandDir = filepath.Join(".execlog", "commands")

	return &c, nil
}

func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	if err := os.MkdirAll(c.UserCommandDir, 0755); err != nil {
		return err
	}
	return nil
}

func (c *Config) WorkspacesDir() string {
	return filepath.Join(c.DataDir, "workspaces")
}

// CommandDirs lists definition directories, project first.
func (c *Config) CommandDirs() []string {
	return []string{c.ProjectCommandDir, c.UserCommandDir}
}

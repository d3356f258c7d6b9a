// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Experiment ExperimentConfig `toml:"experiment"`
	Server     ServerConfig     `toml:"server"`
	Log        LogConfig        `toml:"log"`
}

// ExperimentConfig maps experiment-related settings.
type ExperimentConfig struct {
	DisplayMs     *int    `toml:"display-ms"`
	RecallSeconds *int    `toml:"recall-seconds"`
	ServerURL     *string `toml:"server-url"`
	Pools         *string `toml:"pools"`
	Practice      *bool   `toml:"practice"`
}

// ServerConfig maps backend settings.
type ServerConfig struct {
	Addr      *string      `toml:"addr"`
	DataDir   *string      `toml:"data-dir"`
	StaticDir *string      `toml:"static-dir"`
	Columns   *string      `toml:"columns"`
	GitHub    GitHubConfig `toml:"github"`
	SMTP      SMTPConfig   `toml:"smtp"`
}

// GitHubConfig maps the GitHub mirror settings.
type GitHubConfig struct {
	Token  *string `toml:"token"`
	Repo   *string `toml:"repo"`
	Branch *string `toml:"branch"`
	Dir    *string `toml:"dir"`
}

// SMTPConfig maps the e-mail mirror settings.
type SMTPConfig struct {
	Host     *string  `toml:"host"`
	Port     *int     `toml:"port"`
	Username *string  `toml:"username"`
	Password *string  `toml:"password"`
	From     *string  `toml:"from"`
	To       []string `toml:"to"`
}

// LogConfig maps logging settings.
type LogConfig struct {
	Level *string `toml:"level"`
	File  *string `toml:"file"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides secrets and the listen port from the environment.
// Environment values win over the file.
func (c *FileConfig) ApplyEnv(getenv func(string) string) {
	if v := getenv("GITHUB_TOKEN"); v != "" {
		c.Server.GitHub.Token = &v
	}
	if v := getenv("GITHUB_REPO"); v != "" {
		c.Server.GitHub.Repo = &v
	}
	if v := getenv("SMTP_PASSWORD"); v != "" {
		c.Server.SMTP.Password = &v
	}
	if v := getenv("PORT"); v != "" {
		addr := ":" + v
		c.Server.Addr = &addr
	}
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all mnemo configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Bind string `mapstructure:"bind"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type EmbeddingConfig struct {
	OllamaURL  string `mapstructure:"ollama_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 38111,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Embedding: EmbeddingConfig{
			OllamaURL:  "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: 768,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads ~/.mnemo/config.toml (or the file at MNEMO_CONFIG) over
// the defaults, with MNEMO_* environment overrides.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	def := Default()
	v.SetDefault("server.bind", def.Server.Bind)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("database.path", def.Database.Path)
	v.SetDefault("embedding.ollama_url", def.Embedding.OllamaURL)
	v.SetDefault("embedding.model", def.Embedding.Model)
	v.SetDefault("embedding.dimensions", def.Embedding.Dimensions)
	v.SetDefault("log.level", def.Log.Level)

	v.SetEnvPrefix("MNEMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("MNEMO_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.SetConfigFile(filepath.Join(home, ".mnemo", "config.toml"))
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file just means defaults.
		if _, statErr := os.Stat(v.ConfigFileUsed()); statErr == nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

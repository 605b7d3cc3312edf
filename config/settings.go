package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Settings are the CLI knobs. Precedence: flags, HDRGEN_* environment
// variables (a .env file is loaded first), .hdrgen.yaml, defaults.
type Settings struct {
	Rules      string `mapstructure:"rules"`
	Out        string `mapstructure:"out"`
	Format     string `mapstructure:"format"`
	LogLevel   string `mapstructure:"log-level"`
	LogFormat  string `mapstructure:"log-format"`
	Workers    int    `mapstructure:"workers"`
	CacheSize  int    `mapstructure:"cache-size"`
	Concurrent bool   `mapstructure:"concurrent"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Format:    "json",
		LogLevel:  "info",
		LogFormat: "text",
		Workers:   4,
		CacheSize: 256,
	}
}

// LoadSettings resolves the settings. flags may be nil. searchPaths lists
// the directories probed for .hdrgen.yaml; the working directory is used
// when none are given.
func LoadSettings(flags *pflag.FlagSet, searchPaths ...string) (*Settings, error) {
	_ = godotenv.Load()

	def := DefaultSettings()

	v := viper.New()
	v.SetDefault("rules", def.Rules)
	v.SetDefault("out", def.Out)
	v.SetDefault("format", def.Format)
	v.SetDefault("log-level", def.LogLevel)
	v.SetDefault("log-format", def.LogFormat)
	v.SetDefault("workers", def.Workers)
	v.SetDefault("cache-size", def.CacheSize)
	v.SetDefault("concurrent", def.Concurrent)

	v.SetConfigName(".hdrgen")
	v.SetConfigType("yaml")
	if len(searchPaths) == 0 {
		searchPaths = []string{"."}
	}
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("HDRGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading settings: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}

	if s.Workers < 1 {
		s.Workers = 1
	}

	return &s, nil
}

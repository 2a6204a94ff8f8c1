// Package config loads process configuration from defaults, an optional
// config file and BEEBAR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/sadopc/beebar/internal/auth"
	"github.com/sadopc/beebar/internal/beeminder"
)

const (
	EnvPrefix           = "BEEBAR"
	DefaultAuthorizeURL = "https://www.beeminder.com/apps/authorize"
	DefaultRedirectURI  = "beebar://oauth/callback"
	appDir              = "beebar"
)

type Config struct {
	BaseURL      string `mapstructure:"base_url"`
	AuthorizeURL string `mapstructure:"authorize_url"`
	ClientID     string `mapstructure:"client_id"`
	RedirectURI  string `mapstructure:"redirect_uri"`
	DBPath       string `mapstructure:"db_path"`
	Log          Log    `mapstructure:"log"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"` // "-" for stderr
}

// Dir returns ~/.config/beebar
func Dir() (string, error) {
	cfg, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg, appDir), nil
}

// Load reads configuration. An explicit path must exist; otherwise
// config.{yaml,json,toml} in Dir is optional.
func Load(path string) (Config, error) {
	dir, err := Dir()
	if err != nil {
		return Config{}, fmt.Errorf("resolve config dir: %w", err)
	}

	v := viper.New()
	v.SetDefault("base_url", beeminder.DefaultBaseURL)
	v.SetDefault("authorize_url", DefaultAuthorizeURL)
	v.SetDefault("client_id", "")
	v.SetDefault("redirect_uri", DefaultRedirectURI)
	v.SetDefault("db_path", filepath.Join(dir, appDir+".db"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", filepath.Join(dir, appDir+".log"))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	for name, raw := range map[string]string{"base_url": c.BaseURL, "authorize_url": c.AuthorizeURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
			return fmt.Errorf("invalid %s %q", name, raw)
		}
	}
	if c.DBPath == "" {
		return errors.New("db_path must not be empty")
	}
	return nil
}

// Auth returns the OAuth bootstrap settings.
func (c Config) Auth() auth.Config {
	return auth.Config{
		ClientID:     c.ClientID,
		RedirectURI:  c.RedirectURI,
		AuthorizeURL: c.AuthorizeURL,
	}
}

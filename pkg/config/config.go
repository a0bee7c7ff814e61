// Package config loads the gatehouse configuration from a file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full configuration of the gatehouse server.
type Config struct {
	// Debug enables debug-level logging.
	Debug bool `mapstructure:"debug"`

	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	OAuth2     OAuth2Config     `mapstructure:"oauth2"`
	ClientCert ClientCertConfig `mapstructure:"client_cert"`
	Session    SessionConfig    `mapstructure:"session"`
	Store      StoreConfig      `mapstructure:"store"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// AuthConfig configures the password-based backends.
type AuthConfig struct {
	Basic BasicConfig `mapstructure:"basic"`
	Form  FormConfig  `mapstructure:"form"`
}

// BasicConfig configures the HTTP Basic backend.
type BasicConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Mode    string `mapstructure:"mode"`
	Realm   string `mapstructure:"realm"`
}

// FormConfig configures the login form backend.
type FormConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Mode     string `mapstructure:"mode"`
	LoginURL string `mapstructure:"login_url"`
}

// OAuth2Config configures the OAuth2 backend. The backend is enabled when a
// client id is set.
type OAuth2Config struct {
	ClientID       string   `mapstructure:"client_id"`
	ClientSecret   string   `mapstructure:"client_secret"`
	AuthURL        string   `mapstructure:"auth_url"`
	TokenURL       string   `mapstructure:"token_url"`
	UserinfoURL    string   `mapstructure:"userinfo_url"`
	RedirectURL    string   `mapstructure:"redirect_url"`
	Scopes         []string `mapstructure:"scopes"`
	PrincipalClaim string   `mapstructure:"principal_claim"`
}

// Enabled reports whether the OAuth2 backend is configured.
func (c OAuth2Config) Enabled() bool {
	return c.ClientID != ""
}

// ClientCertConfig configures the client TLS certificate backend.
type ClientCertConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	PrincipalFrom string `mapstructure:"principal_from"`
}

// SessionConfig configures the session store and cookie.
type SessionConfig struct {
	CookieName string        `mapstructure:"cookie_name"`
	TTL        time.Duration `mapstructure:"ttl"`
	Secure     bool          `mapstructure:"secure"`

	// RedisAddr switches the session store from in-memory to Redis.
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// StoreConfig configures the user/permission store.
type StoreConfig struct {
	// Driver selects the store implementation: memory or sqlite.
	Driver string `mapstructure:"driver"`

	// DSN is the sqlite data source name.
	DSN string `mapstructure:"dsn"`
}

// oauth2EnvKeys are the oauth2.* keys overridable through OAUTH2_* env vars,
// e.g. OAUTH2_CLIENT_SECRET for oauth2.client_secret.
var oauth2EnvKeys = []string{
	"client_id",
	"client_secret",
	"auth_url",
	"token_url",
	"userinfo_url",
	"redirect_url",
	"principal_claim",
}

// Load reads the configuration from the given file. An empty path falls back
// to gatehouse.yaml in the working directory or /etc/gatehouse; a missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gatehouse")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/gatehouse")
	}

	for _, key := range oauth2EnvKeys {
		if err := v.BindEnv("oauth2."+key, "OAUTH2_"+strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("failed to bind oauth2 env var: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("server.address", "127.0.0.1:8080")

	v.SetDefault("auth.basic.enabled", true)
	v.SetDefault("auth.basic.mode", "proposed")
	v.SetDefault("auth.basic.realm", "Restricted")
	v.SetDefault("auth.form.enabled", true)
	v.SetDefault("auth.form.mode", "proposed")
	v.SetDefault("auth.form.login_url", "/login")

	v.SetDefault("oauth2.principal_claim", "sub")

	v.SetDefault("client_cert.enabled", false)
	v.SetDefault("client_cert.principal_from", "cn")

	v.SetDefault("session.cookie_name", "gatehouse_session")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.secure", false)

	v.SetDefault("store.driver", "memory")
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "TOOLGATE"

type Config struct {
	AgentID string

	Server    Server
	APIKey    string // secret every protected request must present
	Log       Log
	Fetch     Fetch
	Detection Detection
}

type Server struct {
	Host string
	Port int
}

type Log struct {
	Level  string
	Format string // text or json
}

// Fetch bounds outbound calls made by the networked tools.
// Zero values leave the transport defaults in place.
type Fetch struct {
	Timeout      time.Duration
	MaxBodyBytes int64
}

type Detection struct {
	Enabled bool
	// Rules is a gitleaks rules file; empty selects the bundled rules.
	Rules string
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 11435)
	v.SetDefault("api_key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("fetch.timeout", time.Duration(0))
	v.SetDefault("fetch.max_body_bytes", int64(0))
	v.SetDefault("detection.enabled", false)
	v.SetDefault("detection.config", "")
}

// Load reads configuration from v, which may already carry bound flags
// and a config file. Environment variables use the TOOLGATE_ prefix;
// API_KEY is honoured as a fallback for the secret.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("api_key", EnvPrefix+"_API_KEY", "API_KEY"); err != nil {
		return nil, errors.Wrap(err, "failed to bind api_key")
	}

	cfg := &Config{
		AgentID: uuid.NewString(),
		Server: Server{
			Host: v.GetString("server.host"),
			Port: v.GetInt("server.port"),
		},
		APIKey: v.GetString("api_key"),
		Log: Log{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
		Fetch: Fetch{
			Timeout:      v.GetDuration("fetch.timeout"),
			MaxBodyBytes: v.GetInt64("fetch.max_body_bytes"),
		},
		Detection: Detection{
			Enabled: v.GetBool("detection.enabled"),
			Rules:   v.GetString("detection.config"),
		},
	}
	return cfg, nil
}

// Validate reports the first configuration problem that would keep the
// server from starting.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("api_key is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf("invalid server port: %d", c.Server.Port)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.Newf("unsupported log format: %q", c.Log.Format)
	}
	if c.Fetch.Timeout < 0 {
		return errors.New("fetch.timeout must not be negative")
	}
	if c.Fetch.MaxBodyBytes < 0 {
		return errors.New("fetch.max_body_bytes must not be negative")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Env           string `mapstructure:"env"`
	ListenAddr    string `mapstructure:"listen_addr"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	ScriptPath    string `mapstructure:"script_path"`

	Database struct {
		Driver   string `mapstructure:"driver"`
		URL      string `mapstructure:"url"`
		MaxConns int32  `mapstructure:"max_conns"`
	} `mapstructure:"database"`

	Log struct {
		Level string `mapstructure:"level"`
		Path  string `mapstructure:"path"`
	} `mapstructure:"log"`

	AccessLog struct {
		Workers   int `mapstructure:"workers"`
		QueueSize int `mapstructure:"queue_size"`
	} `mapstructure:"access_log"`

	RateLimit struct {
		RPS   float64 `mapstructure:"rps"`
		Burst int     `mapstructure:"burst"`
	} `mapstructure:"rate_limit"`

	Server struct {
		RequestTimeout time.Duration `mapstructure:"request_timeout"`
		// TrustedProxies lists the CIDRs (or single addresses) whose
		// forwarding headers name the client. Empty means none are trusted.
		TrustedProxies []string `mapstructure:"trusted_proxies"`
	} `mapstructure:"server"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("public_base_url", "http://localhost:8080")
	v.SetDefault("script_path", "/anticlone.js")
	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.path", "")
	v.SetDefault("access_log.workers", 2)
	v.SetDefault("access_log.queue_size", 1024)
	v.SetDefault("rate_limit.rps", 20.0)
	v.SetDefault("rate_limit.burst", 40)
	v.SetDefault("server.request_timeout", 5*time.Second)
	v.SetDefault("server.trusted_proxies", []string{})
}

// Load reads defaults, an optional YAML file and ANTICLONE_* environment
// variables, in increasing priority. An empty cfgFile searches ./config.yaml.
func Load(cfgFile string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
	}
	v.SetConfigType("yaml")

	v.SetEnvPrefix("ANTICLONE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver)
	}
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Database.MaxConns <= 0 {
		return errors.New("database.max_conns must be > 0")
	}
	if !strings.HasPrefix(c.ScriptPath, "/") {
		return fmt.Errorf("script_path must start with /, got %q", c.ScriptPath)
	}
	if c.AccessLog.Workers < 0 {
		return errors.New("access_log.workers must be >= 0")
	}
	if c.AccessLog.QueueSize <= 0 {
		return errors.New("access_log.queue_size must be > 0")
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return errors.New("rate_limit values must be >= 0")
	}
	if c.Server.RequestTimeout <= 0 {
		return errors.New("server.request_timeout must be > 0")
	}
	if _, err := c.TrustedProxies(); err != nil {
		return err
	}
	return nil
}

// TrustedProxies parses server.trusted_proxies. A bare address is taken as
// a single host prefix.
func (c Config) TrustedProxies() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range c.Server.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("server.trusted_proxies: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("server.trusted_proxies: %w", err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

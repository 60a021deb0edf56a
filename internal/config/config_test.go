package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anticlone.yaml")
	body := []byte(`
listen_addr: ":9090"
public_base_url: "https://cdn.offertrack.example/"
database:
  driver: SQLite
  url: "file:test.db"
access_log:
  workers: 4
server:
  request_timeout: 2s
  trusted_proxies: ["10.0.0.0/8", "192.0.2.10"]
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ANTICLONE_LOG_LEVEL", "debug")
	t.Setenv("ANTICLONE_RATE_LIMIT_BURST", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.PublicBaseURL != "https://cdn.offertrack.example" {
		t.Fatalf("PublicBaseURL = %q, want trailing slash trimmed", cfg.PublicBaseURL)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Fatalf("Driver = %q", cfg.Database.Driver)
	}
	if cfg.AccessLog.Workers != 4 || cfg.AccessLog.QueueSize != 1024 {
		t.Fatalf("access log = %+v", cfg.AccessLog)
	}
	if cfg.Server.RequestTimeout != 2*time.Second {
		t.Fatalf("RequestTimeout = %v", cfg.Server.RequestTimeout)
	}
	proxies, err := cfg.TrustedProxies()
	if err != nil || len(proxies) != 2 {
		t.Fatalf("TrustedProxies = %v, %v", proxies, err)
	}
	if proxies[0].String() != "10.0.0.0/8" || proxies[1].String() != "192.0.2.10/32" {
		t.Fatalf("TrustedProxies = %v", proxies)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("Log.Level = %q, want env override", cfg.Log.Level)
	}
	if cfg.RateLimit.Burst != 7 {
		t.Fatalf("Burst = %d, want env override", cfg.RateLimit.Burst)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, []byte("env: test\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error without database.url")
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	var c Config
	c.Database.Driver = "mysql"
	c.Database.URL = "x"
	c.Database.MaxConns = 1
	c.ScriptPath = "/anticlone.js"
	c.AccessLog.QueueSize = 1
	c.Server.RequestTimeout = time.Second
	if err := c.Validate(); err == nil {
		t.Fatalf("expected Validate to reject driver mysql")
	}
	c.Database.Driver = DriverPostgres
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsBadTrustedProxy(t *testing.T) {
	var c Config
	c.Database.Driver = DriverSQLite
	c.Database.URL = "x"
	c.Database.MaxConns = 1
	c.ScriptPath = "/anticlone.js"
	c.AccessLog.QueueSize = 1
	c.Server.RequestTimeout = time.Second
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate with no proxies: %v", err)
	}
	for _, bad := range []string{"10.0.0.0/33", "proxy.internal", "::1/200"} {
		c.Server.TrustedProxies = []string{bad}
		if err := c.Validate(); err == nil {
			t.Fatalf("expected Validate to reject trusted proxy %q", bad)
		}
	}
}

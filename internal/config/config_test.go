package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newCommand(t *testing.T) (*cobra.Command, *viper.Viper) {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	v := viper.New()
	if err := BindFlags(cmd, v); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}
	return cmd, v
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://tasks@localhost/tasks")
	_, v := newCommand(t)

	cfg, err := Load(v, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 3000 {
		t.Errorf("port = %d, want 3000", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Errorf("env = %q, want development", cfg.Env)
	}
	if cfg.DB.Driver != "postgres" || cfg.DB.DSN != "postgres://tasks@localhost/tasks" {
		t.Errorf("db = %+v", cfg.DB)
	}
	if cfg.DB.MaxIdleTime != 15*time.Minute || cfg.DB.QueryTimeout != 5*time.Second {
		t.Errorf("db durations = %v, %v", cfg.DB.MaxIdleTime, cfg.DB.QueryTimeout)
	}
	if !cfg.Limiter.Enabled || cfg.Limiter.RPS != 2 || cfg.Limiter.Burst != 4 {
		t.Errorf("limiter = %+v", cfg.Limiter)
	}
	if cfg.JWT.Secret != "" || cfg.SMTP.Host != "" {
		t.Errorf("optional integrations enabled by default: %+v %+v", cfg.JWT, cfg.SMTP)
	}
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://tasks@localhost/tasks")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SMTP_SENDER", "Tasks <no-reply@example.com>")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("TASKD_ENV", "production")
	t.Setenv("TASKD_CORS_TRUSTED_ORIGINS", "https://a.example.com,https://b.example.com")
	_, v := newCommand(t)

	cfg, err := Load(v, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SMTP.Host != "smtp.example.com" || cfg.SMTP.Port != 2525 || cfg.SMTP.Sender != "Tasks <no-reply@example.com>" {
		t.Errorf("smtp = %+v", cfg.SMTP)
	}
	if cfg.JWT.Secret != "s3cret" {
		t.Errorf("jwt secret = %q", cfg.JWT.Secret)
	}
	if cfg.Env != "production" {
		t.Errorf("env = %q, want production", cfg.Env)
	}
	if len(cfg.CORS.TrustedOrigins) != 2 || cfg.CORS.TrustedOrigins[1] != "https://b.example.com" {
		t.Errorf("trusted origins = %v", cfg.CORS.TrustedOrigins)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskd.yaml")
	content := `port: 4000
db:
  driver: sqlite3
  dsn: /tmp/tasks.db
  query_timeout: 2s
limiter:
  enabled: false
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DB_DSN", "")
	_, v := newCommand(t)

	cfg, err := Load(v, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 4000 || cfg.DB.Driver != "sqlite3" || cfg.DB.DSN != "/tmp/tasks.db" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.DB.QueryTimeout != 2*time.Second {
		t.Errorf("query timeout = %v, want 2s", cfg.DB.QueryTimeout)
	}
	if cfg.Limiter.Enabled {
		t.Error("limiter should be disabled by the config file")
	}
}

func TestFlagsOverrideEverything(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://env")
	cmd, v := newCommand(t)
	for name, val := range map[string]string{
		"port":      "8080",
		"db-dsn":    "postgres://flag",
		"db-driver": "sqlite3",
	} {
		if err := cmd.PersistentFlags().Set(name, val); err != nil {
			t.Fatalf("set %s: %v", name, err)
		}
	}

	cfg, err := Load(v, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 || cfg.DB.DSN != "postgres://flag" || cfg.DB.Driver != "sqlite3" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:    3000,
			Env:     "development",
			DB:      DB{Driver: "postgres", DSN: "x", MaxOpenConns: 1, QueryTimeout: time.Second},
			Limiter: Limiter{Enabled: true, RPS: 1, Burst: 1},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Port = 0 }, "port"},
		{"bad env", func(c *Config) { c.Env = "qa" }, "env"},
		{"bad driver", func(c *Config) { c.DB.Driver = "mysql" }, "db.driver"},
		{"missing dsn", func(c *Config) { c.DB.DSN = "" }, "db.dsn"},
		{"smtp without sender", func(c *Config) { c.SMTP = SMTP{Host: "h", Port: 25} }, "smtp.sender"},
		{"limiter without rate", func(c *Config) { c.Limiter.RPS = 0 }, "limiter.rps"},
		{"disabled limiter ignores rate", func(c *Config) { c.Limiter = Limiter{} }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			switch {
			case tt.want == "" && err != nil:
				t.Fatalf("unexpected error: %v", err)
			case tt.want != "" && (err == nil || !strings.Contains(err.Error(), tt.want)):
				t.Fatalf("got %v, want an error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestYAMLRedactsSecrets(t *testing.T) {
	cfg := Config{
		Port: 3000,
		DB:   DB{DSN: "postgres://user:pw@host/db", MaxIdleTime: time.Minute},
		SMTP: SMTP{Password: "smtp-pw"},
		JWT:  JWT{Secret: "jwt-secret"},
	}
	out, err := cfg.YAML()
	if err != nil {
		t.Fatalf("YAML: %v", err)
	}
	for _, secret := range []string{"pw@host", "smtp-pw", "jwt-secret"} {
		if strings.Contains(string(out), secret) {
			t.Errorf("YAML output leaks %q:\n%s", secret, out)
		}
	}
	if !strings.Contains(string(out), "max_idle_time: 1m0s") {
		t.Errorf("YAML output misses the idle time:\n%s", out)
	}
	if cfg.JWT.Secret != "jwt-secret" {
		t.Error("YAML modified the receiver")
	}
}

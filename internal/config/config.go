package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const redacted = "********"

type Config struct {
	Port    int     `mapstructure:"port" yaml:"port"`
	Env     string  `mapstructure:"env" yaml:"env"`
	DB      DB      `mapstructure:"db" yaml:"db"`
	SMTP    SMTP    `mapstructure:"smtp" yaml:"smtp"`
	JWT     JWT     `mapstructure:"jwt" yaml:"jwt"`
	Limiter Limiter `mapstructure:"limiter" yaml:"limiter"`
	CORS    CORS    `mapstructure:"cors" yaml:"cors"`
}

type DB struct {
	Driver       string        `mapstructure:"driver" yaml:"driver"`
	DSN          string        `mapstructure:"dsn" yaml:"dsn"`
	MaxOpenConns int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	MaxIdleTime  time.Duration `mapstructure:"max_idle_time" yaml:"max_idle_time"`
	QueryTimeout time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
}

type SMTP struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Sender   string `mapstructure:"sender" yaml:"sender"`
}

// JWT verification is disabled when Secret is empty.
type JWT struct {
	Secret string `mapstructure:"secret" yaml:"secret"`
}

type Limiter struct {
	Enabled bool    `mapstructure:"enabled" yaml:"enabled"`
	RPS     float64 `mapstructure:"rps" yaml:"rps"`
	Burst   int     `mapstructure:"burst" yaml:"burst"`
}

type CORS struct {
	TrustedOrigins []string `mapstructure:"trusted_origins" yaml:"trusted_origins"`
}

type setting struct {
	key   string
	flag  string
	value any
	usage string
	envs  []string
}

var settings = []setting{
	{"port", "port", 3000, "Server port", nil},
	{"env", "env", "development", "Environment [development|staging|production]", nil},

	{"db.driver", "db-driver", "postgres", "Database driver [postgres|sqlite3]", nil},
	{"db.dsn", "db-dsn", "", "Database DSN", []string{"DB_DSN"}},
	{"db.max_open_conns", "db-max-open-conns", 25, "Database max open connections", nil},
	{"db.max_idle_conns", "db-max-idle-conns", 25, "Database max idle connections", nil},
	{"db.max_idle_time", "db-max-idle-time", 15 * time.Minute, "Database max connection idle time", nil},
	{"db.query_timeout", "db-query-timeout", 5 * time.Second, "Timeout applied to every database statement", nil},

	{"smtp.host", "smtp-host", "", "SMTP host", []string{"SMTP_HOST"}},
	{"smtp.port", "smtp-port", 25, "SMTP port", []string{"SMTP_PORT"}},
	{"smtp.username", "smtp-username", "", "SMTP username", []string{"SMTP_USERNAME"}},
	{"smtp.password", "smtp-password", "", "SMTP password", []string{"SMTP_PASSWORD"}},
	{"smtp.sender", "smtp-sender", "", "SMTP sender", []string{"SMTP_SENDER"}},

	{"jwt.secret", "jwt-secret", "", "HMAC secret used to verify identity tokens", []string{"JWT_SECRET"}},

	{"limiter.enabled", "limiter-enabled", true, "Enable the per-client rate limiter", nil},
	{"limiter.rps", "limiter-rps", 2.0, "Rate limiter maximum requests per second", nil},
	{"limiter.burst", "limiter-burst", 4, "Rate limiter maximum burst", nil},

	{"cors.trusted_origins", "cors-trusted-origins", []string{}, "Trusted CORS origins (comma separated)", nil},
}

// BindFlags registers one persistent flag per setting on cmd and binds it to v.
func BindFlags(cmd *cobra.Command, v *viper.Viper) error {
	fs := cmd.PersistentFlags()
	for _, s := range settings {
		switch val := s.value.(type) {
		case int:
			fs.Int(s.flag, val, s.usage)
		case string:
			fs.String(s.flag, val, s.usage)
		case bool:
			fs.Bool(s.flag, val, s.usage)
		case float64:
			fs.Float64(s.flag, val, s.usage)
		case time.Duration:
			fs.Duration(s.flag, val, s.usage)
		case []string:
			fs.StringSlice(s.flag, val, s.usage)
		default:
			return fmt.Errorf("setting %s has unsupported type %T", s.key, s.value)
		}
		if err := v.BindPFlag(s.key, fs.Lookup(s.flag)); err != nil {
			return err
		}
	}
	return nil
}

// Load resolves the configuration from flags bound to v, the environment and,
// when file is not empty, a YAML config file.
func Load(v *viper.Viper, file string) (*Config, error) {
	v.SetEnvPrefix("taskd")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, s := range settings {
		v.SetDefault(s.key, s.value)
		if len(s.envs) > 0 {
			envs := append([]string{s.key, "TASKD_" + strings.ToUpper(strings.NewReplacer(".", "_").Replace(s.key))}, s.envs...)
			if err := v.BindEnv(envs...); err != nil {
				return nil, err
			}
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	check := func(cond bool, format string, args ...any) {
		if !cond {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Port > 0 && c.Port <= 65535, "port must be between 1 and 65535")
	check(c.Env == "development" || c.Env == "staging" || c.Env == "production", "env %q must be development, staging or production", c.Env)
	check(c.DB.Driver == "postgres" || c.DB.Driver == "sqlite3", "db.driver %q must be postgres or sqlite3", c.DB.Driver)
	check(c.DB.DSN != "", "db.dsn must be provided")
	check(c.DB.MaxOpenConns > 0, "db.max_open_conns must be positive")
	check(c.DB.MaxIdleConns >= 0, "db.max_idle_conns must not be negative")
	check(c.DB.QueryTimeout > 0, "db.query_timeout must be positive")
	if c.SMTP.Host != "" {
		check(c.SMTP.Port > 0 && c.SMTP.Port <= 65535, "smtp.port must be between 1 and 65535")
		check(c.SMTP.Sender != "", "smtp.sender must be provided when smtp.host is set")
	}
	if c.Limiter.Enabled {
		check(c.Limiter.RPS > 0, "limiter.rps must be positive")
		check(c.Limiter.Burst > 0, "limiter.burst must be positive")
	}
	return errors.Join(errs...)
}

func (c Config) YAML() ([]byte, error) {
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&c.DB.DSN)
	mask(&c.SMTP.Password)
	mask(&c.JWT.Secret)
	return yaml.Marshal(c)
}

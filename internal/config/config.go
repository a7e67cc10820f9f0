package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

type Config struct {
	Env        string `yaml:"env" validate:"oneof=dev stage prod"`
	LogLevel   string `yaml:"log_level" validate:"oneof=debug info warn error"`
	HTTPServer `yaml:"http_server"`
	Shortlink  `yaml:"shortlink"`
	Storage    `yaml:"storage"`
	Postgres   `yaml:"postgres"`
	Redis      `yaml:"redis"`
}

type HTTPServer struct {
	Port               int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	IdleTimeout        time.Duration `yaml:"idle_timeout"`
	RequestTimeout     time.Duration `yaml:"request_timeout" validate:"gt=0"`
	MaxHeaderBytes     int           `yaml:"max_header_bytes"`
	CertFile           string        `yaml:"cert_file"`
	KeyFile            string        `yaml:"key_file"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
}

var defaultHTTPServer = HTTPServer{
	Port:               8080,
	ReadTimeout:        5 * time.Second,
	WriteTimeout:       10 * time.Second,
	IdleTimeout:        time.Minute,
	RequestTimeout:     5 * time.Second,
	MaxHeaderBytes:     1 << 20,
	CORSAllowedOrigins: []string{"*"},
}

func (s *HTTPServer) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// Shortlink configures link creation and resolution.
type Shortlink struct {
	BaseURL      string        `yaml:"base_url" validate:"required,http_url"`
	CodeLength   int           `yaml:"code_length" validate:"min=6,max=10"`
	MaxAttempts  int           `yaml:"max_attempts" validate:"min=1"`
	ClickTimeout time.Duration `yaml:"click_timeout" validate:"gt=0"`
}

var defaultShortlink = Shortlink{
	BaseURL:      "http://localhost:8080",
	CodeLength:   8,
	MaxAttempts:  5,
	ClickTimeout: 2 * time.Second,
}

type Storage struct {
	Driver string `yaml:"driver" validate:"oneof=postgres redis memory"`
}

type Postgres struct {
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	DB              string        `yaml:"db"`
	SSLMode         string        `yaml:"sslmode"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

var defaultPostgres = Postgres{
	Host:            "localhost",
	Port:            5432,
	SSLMode:         "disable",
	ConnMaxIdleTime: 5 * time.Minute,
	ConnMaxLifetime: 30 * time.Minute,
	MaxIdleConns:    5,
	MaxOpenConns:    25,
	ConnectTimeout:  30 * time.Second,
}

func (p *Postgres) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DB, p.SSLMode)
}

type Redis struct {
	Addr           string        `yaml:"addr"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	PoolSize       int           `yaml:"pool_size"`
	MinIdleConns   int           `yaml:"min_idle_conns"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	KeyPrefix      string        `yaml:"key_prefix"`
	// Retention is how long an expired link stays readable as expired before Redis drops it.
	Retention time.Duration `yaml:"retention"`
}

var defaultRedis = Redis{
	Addr:           "localhost:6379",
	PoolSize:       10,
	MinIdleConns:   2,
	DialTimeout:    5 * time.Second,
	ReadTimeout:    3 * time.Second,
	WriteTimeout:   3 * time.Second,
	ConnectTimeout: 30 * time.Second,
	KeyPrefix:      "shortlink:",
	Retention:      7 * 24 * time.Hour,
}

func Load(path string) (*Config, error) {
	const op = "config.Load"

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open config file: %w", op, err)
	}
	defer f.Close()

	var cfg Config
	setDefaults(&cfg)

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to decode config file: %w", op, err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.Env = EnvDev
	cfg.LogLevel = "info"
	cfg.HTTPServer = defaultHTTPServer
	cfg.Shortlink = defaultShortlink
	cfg.Storage = Storage{Driver: DriverPostgres}
	cfg.Postgres = defaultPostgres
	cfg.Redis = defaultRedis
}

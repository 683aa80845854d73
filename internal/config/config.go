package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// this is a pointer so that if someone attempts to use it before loading it will
// panic and force them to load it first.
// it is also private so that it cannot be modified after loading.
var _loaded *Config

// Store drivers
const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
)

// Config is the main configuration structure
type Config struct {
	Common Common `yaml:"common"`
}

// Load loads the configuration following proper precedence: defaults → config file → environment variables
func Load() {
	cfg := defaultConfig
	_loaded = &cfg

	configFile := os.Getenv("USERS_CONFIG_FILE")
	if configFile == "" {
		configFile = "users.yaml"
	}

	if err := LoadFromFile(configFile); err != nil {
		log.Printf("Failed to load config file: %v, using defaults", err)
	} else {
		log.Printf("Successfully loaded config from file: %s", configFile)
	}

	ApplyEnvOverrides()
}

// LoadDefault loads the built-in defaults only
func LoadDefault() {
	cfg := defaultConfig
	_loaded = &cfg
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults
	cfg := defaultConfig

	// Merge YAML values over defaults
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	_loaded = &cfg
	return nil
}

// set sane defaults for all of the config options. when loading the config from
// the file, any options that are not set will be set to these defaults.
var defaultConfig = Config{
	Common: Common{
		Log: logConfig{
			Level:  "info",
			Format: "json",
		},
		Http: httpConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: "30s",
		},
		Store: storeConfig{
			Driver: StoreDriverMemory,
		},
		Postgres: postgresConfig{
			User:               "postgres",
			Password:           "postgres",
			Host:               "localhost",
			Port:               5432,
			Database:           "users",
			MaxOpenConnections: 10,
			ConnectTimeout:     "5s",
		},
		Redis: redisConfig{
			Enabled:  false,
			Host:     "localhost",
			Port:     6379,
			Password: "",
			Database: 0,
			TTL:      "5m",
		},
		Seed: seedConfig{
			File: "",
		},
	},
}

type Common struct {
	Log      logConfig      `yaml:"log"`
	Http     httpConfig     `yaml:"http"`
	Store    storeConfig    `yaml:"store"`
	Postgres postgresConfig `yaml:"postgres"`
	Redis    redisConfig    `yaml:"redis"`
	Seed     seedConfig     `yaml:"seed"`
}

type logConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type httpConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

func (c httpConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ShutdownTimeoutDuration parses ShutdownTimeout. Validate guarantees it parses.
func (c httpConfig) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

type storeConfig struct {
	Driver string `yaml:"driver"` // "memory" or "postgres"
}

type postgresConfig struct {
	User               string `yaml:"user"`
	Password           string `yaml:"password"`
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Database           string `yaml:"database"`
	MaxOpenConnections int    `yaml:"max_open_connections"`
	ConnectTimeout     string `yaml:"connect_timeout"`
}

func (c postgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		url.QueryEscape(c.Database),
	)
}

// ConnectTimeoutDuration parses ConnectTimeout. Validate guarantees it parses.
func (c postgresConfig) ConnectTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ConnectTimeout)
	return d
}

type redisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	Database int    `yaml:"database"`
	TTL      string `yaml:"ttl"`
}

func (c redisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TTLDuration parses TTL. Validate guarantees it parses.
func (c redisConfig) TTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.TTL)
	return d
}

type seedConfig struct {
	File string `yaml:"file"` // YAML fixture file, empty disables seeding
}

// Validate checks values that cannot be fixed up at use time
func (c *Config) Validate() error {
	switch c.Common.Store.Driver {
	case StoreDriverMemory, StoreDriverPostgres:
	default:
		return fmt.Errorf("unknown store driver %q - expected %q or %q",
			c.Common.Store.Driver, StoreDriverMemory, StoreDriverPostgres)
	}

	if c.Common.Http.Port <= 0 || c.Common.Http.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", c.Common.Http.Port)
	}

	durations := map[string]string{
		"http.shutdown_timeout":    c.Common.Http.ShutdownTimeout,
		"postgres.connect_timeout": c.Common.Postgres.ConnectTimeout,
		"redis.ttl":                c.Common.Redis.TTL,
	}
	for name, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s format: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if c.Common.Redis.Enabled && c.Common.Store.Driver == StoreDriverMemory {
		return fmt.Errorf("redis cache requires the %q store driver", StoreDriverPostgres)
	}

	return nil
}

// there should be a getter for each top level field in the config struct.
// these getters will panic if the config has not been loaded.

func Logger() logConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Log
}

func Http() httpConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Http
}

func Store() storeConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Store
}

func Postgres() postgresConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Postgres
}

func Redis() redisConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Redis
}

func Seed() seedConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Seed
}

// Get returns the full configuration
func Get() *Config {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded
}

func ApplyEnvOverrides() {
	if _loaded == nil {
		return
	}

	if level := os.Getenv("USERS_LOG_LEVEL"); level != "" {
		_loaded.Common.Log.Level = level
	}
	if format := os.Getenv("USERS_LOG_FORMAT"); format != "" {
		_loaded.Common.Log.Format = format
	}

	if httpHost := os.Getenv("USERS_HTTP_HOST"); httpHost != "" {
		_loaded.Common.Http.Host = httpHost
	}
	if httpPort := os.Getenv("USERS_HTTP_PORT"); httpPort != "" {
		if port, err := strconv.Atoi(httpPort); err == nil {
			_loaded.Common.Http.Port = port
		}
	}

	if driver := os.Getenv("USERS_STORE_DRIVER"); driver != "" {
		_loaded.Common.Store.Driver = driver
	}

	if dbHost := os.Getenv("USERS_DB_HOST"); dbHost != "" {
		_loaded.Common.Postgres.Host = dbHost
	}
	if dbPort := os.Getenv("USERS_DB_PORT"); dbPort != "" {
		if port, err := strconv.Atoi(dbPort); err == nil {
			_loaded.Common.Postgres.Port = port
		}
	}
	if dbUser := os.Getenv("USERS_DB_USER"); dbUser != "" {
		_loaded.Common.Postgres.User = dbUser
	}
	if dbPassword := os.Getenv("USERS_DB_PASSWORD"); dbPassword != "" {
		_loaded.Common.Postgres.Password = dbPassword
	}
	if dbName := os.Getenv("USERS_DB_NAME"); dbName != "" {
		_loaded.Common.Postgres.Database = dbName
	}
	if maxConns := os.Getenv("USERS_DB_MAX_OPEN_CONNECTIONS"); maxConns != "" {
		if n, err := strconv.Atoi(maxConns); err == nil {
			_loaded.Common.Postgres.MaxOpenConnections = n
		}
	}
	if connectTimeout := os.Getenv("USERS_DB_CONNECT_TIMEOUT"); connectTimeout != "" {
		_loaded.Common.Postgres.ConnectTimeout = connectTimeout
	}

	if redisEnabled := os.Getenv("USERS_REDIS_ENABLED"); redisEnabled != "" {
		if enabled, err := strconv.ParseBool(redisEnabled); err == nil {
			_loaded.Common.Redis.Enabled = enabled
		}
	}
	if redisHost := os.Getenv("USERS_REDIS_HOST"); redisHost != "" {
		_loaded.Common.Redis.Host = redisHost
	}
	if redisPort := os.Getenv("USERS_REDIS_PORT"); redisPort != "" {
		if port, err := strconv.Atoi(redisPort); err == nil {
			_loaded.Common.Redis.Port = port
		}
	}
	if redisPassword := os.Getenv("USERS_REDIS_PASSWORD"); redisPassword != "" {
		_loaded.Common.Redis.Password = redisPassword
	}
	if redisDatabase := os.Getenv("USERS_REDIS_DATABASE"); redisDatabase != "" {
		if db, err := strconv.Atoi(redisDatabase); err == nil {
			_loaded.Common.Redis.Database = db
		}
	}
	// TTL stays a string here; Validate rejects values that do not parse
	if redisTTL := os.Getenv("USERS_REDIS_TTL"); redisTTL != "" {
		_loaded.Common.Redis.TTL = redisTTL
	}

	if seedFile := os.Getenv("USERS_SEED_FILE"); seedFile != "" {
		_loaded.Common.Seed.File = seedFile
	}
}

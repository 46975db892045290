// Package config loads runtime configuration from weft.yaml and WEFT_*
// environment variables. Precedence: env > config file > defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults for a single-binary local deployment.
const (
	DefaultStoreBackend = "sqlite"
	DefaultStorePath    = "data/weft.db"
	DefaultSchemasDir   = "schemas"
	DefaultSpecsDir     = "specs"
	DefaultDataDir      = "data"
	DefaultListenAddr   = ":8432"
	DefaultLockTTL      = 2 * time.Minute
	DefaultLockWait     = 10 * time.Second
)

// Config holds everything the server and CLI need at startup.
type Config struct {
	StoreBackend string
	StorePath    string
	StoreDSN     string

	// Empty RedisAddr selects the process-local lock fallback.
	RedisAddr string
	RedisDB   int

	SchemasDir string
	SpecsDir   string
	DataDir    string
	ListenAddr string

	LockTTL  time.Duration
	LockWait time.Duration
}

// Load reads configuration. When configFile is empty, weft.yaml in the
// working directory is used if present; a missing implicit file is fine,
// a missing explicit one is an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("store.backend", DefaultStoreBackend)
	v.SetDefault("store.path", DefaultStorePath)
	v.SetDefault("store.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("schemas.dir", DefaultSchemasDir)
	v.SetDefault("specs.dir", DefaultSpecsDir)
	v.SetDefault("data.dir", DefaultDataDir)
	v.SetDefault("listen.addr", DefaultListenAddr)
	v.SetDefault("lock.ttl", DefaultLockTTL.String())
	v.SetDefault("lock.wait", DefaultLockWait.String())

	v.SetEnvPrefix("WEFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("weft")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading weft.yaml: %w", err)
			}
		}
	}

	cfg := &Config{
		StoreBackend: v.GetString("store.backend"),
		StorePath:    v.GetString("store.path"),
		StoreDSN:     v.GetString("store.dsn"),
		RedisAddr:    v.GetString("redis.addr"),
		RedisDB:      v.GetInt("redis.db"),
		SchemasDir:   v.GetString("schemas.dir"),
		SpecsDir:     v.GetString("specs.dir"),
		DataDir:      v.GetString("data.dir"),
		ListenAddr:   v.GetString("listen.addr"),
		LockTTL:      v.GetDuration("lock.ttl"),
		LockWait:     v.GetDuration("lock.wait"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case "sqlite", "mysql", "memory":
	default:
		return fmt.Errorf("store.backend: %q is invalid (valid values: sqlite, mysql, memory)", c.StoreBackend)
	}
	if c.StoreBackend == "mysql" && c.StoreDSN == "" {
		return errors.New("store.dsn: required when store.backend is mysql")
	}
	if c.LockTTL <= 0 {
		c.LockTTL = DefaultLockTTL
	}
	if c.LockWait <= 0 {
		c.LockWait = DefaultLockWait
	}
	return nil
}

package internal

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the runtime configuration consumed by the core services.
type Config struct {

	// MaxRecursiveDepth bounds process action recursion.
	MaxRecursiveDepth int

	// EncryptionSecret derives the field codec key. Required only when a
	// table marks fields encrypted.
	EncryptionSecret string

	// DataDir is where durable state (schema and connection store) lives.
	DataDir string

	SchemaCacheTTL      time.Duration
	SchemaCacheSize     int
	ConnectionCacheTTL  time.Duration
	ConnectionCacheSize int
	ValidatorCacheTTL   time.Duration
	ValidatorCacheSize  int
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() Config {
	return Config{
		MaxRecursiveDepth:   100,
		DataDir:             "data",
		SchemaCacheTTL:      time.Minute * 5,
		SchemaCacheSize:     100,
		ConnectionCacheTTL:  time.Minute * 5,
		ConnectionCacheSize: 100,
		ValidatorCacheTTL:   time.Minute * 10,
		ValidatorCacheSize:  250,
	}
}

// ConfigFromViper loads the configuration, applying defaults for anything
// unset.
func ConfigFromViper(v *viper.Viper) Config {
	cfg := DefaultConfig()
	if v.IsSet("max-recursive-depth") {
		cfg.MaxRecursiveDepth = v.GetInt("max-recursive-depth")
	}
	if v.IsSet("encryption-secret") {
		cfg.EncryptionSecret = v.GetString("encryption-secret")
	}
	if v.IsSet("data-dir") {
		cfg.DataDir = v.GetString("data-dir")
	}
	if v.IsSet("schema-cache-ttl") {
		cfg.SchemaCacheTTL = v.GetDuration("schema-cache-ttl")
	}
	if v.IsSet("schema-cache-size") {
		cfg.SchemaCacheSize = v.GetInt("schema-cache-size")
	}
	if v.IsSet("connection-cache-ttl") {
		cfg.ConnectionCacheTTL = v.GetDuration("connection-cache-ttl")
	}
	if v.IsSet("connection-cache-size") {
		cfg.ConnectionCacheSize = v.GetInt("connection-cache-size")
	}
	if v.IsSet("validator-cache-ttl") {
		cfg.ValidatorCacheTTL = v.GetDuration("validator-cache-ttl")
	}
	if v.IsSet("validator-cache-size") {
		cfg.ValidatorCacheSize = v.GetInt("validator-cache-size")
	}
	return cfg
}

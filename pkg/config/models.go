package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Store     StoreConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Address         string
	Auth            AuthConfig
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type AuthConfig struct {
	// When Enabled, the /ws upgrade requires a valid JWT. Identity
	// announcement still happens over the socket via user_online; the
	// token only gates the upgrade.
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwtSecret"`
}

type ConnectionLimitConfig struct {
	MaxPerIP int    `mapstructure:"maxPerIP"`
	Mode     string `mapstructure:"mode"` // "reject" or "cycle"
}

type TransportConfig struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
}

type StoreConfig struct {
	// Path is the Pebble data directory. Empty selects the in-memory
	// store (messages are lost on restart).
	Path          string        `mapstructure:"path"`
	AppendTimeout time.Duration `mapstructure:"appendTimeout"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

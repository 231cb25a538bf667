package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultServerName   = "msgstream"
	DefaultServerAddr   = ":9400"
	DefaultAdminAddr    = "127.0.0.1:9401"
	DefaultReadTimeout  = "2m"
	DefaultWriteTimeout = "15s"
)

var ErrInvalidConfig = errors.New("config: invalid")

// ServerConfig is the on-disk configuration of the echo server.
type ServerConfig struct {
	Name           string   `toml:"name"`
	Addr           string   `toml:"addr"`
	AdminAddr      string   `toml:"admin_addr"`
	HeaderWidth    int      `toml:"header_width"`
	MaxMessageSize uint64   `toml:"max_message_size"`
	ReadTimeout    string   `toml:"read_timeout"`
	WriteTimeout   string   `toml:"write_timeout"`
	MaxConns       int      `toml:"max_conns"`
	CorsOrigins    []string `toml:"cors_origins"`
	// AdminToken guards /stats when set.
	AdminToken string `toml:"admin_token"`
}

func LoadServerConfig(path string) (ServerConfig, error) {
	var cfg ServerConfig
	if err := loadToml(path, &cfg); err != nil {
		return ServerConfig{}, err
	}
	applyServerDefaults(&cfg)
	if err := ValidateServerConfig(cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// DefaultServerConfig returns the configuration used when no file is given.
func DefaultServerConfig() ServerConfig {
	var cfg ServerConfig
	applyServerDefaults(&cfg)
	return cfg
}

func applyServerDefaults(cfg *ServerConfig) {
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = DefaultServerName
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultServerAddr
	}
	if strings.TrimSpace(cfg.AdminAddr) == "" {
		cfg.AdminAddr = DefaultAdminAddr
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.HeaderWidth == 0 {
		cfg.HeaderWidth = defaultHeaderWidth(cfg.MaxMessageSize)
	}
	if strings.TrimSpace(cfg.ReadTimeout) == "" {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if strings.TrimSpace(cfg.WriteTimeout) == "" {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateServerConfig(cfg ServerConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("%w: server config missing name", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("%w: server config missing addr", ErrInvalidConfig)
	}
	if cfg.MaxConns < 0 {
		return fmt.Errorf("%w: max_conns must not be negative", ErrInvalidConfig)
	}
	if err := cfg.Framing().Validate(); err != nil {
		return fmt.Errorf("%w: framing: %w", ErrInvalidConfig, err)
	}
	if _, _, err := cfg.Timeouts(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

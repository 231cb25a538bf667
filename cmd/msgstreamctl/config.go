package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/msgstream/internal/client"
	"github.com/danmuck/msgstream/internal/config"
	"github.com/danmuck/msgstream/internal/msgstream"
)

type fileConfig struct {
	Addr               string            `toml:"addr"`
	HeaderWidth        int               `toml:"header_width"`
	MaxMessageSize     uint64            `toml:"max_message_size"`
	DialTimeout        string            `toml:"dial_timeout"`
	ReadTimeout        string            `toml:"read_timeout"`
	WriteTimeout       string            `toml:"write_timeout"`
	MaxConnectAttempts int               `toml:"max_connect_attempts"`
	Backoff            backoffFileConfig `toml:"backoff"`
}

type backoffFileConfig struct {
	InitialDelay string  `toml:"initial_delay"`
	Multiplier   float64 `toml:"multiplier"`
	MaxDelay     string  `toml:"max_delay"`
	Jitter       bool    `toml:"jitter"`
}

func loadClientConfig(path string) (client.Config, error) {
	cfg := client.DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return client.Config{}, fmt.Errorf("load client config: %w", err)
	}

	if meta.IsDefined("addr") {
		if addr := strings.TrimSpace(raw.Addr); addr != "" {
			cfg.Addr = addr
		}
	}

	if meta.IsDefined("max_message_size") {
		cfg.Framing.MaxMessageSize = raw.MaxMessageSize
		if !meta.IsDefined("header_width") {
			cfg.Framing.HeaderWidth = max(msgstream.HeaderWidthFor(raw.MaxMessageSize), msgstream.DefaultHeaderWidth)
		}
	}

	if meta.IsDefined("header_width") {
		cfg.Framing.HeaderWidth = raw.HeaderWidth
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"dial_timeout", raw.DialTimeout, &cfg.DialTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.WriteTimeout},
		{"backoff.initial_delay", raw.Backoff.InitialDelay, &cfg.Backoff.InitialDelay},
		{"backoff.max_delay", raw.Backoff.MaxDelay, &cfg.Backoff.MaxDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(strings.Split(d.key, ".")...) {
			continue
		}
		v, err := config.ParseTimeout(d.key, d.raw)
		if err != nil {
			return client.Config{}, err
		}
		*d.dst = v
	}

	if meta.IsDefined("max_connect_attempts") {
		cfg.MaxAttempts = raw.MaxConnectAttempts
	}

	if meta.IsDefined("backoff", "multiplier") {
		cfg.Backoff.Multiplier = raw.Backoff.Multiplier
	}

	if meta.IsDefined("backoff", "jitter") {
		cfg.Backoff.Jitter = raw.Backoff.Jitter
	}

	if err := cfg.Framing.Validate(); err != nil {
		return client.Config{}, fmt.Errorf("client config framing: %w", err)
	}
	return cfg, nil
}

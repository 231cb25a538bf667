package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/msgstream/internal/msgstream"
)

const defaultMaxMessageSize = msgstream.DefaultMaxMessageSize

func defaultHeaderWidth(maxMessageSize uint64) int {
	width := msgstream.HeaderWidthFor(maxMessageSize)
	if width < msgstream.DefaultHeaderWidth {
		width = msgstream.DefaultHeaderWidth
	}
	return width
}

// Framing converts the file settings into a stream configuration.
func (c ServerConfig) Framing() msgstream.Config {
	return msgstream.Config{
		HeaderWidth:    c.HeaderWidth,
		MaxMessageSize: c.MaxMessageSize,
	}
}

// Timeouts parses the read and write timeouts. "0" disables a timeout.
func (c ServerConfig) Timeouts() (time.Duration, time.Duration, error) {
	read, err := ParseTimeout("read_timeout", c.ReadTimeout)
	if err != nil {
		return 0, 0, err
	}
	write, err := ParseTimeout("write_timeout", c.WriteTimeout)
	if err != nil {
		return 0, 0, err
	}
	return read, write, nil
}

func ParseTimeout(field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("parse %s: negative duration %s", field, raw)
	}
	return d, nil
}

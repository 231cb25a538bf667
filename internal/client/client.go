package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/danmuck/msgstream/internal/msgstream"
	"github.com/rs/zerolog/log"
)

var (
	ErrMissingAddr   = errors.New("client: missing addr")
	ErrDialExhausted = errors.New("client: dial attempts exhausted")
)

// Config defines how a client reaches a framing server.
type Config struct {
	Addr         string
	Framing      msgstream.Config
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MaxAttempts bounds dial attempts; 0 means a single attempt.
	MaxAttempts int
	Backoff     BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:9400",
		Framing:      msgstream.DefaultConfig(),
		DialTimeout:  5 * time.Second,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		MaxAttempts:  5,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// Client is one framed connection. Like msgstream.Stream it does no locking.
type Client struct {
	cfg    Config
	tr     *msgstream.ConnTransport
	stream *msgstream.Stream
}

// Dial connects to cfg.Addr, retrying with backoff. Framing errors are not
// retried since they come from configuration.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, ErrMissingAddr
	}
	if err := cfg.Framing.Validate(); err != nil {
		return nil, fmt.Errorf("client framing: %w", err)
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	dialer := net.Dialer{Timeout: cfg.DialTimeout}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := dialer.DialContext(ctx, "tcp", cfg.Addr)
		if err == nil {
			return newClient(conn, cfg)
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		log.Warn().
			Str("addr", cfg.Addr).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Err(err).
			Msg("dial failed")
		if err := cfg.Backoff.sleep(ctx, attempt, rng); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrDialExhausted, attempts, lastErr)
}

// New wraps an established connection.
func New(conn net.Conn, cfg Config) (*Client, error) {
	return newClient(conn, cfg)
}

func newClient(conn net.Conn, cfg Config) (*Client, error) {
	tr := msgstream.NewConnTransport(conn, cfg.ReadTimeout, cfg.WriteTimeout)
	stream, err := msgstream.New(tr, cfg.Framing)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	log.Debug().
		Str("remote", conn.RemoteAddr().String()).
		Int("header_width", cfg.Framing.HeaderWidth).
		Msg("client connected")
	return &Client{cfg: cfg, tr: tr, stream: stream}, nil
}

func (c *Client) Send(p []byte) error { return c.stream.Send(p) }

// Receive returns the next message. The slice is reused by the next call.
func (c *Client) Receive() ([]byte, error) { return c.stream.Next() }

// RoundTrip sends p and waits for one reply frame.
func (c *Client) RoundTrip(p []byte) ([]byte, error) {
	if err := c.Send(p); err != nil {
		return nil, err
	}
	return c.Receive()
}

func (c *Client) Close() error { return c.tr.Close() }

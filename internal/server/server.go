package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/msgstream/internal/msgstream"
	"github.com/danmuck/msgstream/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidID     = errors.New("server: invalid id")
	ErrNotListening  = errors.New("server: not listening")
	ErrAlreadyListen = errors.New("server: already listening")
)

// Config defines one echo server instance.
type Config struct {
	ID           string
	Addr         string
	AdminAddr    string
	Framing      msgstream.Config
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MaxConns caps concurrent connections; 0 is unlimited.
	MaxConns    int
	CorsOrigins []string
	// AdminToken, when set, is required as a bearer token on /stats.
	AdminToken string
}

// Server accepts TCP connections and echoes every frame back on the same
// stream. Each connection owns its own msgstream.Stream.
type Server struct {
	cfg      Config
	appeared time.Time
	router   *gin.Engine

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup

	active   atomic.Int64
	accepted atomic.Uint64
	echoed   atomic.Uint64
}

// Appear validates cfg and builds the admin router.
func Appear(cfg Config) (*Server, error) {
	if strings.TrimSpace(cfg.ID) == "" {
		return nil, ErrInvalidID
	}
	if err := cfg.Framing.Validate(); err != nil {
		return nil, fmt.Errorf("server framing: %w", err)
	}
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger, cfg.ID))
	r.Use(observability.RequestMetricsMiddleware(cfg.ID))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:      cfg,
		appeared: time.Now(),
		router:   r,
	}
	s.RegisterRoutes()
	return s, nil
}

func (s *Server) ID() string { return s.cfg.ID }

func (s *Server) HTTPRouter() *gin.Engine { return s.router }

// Listen binds the stream listener. Serve must follow.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return ErrAlreadyListen
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound stream address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections until ctx is done, then closes open connections
// and waits for their handlers.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return ErrNotListening
	}

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	log.Info().
		Str("id", s.cfg.ID).
		Str("addr", ln.Addr().String()).
		Int("header_width", s.cfg.Framing.HeaderWidth).
		Uint64("max_message_size", s.cfg.Framing.MaxMessageSize).
		Msg("stream server started")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				log.Info().Str("id", s.cfg.ID).Msg("stream server stopped")
				return nil
			}
			log.Warn().Err(err).Msg("accept failed")
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if s.cfg.MaxConns > 0 && s.active.Load() >= int64(s.cfg.MaxConns) {
			log.Warn().
				Str("remote", conn.RemoteAddr().String()).
				Int("max_conns", s.cfg.MaxConns).
				Msg("connection rejected")
			_ = conn.Close()
			continue
		}
		s.accepted.Add(1)
		s.active.Add(1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.active.Add(-1)
			s.handleConn(ctx, conn)
		}()
	}
}

// ServeAdmin runs the admin HTTP API until ctx is done.
func (s *Server) ServeAdmin(ctx context.Context) error {
	if strings.TrimSpace(s.cfg.AdminAddr) == "" {
		<-ctx.Done()
		return nil
	}
	srv := &http.Server{Addr: s.cfg.AdminAddr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info().Str("id", s.cfg.ID).Str("addr", s.cfg.AdminAddr).Msg("admin api started")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	logger := log.With().
		Str("conn", uuid.NewString()).
		Str("remote", conn.RemoteAddr().String()).
		Logger()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	observability.ConnectionOpened(s.cfg.ID)
	tr := msgstream.NewConnTransport(conn, s.cfg.ReadTimeout, s.cfg.WriteTimeout)
	stream, err := msgstream.New(tr, s.cfg.Framing)
	if err != nil {
		s.closed(logger, err, 0)
		return
	}
	logger.Debug().Msg("connection opened")

	frames := 0
	for {
		msg, err := stream.Next()
		observability.RecordFrame(s.cfg.ID, observability.DirectionIn, msgstream.CodeOf(err).Name(), len(msg))
		if err != nil {
			s.closed(logger, err, frames)
			return
		}
		err = stream.Send(msg)
		observability.RecordFrame(s.cfg.ID, observability.DirectionOut, msgstream.CodeOf(err).Name(), len(msg))
		if err != nil {
			s.closed(logger, err, frames)
			return
		}
		frames++
		s.echoed.Add(1)
	}
}

// closed logs and counts the reason a connection ended. Eof is a clean close;
// every other code leaves the stream unusable.
func (s *Server) closed(logger zerolog.Logger, err error, frames int) {
	code := msgstream.CodeOf(err)
	observability.ConnectionClosed(s.cfg.ID, code.Name())
	event := logger.Warn().Err(err)
	if code == msgstream.Eof {
		event = logger.Debug()
	}
	event.
		Str("code", code.Name()).
		Int("frames", frames).
		Msg("connection closed")
}

// Stats is a point-in-time view of server counters.
type Stats struct {
	ID                string `json:"id"`
	ActiveConnections int64  `json:"active_connections"`
	AcceptedTotal     uint64 `json:"accepted_total"`
	EchoedFrames      uint64 `json:"echoed_frames"`
	HeaderWidth       int    `json:"header_width"`
	MaxMessageSize    uint64 `json:"max_message_size"`
	Uptime            string `json:"uptime"`
}

func (s *Server) Stats() Stats {
	return Stats{
		ID:                s.cfg.ID,
		ActiveConnections: s.active.Load(),
		AcceptedTotal:     s.accepted.Load(),
		EchoedFrames:      s.echoed.Load(),
		HeaderWidth:       s.cfg.Framing.HeaderWidth,
		MaxMessageSize:    s.cfg.Framing.MaxMessageSize,
		Uptime:            time.Since(s.appeared).String(),
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}

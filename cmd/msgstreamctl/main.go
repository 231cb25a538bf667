package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/danmuck/msgstream/internal/client"
	"github.com/danmuck/msgstream/internal/config"
	"github.com/danmuck/msgstream/internal/msgstream"
	"github.com/danmuck/msgstream/internal/observability"
	"github.com/danmuck/msgstream/internal/server"
	"github.com/rs/zerolog/log"
)

const usage = `usage: msgstreamctl <command> [flags]

commands:
  serve         run the echo server and admin API
  send          send messages and print the echoed replies
  codes         print the error code table
  header-width  print the smallest header width for a max message size
  init-config   write a server or client config template
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	observability.InitLogger("msgstreamctl")

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "send":
		err = runSend(os.Args[2:], os.Stdin, os.Stdout)
	case "codes":
		err = runCodes(os.Stdout)
	case "header-width":
		err = runHeaderWidth(os.Args[2:], os.Stdout)
	case "init-config":
		err = runInitConfig(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "msgstreamctl: %v\n", err)
		os.Exit(1)
	}
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	path := fs.String("config", "", "server config path (defaults built in)")
	_ = fs.Parse(args)

	cfg := config.DefaultServerConfig()
	if *path != "" {
		loaded, err := config.LoadServerConfig(*path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	readTimeout, writeTimeout, err := cfg.Timeouts()
	if err != nil {
		return err
	}

	srv, err := server.Appear(server.Config{
		ID:           cfg.Name,
		Addr:         cfg.Addr,
		AdminAddr:    cfg.AdminAddr,
		Framing:      cfg.Framing(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		MaxConns:     cfg.MaxConns,
		CorsOrigins:  cfg.CorsOrigins,
		AdminToken:   cfg.AdminToken,
	})
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() { errCh <- srv.ServeAdmin(ctx) }()
	go func() { errCh <- srv.Serve(ctx) }()

	var firstErr error
	for range 2 {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
			stop()
		}
	}
	return firstErr
}

func runSend(args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	path := fs.String("config", "", "client config path (defaults built in)")
	addr := fs.String("addr", "", "server address override")
	_ = fs.Parse(args)

	cfg := client.DefaultConfig()
	if *path != "" {
		loaded, err := loadClientConfig(*path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.Addr = strings.TrimSpace(*addr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	return sendMessages(c, fs.Args(), in, out)
}

type roundTripper interface {
	RoundTrip(p []byte) ([]byte, error)
}

// sendMessages sends each argument, or each line of in when there are none,
// and prints every reply on its own line.
func sendMessages(rt roundTripper, msgs []string, in io.Reader, out io.Writer) error {
	send := func(msg string) error {
		reply, err := rt.RoundTrip([]byte(msg))
		if err != nil {
			return fmt.Errorf("send %q: %w", msg, err)
		}
		_, err = fmt.Fprintf(out, "%s\n", reply)
		return err
	}

	if len(msgs) > 0 {
		for _, msg := range msgs {
			if err := send(msg); err != nil {
				return err
			}
		}
		return nil
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), msgstream.DefaultMaxMessageSize)
	sent := 0
	for scanner.Scan() {
		if err := send(scanner.Text()); err != nil {
			return err
		}
		sent++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	log.Debug().Int("messages", sent).Msg("stdin drained")
	return nil
}

func runCodes(out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VALUE\tNAME\tMESSAGE")
	for _, info := range server.CodeTable() {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", info.Value, info.Name, info.Message)
	}
	return tw.Flush()
}

func runHeaderWidth(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("header-width", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	size := fs.String("size", "", "max message size in bytes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*size) == "" {
		return errors.New("header-width: -size is required")
	}
	n, err := strconv.ParseUint(strings.TrimSpace(*size), 10, 64)
	if err != nil {
		return fmt.Errorf("header-width: parse size: %w", err)
	}
	_, err = fmt.Fprintln(out, msgstream.HeaderWidthFor(n))
	return err
}

func runInitConfig(args []string) error {
	fs := flag.NewFlagSet("init-config", flag.ExitOnError)
	kind := fs.String("kind", "server", "config kind: server|client")
	output := fs.String("output", "", "output path for config template")
	force := fs.Bool("force", false, "overwrite existing config file")
	_ = fs.Parse(args)

	target := *output
	if target == "" {
		target = *kind + ".toml"
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		return err
	}
	log.Info().Str("kind", *kind).Str("path", target).Msg("wrote config template")
	return nil
}

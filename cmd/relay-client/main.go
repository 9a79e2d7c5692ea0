// Command relay-client connects to a relay broker, subscribes to topics and
// prints what arrives. With -interactive it also opens a command prompt for
// subscribing and publishing.
//
// Usage:
//
//	relay-client [flags]
//
// Examples:
//
//	# Follow two topics on a local broker
//	relay-client -host localhost -sub sensors/temp -sub sensors/humidity
//
//	# Find a broker on the LAN and open a prompt
//	relay-client -discover -interactive
//
//	# TLS with a private CA, capturing frames for relay-log
//	relay-client -host broker.lan -tls-domain broker.lan -ca-file ca.pem -protocol-log session.rlog
//
// Interactive Commands:
//
//	sub <topic> [topic...] - Subscribe and print messages
//	pub <topic> <message>  - Publish a message
//	topics                 - List routed topics
//	status                 - Show session status
//	quit                   - Exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/relaymq/relay-go/cmd/relay-client/interactive"
	"github.com/relaymq/relay-go/pkg/client"
	"github.com/relaymq/relay-go/pkg/discovery"
	"github.com/relaymq/relay-go/pkg/log"
	"github.com/relaymq/relay-go/pkg/session"
	"github.com/relaymq/relay-go/pkg/subscription"
)

// topicList collects a repeatable string flag.
type topicList []string

func (t *topicList) String() string { return strings.Join(*t, ",") }

func (t *topicList) Set(v string) error {
	if v == "" {
		return errors.New("empty topic")
	}
	*t = append(*t, v)
	return nil
}

// Options holds the command-line flags.
type Options struct {
	ConfigFile      string
	Host            string
	Port            int
	TLSDomain       string
	CAFile          string
	Insecure        bool
	Push            bool
	Pull            bool
	MaxMessageTotal int
	LogLevel        string
	ProtocolLog     string
	Discover        bool
	Interface       string
	Interactive     bool
	Subscribe       topicList
}

var opts Options

func init() {
	flag.StringVar(&opts.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&opts.Host, "host", "localhost", "Broker host")
	flag.IntVar(&opts.Port, "port", client.DefaultPort, "Broker port")
	flag.StringVar(&opts.TLSDomain, "tls-domain", "", "Upgrade to TLS and verify the broker as this name")
	flag.StringVar(&opts.CAFile, "ca-file", "", "PEM file of extra trusted CA certificates")
	flag.BoolVar(&opts.Insecure, "insecure", false, "Skip TLS certificate verification")
	flag.BoolVar(&opts.Push, "push", true, "Offer push delivery")
	flag.BoolVar(&opts.Pull, "pull", false, "Offer pull delivery")
	flag.IntVar(&opts.MaxMessageTotal, "max-message-total", 0, "Per-subscription queue length (0 for default)")
	flag.StringVar(&opts.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&opts.ProtocolLog, "protocol-log", "", "Write a frame capture to this .rlog file")
	flag.BoolVar(&opts.Discover, "discover", false, "Find the broker via mDNS instead of -host/-port")
	flag.StringVar(&opts.Interface, "interface", "", "Network interface for -discover")
	flag.BoolVar(&opts.Interactive, "interactive", false, "Enable interactive command mode")
	flag.Var(&opts.Subscribe, "sub", "Topic to subscribe to (repeatable)")
}

func main() {
	flag.Parse()

	level, err := parseLevel(opts.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	logOut := &syncWriter{w: os.Stderr}
	logger := newLogger(logOut, level)

	if err := run(logger, logOut, level); err != nil {
		logger.Error("relay-client failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, logOut *syncWriter, level slog.Level) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := buildConfig(ctx, logger)
	if err != nil {
		return err
	}
	logger.Info("connecting", "broker", cfg)

	builder := cfg.Builder().SetLogger(logger)

	if opts.ProtocolLog != "" {
		fileLogger, err := log.NewFileLogger(opts.ProtocolLog)
		if err != nil {
			return fmt.Errorf("open protocol log: %w", err)
		}
		defer fileLogger.Close()

		var plog log.Logger = fileLogger
		if level <= slog.LevelDebug {
			plog = log.NewMultiLogger(fileLogger, log.NewSlogAdapter(logger))
		}
		builder.SetProtocolLogger(plog)
		logger.Info("protocol logging enabled", "path", opts.ProtocolLog)
	} else if level <= slog.LevelDebug {
		builder.SetProtocolLogger(log.NewSlogAdapter(logger))
	}

	c, err := builder.Connect(ctx)
	if err != nil {
		return err
	}
	info := c.ServerInfo()
	logger.Info("connected",
		"conn", c.ConnectionID(),
		"remote", c.RemoteAddr(),
		"transport", c.TransportKind(),
		"mode", c.Mode(),
		"broker_version", info.Version,
		"max_message_length", info.MaxMessageLength)

	g, gctx := errgroup.WithContext(ctx)

	var out io.Writer = os.Stdout
	var outMu sync.Mutex
	watch := func(sub *subscription.Subscription) {
		g.Go(func() error {
			err := sub.HandleString(gctx, func(msg string) {
				outMu.Lock()
				defer outMu.Unlock()
				fmt.Fprintf(out, "[%s] %s\n", sub.Topic(), msg)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		select {
		case <-c.Done():
			if err := c.Err(); err != nil && !errors.Is(err, session.ErrClientClosed) {
				return fmt.Errorf("session ended: %w", err)
			}
			return nil
		case <-gctx.Done():
			logger.Info("shutting down")
			if err := c.Close(); err != nil && !errors.Is(err, session.ErrClientClosed) {
				logger.Warn("close failed", "error", err)
			}
			return nil
		}
	})

	if opts.Interactive {
		shell, err := interactive.New(c, watch)
		if err != nil {
			_ = c.Close()
			return err
		}
		out = shell.Stdout()
		logOut.set(shell.Stdout())
		go shell.Run(gctx, cancel)
	}

	for _, topic := range opts.Subscribe {
		sub, err := c.Subscribe(gctx, topic)
		if err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		logger.Info("subscribed", "topic", topic)
		watch(sub)
	}

	err = g.Wait()
	stats := c.Stats()
	logger.Info("session closed",
		"frames_in", stats.FramesIn,
		"frames_out", stats.FramesOut,
		"delivered", stats.Delivered,
		"dropped", stats.Dropped)
	return err
}

// buildConfig merges the config file, discovery and explicitly set flags.
func buildConfig(ctx context.Context, logger *slog.Logger) (*client.Config, error) {
	cfg := &client.Config{Port: client.DefaultPort}
	if opts.ConfigFile != "" {
		loaded, err := client.LoadConfig(opts.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	fromFile := opts.ConfigFile != ""

	if opts.Discover && !set["host"] {
		browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{
			Interface:     opts.Interface,
			BrowseTimeout: discovery.BrowseTimeout,
		})
		defer browser.Stop()

		logger.Info("browsing for brokers", "service", discovery.ServiceType)
		svc, err := browser.Find(ctx)
		if err != nil {
			return nil, fmt.Errorf("discover broker: %w", err)
		}
		logger.Info("found broker",
			"instance", svc.InstanceName,
			"addr", svc.Addr(),
			"capabilities", svc.Capabilities)
		cfg.Host = svc.DialHost()
		cfg.Port = int(svc.Port)
	} else {
		if set["host"] || !fromFile {
			cfg.Host = opts.Host
		}
		if set["port"] || !fromFile {
			cfg.Port = opts.Port
		}
	}

	if set["tls-domain"] || !fromFile {
		cfg.TLSDomain = opts.TLSDomain
	}
	if set["ca-file"] || !fromFile {
		cfg.CAFile = opts.CAFile
	}
	if set["insecure"] || !fromFile {
		cfg.InsecureSkipVerify = opts.Insecure
	}
	if set["push"] || !fromFile {
		cfg.Push = opts.Push
	}
	if set["pull"] || !fromFile {
		cfg.Pull = opts.Pull
	}
	if set["max-message-total"] || !fromFile {
		cfg.MaxMessageTotal = opts.MaxMessageTotal
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q (use: debug, info, warn, error)", s)
	}
	return level, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// syncWriter lets log output be redirected through readline once the
// shell starts.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *syncWriter) set(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

// Package interactive provides the interactive command-line interface
// for relay-client.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/relaymq/relay-go/pkg/client"
	"github.com/relaymq/relay-go/pkg/session"
	"github.com/relaymq/relay-go/pkg/subscription"
)

// Client is the part of *client.Client the shell drives.
type Client interface {
	Subscribe(ctx context.Context, topic string) (*subscription.Subscription, error)
	PublishString(ctx context.Context, topic, payload string) error
	Topics() []string
	Stats() session.Stats
	Mode() session.Mode
	ServerInfo() client.ServerInfo
	ConnectionID() string
	RemoteAddr() net.Addr
}

// WatchFunc takes ownership of a new subscription, typically by starting
// a goroutine that prints its messages.
type WatchFunc func(sub *subscription.Subscription)

// Shell reads commands from a readline prompt and applies them to a client.
type Shell struct {
	client  Client
	watch   WatchFunc
	rl      *readline.Instance
	out     io.Writer
	started time.Time
}

// New creates a shell with its own readline instance.
func New(c Client, watch WatchFunc) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "relay> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	s := newShell(c, watch, rl.Stdout())
	s.rl = rl
	return s, nil
}

func newShell(c Client, watch WatchFunc, out io.Writer) *Shell {
	return &Shell{
		client:  c,
		watch:   watch,
		out:     out,
		started: time.Now(),
	}
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (s *Shell) Stdout() io.Writer {
	return s.out
}

// Run starts the interactive command loop. It calls cancel when the user
// quits or input ends.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}

		if s.Exec(ctx, line) {
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Exec runs one command line and reports whether the user asked to quit.
func (s *Shell) Exec(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
	case "sub", "subscribe":
		s.cmdSubscribe(ctx, args)
	case "pub", "publish":
		s.cmdPublish(ctx, line)
	case "topics", "ls":
		s.cmdTopics()
	case "status":
		s.cmdStatus()
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
Relay Client Commands:
  sub <topic> [topic...]  - Subscribe and print incoming messages
  pub <topic> <message>   - Publish a message (rest of line is the payload)
  topics                  - List routed topics
  status                  - Show session status
  help                    - Show this help
  quit                    - Exit`)
}

func (s *Shell) cmdSubscribe(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "Usage: sub <topic> [topic...]")
		return
	}
	for _, topic := range args {
		sub, err := s.client.Subscribe(ctx, topic)
		if err != nil {
			fmt.Fprintf(s.out, "Subscribe %s failed: %v\n", topic, err)
			continue
		}
		fmt.Fprintf(s.out, "Subscribed to %s\n", topic)
		if s.watch != nil {
			s.watch(sub)
		}
	}
}

// cmdPublish takes the raw line so the payload keeps its spacing.
func (s *Shell) cmdPublish(ctx context.Context, line string) {
	_, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	topic, payload, ok := strings.Cut(strings.TrimLeft(rest, " "), " ")
	if topic == "" {
		fmt.Fprintln(s.out, "Usage: pub <topic> <message>")
		return
	}
	if !ok {
		payload = ""
	}
	if err := s.client.PublishString(ctx, topic, payload); err != nil {
		fmt.Fprintf(s.out, "Publish failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Published %d bytes to %s\n", len(payload), topic)
}

func (s *Shell) cmdTopics() {
	topics := s.client.Topics()
	if len(topics) == 0 {
		fmt.Fprintln(s.out, "No subscriptions")
		return
	}
	for _, t := range topics {
		fmt.Fprintf(s.out, "  %s\n", t)
	}
}

func (s *Shell) cmdStatus() {
	info := s.client.ServerInfo()
	stats := s.client.Stats()

	fmt.Fprintf(s.out, "Connection: %s\n", s.client.ConnectionID())
	if addr := s.client.RemoteAddr(); addr != nil {
		fmt.Fprintf(s.out, "Broker:     %s (version %d, %s)\n", addr, info.Version, info.Capabilities)
	}
	fmt.Fprintf(s.out, "Mode:       %s\n", s.client.Mode())
	fmt.Fprintf(s.out, "Max length: %d\n", info.MaxMessageLength)
	fmt.Fprintf(s.out, "Uptime:     %s\n", time.Since(s.started).Round(time.Second))
	fmt.Fprintf(s.out, "Topics:     %d\n", len(s.client.Topics()))
	fmt.Fprintf(s.out, "Frames:     %d in, %d out\n", stats.FramesIn, stats.FramesOut)
	fmt.Fprintf(s.out, "Messages:   %d delivered, %d dropped\n", stats.Delivered, stats.Dropped)
	fmt.Fprintf(s.out, "Keepalive:  %d pings sent, %d missed\n", stats.PingsSent, stats.MissedPongs)
}

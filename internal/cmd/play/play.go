// Package play runs the terminal game client.
package play

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	entrypoint "github.com/textadventure/web/internal/platform/cmd"
	"github.com/textadventure/web/internal/services/gameclient"
)

// Config holds the play command configuration.
type Config struct {
	BaseURL      string        `env:"ADVENTURE_PLAY_BASE_URL"     envDefault:"http://localhost:8080"`
	Username     string        `env:"ADVENTURE_PLAY_USERNAME"`
	Password     string        `env:"ADVENTURE_PLAY_PASSWORD"`
	Guest        bool          `env:"ADVENTURE_PLAY_GUEST"        envDefault:"false"`
	GuestID      string        `env:"ADVENTURE_PLAY_GUEST_ID"`
	GuestSecret  string        `env:"ADVENTURE_PLAY_GUEST_SECRET"`
	GameSession  string        `env:"ADVENTURE_PLAY_SESSION"`
	MaxBackoff   time.Duration `env:"ADVENTURE_PLAY_MAX_BACKOFF"  envDefault:"30s"`
	PingInterval time.Duration `env:"ADVENTURE_PLAY_PING_INTERVAL" envDefault:"30s"`
	// DrainTimeout bounds how long queued commands may wait for delivery
	// once input ends.
	DrainTimeout time.Duration `env:"ADVENTURE_PLAY_DRAIN_TIMEOUT" envDefault:"5s"`
}

const defaultDrainTimeout = 5 * time.Second

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "web server base URL")
	fs.StringVar(&cfg.Username, "username", cfg.Username, "account username or email")
	fs.BoolVar(&cfg.Guest, "guest", cfg.Guest, "play as a guest")
	fs.StringVar(&cfg.GameSession, "session", cfg.GameSession, "game session to join")
	fs.DurationVar(&cfg.MaxBackoff, "max-backoff", cfg.MaxBackoff, "maximum reconnect delay")
	fs.DurationVar(&cfg.DrainTimeout, "drain-timeout", cfg.DrainTimeout, "how long to wait for queued commands after input ends")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if !cfg.Guest && (cfg.Username == "" || cfg.Password == "") {
		return Config{}, errors.New("username and ADVENTURE_PLAY_PASSWORD are required unless -guest is set")
	}
	return cfg, nil
}

// IO groups the terminal streams.
type IO struct {
	In  io.Reader
	Out io.Writer
}

// Run authenticates, connects, and relays terminal lines as game commands
// until input ends and queued commands are delivered, or ctx is cancelled.
func Run(ctx context.Context, cfg Config, stdio IO) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServicePlay, func(ctx context.Context) error {
		sess, err := authenticate(ctx, cfg)
		if err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}
		log.Printf("signed in user_id=%q guest=%t", sess.Identity.ID, sess.Identity.IsGuest)
		if sess.GuestID != "" {
			fmt.Fprintf(stdio.Out, "guest id: %s\nguest secret: %s\n", sess.GuestID, sess.GuestSecret)
		}

		client, err := gameclient.New(gameclient.Config{
			URL:          sess.PlayURL(cfg.GameSession),
			Dialer:       sess.Dialer(),
			MaxBackoff:   cfg.MaxBackoff,
			PingInterval: cfg.PingInterval,
			OnState: func(s gameclient.State) {
				log.Printf("connection state=%s", s)
			},
		})
		if err != nil {
			return fmt.Errorf("init game client: %w", err)
		}
		client.Subscribe(func(f gameclient.Frame) { printFrame(stdio.Out, f) })

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			readCommands(stdio.In, client)
			drainQueued(ctx, client, cfg.DrainTimeout)
			cancel()
		}()

		err = client.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}

func authenticate(ctx context.Context, cfg Config) (*gameclient.Session, error) {
	if cfg.Guest {
		return gameclient.Guest(ctx, nil, cfg.BaseURL, cfg.GuestID, cfg.GuestSecret)
	}
	return gameclient.Login(ctx, nil, cfg.BaseURL, cfg.Username, cfg.Password)
}

func readCommands(in io.Reader, client *gameclient.Client) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		frame, err := gameclient.NewFrame(gameclient.TypeGame, line)
		if err != nil {
			log.Printf("encode command: %v", err)
			continue
		}
		client.Send(frame)
	}
}

// drainQueued waits for commands typed before end of input to reach the server.
func drainQueued(ctx context.Context, client *gameclient.Client, timeout time.Duration) {
	if timeout <= 0 {
		timeout = defaultDrainTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Drain(ctx); err != nil {
		log.Printf("input closed with %d commands unsent: %v", client.Pending(), err)
	}
}

func printFrame(out io.Writer, f gameclient.Frame) {
	switch f.Type {
	case gameclient.TypeGame:
		fmt.Fprintln(out, f.Text())
	case gameclient.TypeChat:
		fmt.Fprintf(out, "[chat] %s\n", f.Text())
	case gameclient.TypeError:
		fmt.Fprintf(out, "[error] %s\n", f.Text())
	}
}

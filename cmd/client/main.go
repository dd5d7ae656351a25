package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/omochice/toy-socket-arena/internal/config"
	"github.com/omochice/toy-socket-arena/internal/console"
	"github.com/omochice/toy-socket-arena/internal/input"
	"github.com/omochice/toy-socket-arena/internal/logging"
	"github.com/omochice/toy-socket-arena/internal/metrics"
	"github.com/omochice/toy-socket-arena/internal/session"
	"github.com/omochice/toy-socket-arena/internal/transport"
	"github.com/omochice/toy-socket-arena/internal/transport/tcp"
	"github.com/omochice/toy-socket-arena/internal/transport/ws"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		address     string
		transportID string
		playerID    string
		duration    time.Duration
		headless    bool
		logFile     string
		debug       bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "arena-client",
		Short: "Join an arena server",
		Long: `Join an arena server, stream your position and watch the world.

Move with WASD or the arrow keys, press Enter to chat and Esc to leave.
In headless mode updates are printed as lines and stdin lines are sent
as chat ("quit" leaves).

Settings come from ARENA_* environment variables; flags override them.

Examples:
  arena-client
  arena-client --server 10.0.0.5:8080 --duration 30s
  arena-client --transport ws --server ws://127.0.0.1:8080/ws --headless`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("server") {
				cfg.Address = address
			}
			if flags.Changed("transport") {
				cfg.Transport = transportID
			}
			if flags.Changed("id") {
				cfg.PlayerID = playerID
			}
			if flags.Changed("duration") {
				cfg.SessionDuration = duration
			}
			if flags.Changed("headless") {
				cfg.Headless = headless
			}
			if flags.Changed("log-file") {
				cfg.LogFile = logFile
			}
			if flags.Changed("debug") {
				cfg.Debug = debug
			}
			if flags.Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runClient(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&address, "server", "s", "", "Server address (host:port, or ws://host:port/path for ws)")
	cmd.Flags().StringVarP(&transportID, "transport", "t", "", "Transport: tcp or ws")
	cmd.Flags().StringVar(&playerID, "id", "", "Player id (random if empty)")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Session length")
	cmd.Flags().BoolVar(&headless, "headless", false, "Print updates as lines instead of drawing the screen")
	cmd.Flags().StringVar(&logFile, "log-file", "", "Log file (rotated)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	return cmd
}

func runClient(parent context.Context, cfg config.Client) error {
	log, closer := logging.New(logging.Options{File: cfg.LogFile, Debug: cfg.Debug})
	defer closer.Close()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, reg, log)
		defer srv.Shutdown(context.Background())
	}

	// The screen starts only once the connection is up so a connect
	// failure reaches the terminal untouched.
	connected := make(chan struct{})
	dialer := notifyOnConnect(dialerFor(cfg), connected)

	keys := input.NewQueue(16)
	opts := []session.Option{session.WithLogger(log), session.WithMetrics(m)}
	if !cfg.Headless {
		opts = append(opts, session.WithInput(keys))
	}
	sess := session.New(session.FromClient(cfg), opts...)

	uiCtx, stopUI := context.WithCancel(ctx)
	uiDone := make(chan struct{})
	if cfg.Headless {
		console.NewPrinter(os.Stdout).Register(sess.Dispatcher())
		go readChat(os.Stdin, sess, log)
		close(uiDone)
	} else {
		go func() {
			defer close(uiDone)
			select {
			case <-connected:
			case <-uiCtx.Done():
				return
			}
			runScreen(uiCtx, sess, keys, log)
		}()
	}

	err := sess.Run(ctx, dialer)
	stopUI()
	<-uiDone

	if err != nil && !errors.Is(err, session.ErrConnectFailed) {
		log.Errorw("session ended with an error", "error", err)
	}
	return err
}

func dialerFor(cfg config.Client) transport.Dialer {
	if cfg.Transport == config.TransportWS {
		return ws.Dialer{Timeout: cfg.DialTimeout}
	}
	return tcp.Dialer{Timeout: cfg.DialTimeout}
}

func notifyOnConnect(d transport.Dialer, connected chan<- struct{}) transport.Dialer {
	return transport.DialerFunc(func(ctx context.Context, address string) (transport.Conn, error) {
		conn, err := d.Dial(ctx, address)
		if err == nil {
			close(connected)
		}
		return conn, err
	})
}

// runScreen takes over the terminal until ctx is done. A terminal that
// cannot be opened ends the session.
func runScreen(ctx context.Context, sess *session.Session, keys *input.Queue, log *zap.SugaredLogger) {
	screen, err := tcell.NewScreen()
	if err == nil {
		err = screen.Init()
	}
	if err != nil {
		log.Errorw("failed to open terminal", "error", err)
		sess.Stop()
		return
	}
	defer screen.Fini()

	view := console.NewScreen(screen, keys)
	view.Register(sess.Dispatcher())
	view.Run(ctx, sess)
}

func serveMetrics(addr string, reg *prometheus.Registry, log *zap.SugaredLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warnw("metrics server stopped", "error", err)
		}
	}()
	log.Infow("serving metrics", "addr", addr)
	return srv
}

// readChat sends each stdin line as chat until "quit" or EOF.
func readChat(r io.Reader, sess *session.Session, log *zap.SugaredLogger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "quit" || text == "exit" {
			sess.Stop()
			return
		}
		if err := sess.SendChat(text); err != nil {
			log.Warnw("chat not sent", "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warnw("error reading input", "error", err)
	}
}

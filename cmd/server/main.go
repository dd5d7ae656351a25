package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/omochice/toy-socket-arena/internal/config"
	"github.com/omochice/toy-socket-arena/internal/logging"
	"github.com/omochice/toy-socket-arena/internal/server"
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
		tick        time.Duration
		weather     string
		temperature float64
		logFile     string
		debug       bool
	)

	cmd := &cobra.Command{
		Use:   "arena-server",
		Short: "Run a sandbox arena server",
		Long: `Run a sandbox arena server for local play.

TCP and WebSocket clients are accepted on the same port. The server
relays chat, announces joins and leaves and broadcasts the world state
every tick.

Examples:
  arena-server
  arena-server --addr :9000 --tick 50ms --weather rain`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServer()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.Address = address
			}
			if flags.Changed("tick") {
				cfg.TickInterval = tick
			}
			if flags.Changed("weather") {
				cfg.Weather = weather
			}
			if flags.Changed("temperature") {
				cfg.Temperature = temperature
			}
			if flags.Changed("log-file") {
				cfg.LogFile = logFile
			}
			if flags.Changed("debug") {
				cfg.Debug = debug
			}
			if cfg.TickInterval <= 0 {
				return fmt.Errorf("tick interval must be positive, got %s", cfg.TickInterval)
			}
			return runServer(cfg)
		},
	}

	cmd.Flags().StringVarP(&address, "addr", "a", "", "Address to listen on for TCP and WebSocket (e.g. :8080)")
	cmd.Flags().DurationVar(&tick, "tick", 0, "World broadcast interval")
	cmd.Flags().StringVar(&weather, "weather", "", "Weather condition to report")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Temperature to report")
	cmd.Flags().StringVar(&logFile, "log-file", "", "Log file (stderr if empty)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	return cmd
}

func runServer(cfg config.Server) error {
	log, closer := logging.New(logging.Options{File: cfg.LogFile, Debug: cfg.Debug})
	defer closer.Close()

	srv := server.New(cfg, server.WithLogger(log))
	if err := srv.Listen(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		if !errors.Is(err, server.ErrServerClosed) {
			return err
		}
	case sig := <-sigChan:
		log.Infow("shutting down", "signal", sig.String())
		srv.Stop()
	}

	log.Infow("server stopped")
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vladimirruppel/roomchat/internal/client"
	"github.com/vladimirruppel/roomchat/internal/config"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		serverURL  string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:          "roomchat",
		Short:        "Terminal chat client",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("server") {
				cfg.ServerURL = serverURL
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			return run(cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config")
	cmd.Flags().StringVar(&serverURL, "server", config.DefaultServerURL, "chat server base URL")
	cmd.Flags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	return cmd
}

func run(cfg config.Config) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	console := client.NewConsole(os.Stdin, os.Stdout, logger)
	c, err := client.New(cfg,
		client.WithLogger(logger),
		client.WithOnMessage(console.PrintMessage),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.StartDirectory(ctx)

	// Консоль читает stdin в своей горутине. Выход из меню завершает процесс,
	// сигнал завершает его через graceful shutdown.
	go func() {
		code := 0
		if err := console.Run(ctx, c); err != nil {
			logger.Error().Err(err).Msg("console stopped")
			code = 1
		}
		cancel()
		c.Close()
		os.Exit(code)
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"client": func(context.Context) error {
				cancel()
				c.Close()
				return nil
			},
		},
	)
	os.Exit(<-wait)
	return nil
}

// newLogger пишет человекочитаемые логи в stderr, чтобы не мешать консоли.
func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("parse log level %q: %w", level, err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(lvl).
		With().Timestamp().Logger(), nil
}

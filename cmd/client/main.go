package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go-event-stream/internal/client"
	"go-event-stream/internal/infrastructure/config"
	"go-event-stream/internal/infrastructure/logger"
	"go-event-stream/internal/protocol/frame"
)

var (
	configPath     string
	reconnectDelay time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "sse-client [url]",
	Short:         "Print events from an SSE stream, reconnecting until the server shuts down",
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          consumeRunE,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.Flags().DurationVar(&reconnectDelay, "reconnect-delay", 0, "wait between connection attempts, overrides the config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func consumeRunE(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	url := cfg.Client.URL
	if len(args) == 1 {
		url = args[0]
	}
	if reconnectDelay > 0 {
		cfg.Client.ReconnectDelay = reconnectDelay
	}

	log := logger.NewLogrusLogger(&cfg.Log)
	c := client.New(url,
		client.WithReconnectDelay(cfg.Client.ReconnectDelay),
		client.WithTimeouts(cfg.Client.ConnectTimeout, cfg.Client.RequestTimeout),
		client.WithLogger(log),
	)

	// The first signal lets the current connection finish, the second one
	// aborts it.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigc := make(chan os.Signal, 2)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		<-sigc
		log.Info("interrupted, closing client")
		_ = c.Close()
		<-sigc
		cancel()
	}()

	err = c.Run(ctx, printEvents(cmd.OutOrStdout()))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printEvents(out io.Writer) client.Handler {
	return func(_ context.Context, ev frame.Event) error {
		_, err := fmt.Fprintln(out, ev.String())
		return err
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"go-event-stream/internal/application/facade"
	"go-event-stream/internal/control"
	"go-event-stream/internal/emitter"
	"go-event-stream/internal/infrastructure/config"
	"go-event-stream/internal/infrastructure/hub"
	"go-event-stream/internal/infrastructure/logger"
	"go-event-stream/internal/infrastructure/server"
)

const stopTimeout = 5 * time.Second

var (
	configPath string
	addr       string
	noConsole  bool
)

var rootCmd = &cobra.Command{
	Use:           "sse-server",
	Short:         "Serve a controllable stream of tick events over SSE",
	Long:          "Serve a stream of tick events over SSE. Type start, stop, status or shutdown on stdin, or POST them to /api/v1/control/<command>.",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          serveRunE,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides the config file")
	rootCmd.Flags().BoolVar(&noConsole, "no-console", false, "do not read commands from stdin")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveRunE(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if noConsole {
		cfg.Console.Enabled = false
	}

	log := logger.NewLogrusLogger(&cfg.Log)
	if cfg.Log.Level > logger.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	hubInstance := hub.New(log)
	if err := hubInstance.Start(ctx); err != nil {
		return fmt.Errorf("start hub: %w", err)
	}

	state := control.NewState()
	stream := facade.NewStreamApplicationService(state, hubInstance, cfg.Stream.GracePeriod, log)
	dispatcher := control.NewDispatcher(state, func() {
		go stream.Shutdown(context.Background())
	})
	em := emitter.New(state, log, emitter.WithInterval(cfg.Stream.TickInterval))

	router := InitRouter(cfg, hubInstance, em, dispatcher, log)
	httpSrv := server.NewHTTPServer(router, server.Options{
		Addr:              cfg.Server.Addr,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	})

	app := newApplication(log, httpSrv, hubInstance, stream)
	if cfg.Console.Enabled {
		app.console = control.NewConsole(dispatcher, cmd.InOrStdin(), cmd.OutOrStdout(), log)
	}

	return app.Run(WithSignal(ctx))
}

type Application struct {
	logger  logger.Logger
	httpSrv *server.HTTPServer
	hub     *hub.Hub
	stream  *facade.StreamApplicationService
	console *control.Console
}

func newApplication(
	logger logger.Logger,
	httpSrv *server.HTTPServer,
	hubInstance *hub.Hub,
	stream *facade.StreamApplicationService,
) *Application {
	return &Application{
		logger:  logger.WithField("app", "sse"),
		httpSrv: httpSrv,
		hub:     hubInstance,
		stream:  stream,
	}
}

// Run serves until a shutdown command or signal, then runs the farewell
// sequence and closes the transport.
func (app *Application) Run(ctx context.Context) error {
	listenAddr, err := app.httpSrv.Listen()
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	app.logger.Infof("streaming on %s", listenAddr)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return app.httpSrv.Start(egCtx)
	})

	if app.console != nil {
		consoleCtx, cancelConsole := context.WithCancel(egCtx)
		defer cancelConsole()
		go func() {
			if err := app.console.Run(consoleCtx); err != nil {
				app.logger.Warnf("console stopped: %v", err)
			}
		}()
	}

	eg.Go(func() error {
		select {
		case <-egCtx.Done():
			app.logger.Info("signal received, shutting down")
			app.stream.Shutdown(context.Background())
		case <-app.stream.Done():
			app.logger.Info("shutdown command completed")
		}

		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()

		// Stopping the hub closes streams that missed the grace window, which
		// lets their handlers return before the server drains.
		if err := app.hub.Stop(stopCtx); err != nil {
			app.logger.Errorf("failed to stop hub: %v", err)
		}
		return app.httpSrv.Stop(stopCtx)
	})

	return eg.Wait()
}

func WithSignal(pctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(pctx)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

		<-sigc

		cancel()
	}()

	return ctx
}

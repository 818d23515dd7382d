package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"superexam-session-service/internal/app"
	"superexam-session-service/internal/config"
	"superexam-session-service/internal/logger"
	transport "superexam-session-service/internal/transport/http"
	"superexam-session-service/internal/worker"

	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the exam session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.Setup(cfg.Log.Level, cfg.Log.Format)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	stack, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stack.Close()

	service := app.NewExamService(stack.sessions, stack.documents, app.WithLogger(log))
	router := transport.NewRouter(service, transport.RouterConfig{
		GinMode:        cfg.Server.GinMode,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TickInterval:   config.Duration(cfg.Timer.TickInterval, app.DefaultTickInterval),
	}, log)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	workerDone := make(chan struct{})
	if cfg.Sweeper.Enabled {
		sweeper := worker.NewExpiryWorker(service, config.Duration(cfg.Sweeper.Interval, worker.DefaultSweepInterval), log)
		go func() {
			defer close(workerDone)
			sweeper.Start(workerCtx)
		}()
	} else {
		close(workerDone)
	}

	// No WriteTimeout: the timer websocket is long-lived.
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Str("driver", cfg.Storage.Driver).Msg("starting exam session service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	case err := <-serveErr:
		log.Error().Err(err).Msg("server failed")
		stopWorkers()
		<-workerDone
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	stopWorkers()
	<-workerDone
	log.Info().Msg("shutdown complete")
	return err
}

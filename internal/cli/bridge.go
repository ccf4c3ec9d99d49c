package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"quiz-client/internal/app"
	"quiz-client/internal/config"
	transport "quiz-client/internal/transport/http"
)

// NewBridgeCmd serves the engine to a browser UI over websockets.
func NewBridgeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "bridge",
		Short: "Serve the quiz engine to a browser UI over websockets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(cmd.Context(), *configPath, *port)
		},
	}
}

func runBridge(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Bridge.Port
	}
	if finalPort == "" {
		finalPort = "8090"
	}

	kv, cleanup, err := newKVStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	logger := log.Default()
	api := newAPIClient(cfg)
	factory := func(gate app.Gate, hooks app.Hooks) *app.Controller {
		return app.NewController(api, app.NewLocalSessionStore(kv, logger), gate, controllerOptions(cfg, logger, hooks))
	}
	wsHandler := transport.NewWSHandler(factory, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	return serveUntilSignal(ctx, &http.Server{
		Addr:              ":" + finalPort,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}, "quiz bridge")
}

// serveUntilSignal runs server until SIGINT, SIGTERM or ctx cancellation,
// then shuts it down gracefully.
func serveUntilSignal(ctx context.Context, server *http.Server, name string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	errs := make(chan error, 1)
	go func() {
		log.Printf("starting %s on %s", name, server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		log.Printf("shutting down %s...", name)
	case <-ctx.Done():
		log.Printf("context canceled, shutting down %s...", name)
	case err := <-errs:
		log.Printf("failed to start %s: %v", name, err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

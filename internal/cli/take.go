package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"quiz-client/internal/app"
	"quiz-client/internal/config"
	"quiz-client/internal/transport/console"
)

// NewTakeCmd runs one quiz attempt in the terminal.
func NewTakeCmd(configPath *string) *cobra.Command {
	var live, verbose bool
	cmd := &cobra.Command{
		Use:   "take <quizID>",
		Short: "Take a quiz in the terminal; progress is saved locally and resumed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			quizID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || quizID <= 0 {
				return fmt.Errorf("invalid quiz id %q", args[0])
			}
			return runTake(cmd.Context(), *configPath, quizID, live, verbose)
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "redraw the countdown every tick")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "log engine events to stderr")
	return cmd
}

func runTake(ctx context.Context, configPath string, quizID int64, live, verbose bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := log.New(io.Discard, "", 0)
	if verbose {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	kv, cleanup, err := newKVStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	con := console.New(os.Stdin, os.Stdout)
	hooks := con.Hooks()
	if live {
		hooks.OnTick = con.Tick
	}
	ctrl := app.NewController(newAPIClient(cfg), app.NewLocalSessionStore(kv, logger), con, controllerOptions(cfg, logger, hooks))

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = con.Run(ctx, ctrl, quizID)
	ctrl.Close(context.WithoutCancel(ctx))
	if errors.Is(err, context.Canceled) {
		fmt.Println("\nProgress saved. Run take again to resume.")
		return nil
	}
	return err
}

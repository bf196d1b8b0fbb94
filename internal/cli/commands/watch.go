package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/wsmodel/internal/cli/ui"
	"github.com/conduit-lang/wsmodel/internal/metamodel/domain"
	"github.com/conduit-lang/wsmodel/internal/watch"
)

// NewWatchCommand creates the watch command
func NewWatchCommand() *cobra.Command {
	var noColor bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the metamodel in sync with the program file",
		Long: `Build the metamodel, then watch the program file and apply every change
incrementally. Each added, changed or removed endpoint is printed:

  + GET /items
  ~ GET /orders?max={int}&offset={int}  [QUERY_PARAM_ANNOTATION]
  - PUT /items/{id}/content

Examples:
  wsmodel watch
  wsmodel watch --program api.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			a, err := newApp(ctx, func(a *app) error {
				a.metamodel.AddListener(printer(out, noColor))
				return nil
			})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := startWatching(ctx, a, out, noColor); err != nil {
				return err
			}

			color.New(color.FgCyan, color.Bold).Fprintf(out, "\nWatching %s\n", a.cfg.Program)
			color.New(color.FgYellow).Fprintln(out, "Press Ctrl+C to stop")

			<-ctx.Done()
			fmt.Fprintln(out, "\nShutting down...")
			return nil
		},
	}

	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	return cmd
}

func printer(w io.Writer, noColor bool) domain.EndpointListener {
	return domain.EndpointListenerFunc(func(_ context.Context, events []domain.EndpointEvent) {
		ui.PrintEvents(w, events, noColor)
	})
}

// startWatching synchronizes the metamodel whenever the program file
// changes. The watcher is stopped when a is closed.
func startWatching(ctx context.Context, a *app, out io.Writer, noColor bool) error {
	sync := watch.NewSynchronizer(a.cfg.Program, a.workspace, a.processor, a.logger)
	opts := watch.Options{
		Patterns: a.cfg.Watch.Patterns,
		Ignored:  a.cfg.Watch.Ignore,
		Debounce: a.cfg.Watch.Debounce,
		Logger:   a.logger,
	}
	errColor := color.New(color.FgRed)
	if noColor {
		errColor.DisableColor()
	}
	fw, err := sync.Watch(ctx, opts, func(result *watch.SyncResult, err error) {
		if err != nil {
			errColor.Fprintf(out, "Error: %v\n", err)
			return
		}
		a.logger.Debug("sync finished", zap.Int("changes", len(result.Changes)), zap.Duration("duration", result.Duration))
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", a.cfg.Program, err)
	}
	a.onClose(fw.Stop)
	return nil
}

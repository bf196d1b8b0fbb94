package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/wsmodel/internal/notify"
	"github.com/conduit-lang/wsmodel/internal/server"
	"github.com/conduit-lang/wsmodel/internal/store"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	var (
		addr    string
		noWatch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the endpoints over HTTP and stream their changes",
		Long: `Build the metamodel, keep it in sync with the program file and serve it:

  GET /endpoints                 every endpoint
  GET /endpoints?element=T#m     endpoints depending on an element
  GET /endpoints?type=T          endpoints going through a type
  GET /endpoints/{id}            one endpoint
  GET /ws                        snapshot, then every change (websocket)

Endpoint changes are also published to Redis and stored in SQLite when
redis.addr and store.path are configured.

Examples:
  wsmodel serve
  wsmodel serve --addr 127.0.0.1:9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var hub *server.Hub
			a, err := newApp(ctx, func(a *app) error {
				hub = server.NewHub(ctx, a.logger)
				go hub.Run()
				a.onClose(func() error {
					hub.Shutdown()
					return nil
				})
				a.metamodel.AddListener(hub)

				if a.cfg.Redis.Addr != "" {
					p, err := notify.Dial(ctx, notify.Config{Addr: a.cfg.Redis.Addr, Channel: a.cfg.Redis.Channel}, a.metamodel, a.logger)
					if err != nil {
						return err
					}
					a.onClose(p.Close)
					if err := p.Sync(ctx, nil); err != nil {
						return err
					}
					a.metamodel.AddListener(p)
				}

				if a.cfg.Store.Path != "" {
					s, err := store.Open(ctx, a.cfg.Store.Path, a.logger)
					if err != nil {
						return err
					}
					a.onClose(s.Close)
					if err := s.SaveSnapshot(ctx, a.metamodel.ID().String(), nil); err != nil {
						return err
					}
					a.metamodel.AddListener(s.Listener(a.metamodel))
				}
				return nil
			})
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if !noWatch {
				if err := startWatching(ctx, a, out, false); err != nil {
					return err
				}
			}

			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			color.New(color.FgCyan, color.Bold).Fprintf(out, "Serving %d endpoints on %s\n", len(a.metamodel.Endpoints()), addr)
			a.logger.Info("serving", zap.String("addr", addr), zap.Bool("watch", !noWatch))
			return server.New(a.metamodel, hub, a.logger).ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides server.addr")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Serve the initial metamodel without watching the program file")

	return cmd
}

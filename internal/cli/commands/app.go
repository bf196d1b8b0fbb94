package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/conduit-lang/wsmodel/internal/cli/config"
	"github.com/conduit-lang/wsmodel/internal/logging"
	"github.com/conduit-lang/wsmodel/internal/metamodel/builder"
	"github.com/conduit-lang/wsmodel/internal/metamodel/domain"
	"github.com/conduit-lang/wsmodel/internal/source"
)

// Persistent flag values shared by every command.
var (
	configPath  string
	programPath string
)

// app is a loaded metamodel with everything needed to keep it in sync.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	workspace *source.Workspace
	metamodel *domain.Metamodel
	processor *builder.Processor
	closers   []func() error
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if programPath != "" {
		cfg.Program = programPath
	}
	return cfg, nil
}

// newApp loads the configuration and the program and builds the metamodel.
// The setup functions run before the initial build so that listeners they
// register see every endpoint.
func newApp(ctx context.Context, setup ...func(a *app) error) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, workspace: source.NewWorkspace(nil)}
	a.metamodel = domain.NewMetamodel(a.workspace, domain.WithLogger(logger))
	a.processor = builder.NewProcessor(a.metamodel)
	a.onClose(a.metamodel.Close)
	a.onClose(func() error {
		// stderr sync fails on some terminals
		_ = logger.Sync()
		return nil
	})

	for _, fn := range setup {
		if err := fn(a); err != nil {
			return nil, multierr.Append(err, a.Close())
		}
	}
	if err := a.build(ctx); err != nil {
		return nil, multierr.Append(err, a.Close())
	}
	return a, nil
}

func (a *app) build(ctx context.Context) error {
	program, err := source.LoadProgram(a.cfg.Program)
	if err != nil {
		return err
	}
	if _, err := a.processor.ApplyWebxmlApplications(ctx, a.cfg.WebxmlApplications()); err != nil {
		return fmt.Errorf("failed to apply declared applications: %w", err)
	}
	if _, _, err := a.processor.Load(ctx, a.workspace, program); err != nil {
		return fmt.Errorf("failed to build metamodel: %w", err)
	}
	a.logger.Info("metamodel built",
		zap.String("program", a.cfg.Program),
		zap.Int("endpoints", len(a.metamodel.Endpoints())))
	return nil
}

// onClose registers a cleanup function. They run in reverse order.
func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close runs every cleanup function and combines their errors.
func (a *app) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	a.closers = nil
	return err
}

func addProgramFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (default ./wsmodel.yaml)")
	cmd.PersistentFlags().StringVarP(&programPath, "program", "p", "", "Program description, overrides the configuration")
}

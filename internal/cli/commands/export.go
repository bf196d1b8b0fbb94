package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/conduit-lang/wsmodel/internal/store"
)

// NewExportCommand creates the export command
func NewExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <db>",
		Short: "Write the endpoints to a SQLite database",
		Long: `Build the metamodel and replace the endpoints stored in the SQLite
database with its endpoints. The database is created when missing.

Examples:
  wsmodel export endpoints.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, a.Close()) }()

			s, err := store.Open(ctx, args[0], a.logger)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, s.Close()) }()

			endpoints := a.metamodel.Endpoints()
			if err := s.SaveSnapshot(ctx, a.metamodel.ID().String(), endpoints); err != nil {
				return fmt.Errorf("failed to export endpoints: %w", err)
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Exported %d endpoints to %s\n", len(endpoints), args[0])
			return nil
		},
	}

	return cmd
}

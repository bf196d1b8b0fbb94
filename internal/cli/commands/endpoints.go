package commands

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/wsmodel/internal/cli/ui"
	"github.com/conduit-lang/wsmodel/internal/server"
)

// NewEndpointsCommand creates the endpoints command
func NewEndpointsCommand() *cobra.Command {
	var (
		format  string
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "endpoints",
		Short: "List the endpoints of the program",
		Long: `Build the metamodel of the program and list its endpoints.

Examples:
  wsmodel endpoints
  wsmodel endpoints --program api.yaml --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "table" && format != "json" {
				return fmt.Errorf("unknown format %q, expected table or json", format)
			}
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			endpoints := a.metamodel.Endpoints()
			out := cmd.OutOrStdout()
			if format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(server.Views(endpoints))
			}
			if len(endpoints) == 0 {
				color.New(color.FgYellow).Fprintln(out, "No endpoints found")
				return nil
			}
			ui.EndpointTable(out, endpoints, noColor).Render()
			fmt.Fprintf(out, "\n%d endpoints\n", len(endpoints))
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json)")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	return cmd
}

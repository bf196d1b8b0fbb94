package commands

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Build information, set with -ldflags "-X .../commands.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wsmodel",
		Short: "Incremental JAX-RS web service metamodel",
		Long: color.CyanString(`wsmodel - JAX-RS web service metamodel

wsmodel reads a description of a Java program, recognizes its JAX-RS
applications, HTTP methods, resources and parameter aggregators, and
derives the HTTP endpoints they expose. When the program changes only the
affected endpoints are recomputed.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addProgramFlags(rootCmd)

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewInitCommand())
	rootCmd.AddCommand(NewEndpointsCommand())
	rootCmd.AddCommand(NewWatchCommand())
	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewExportCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			goVersion := GoVersion
			if goVersion == "unknown" {
				goVersion = runtime.Version()
			}
			label := color.New(color.FgCyan, color.Bold)
			out := cmd.OutOrStdout()
			for _, line := range [][2]string{
				{"wsmodel version", Version},
				{"Git commit", GitCommit},
				{"Build date", BuildDate},
				{"Go version", goVersion},
			} {
				label.Fprintf(out, "%s: ", line[0])
				fmt.Fprintln(out, line[1])
			}
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}

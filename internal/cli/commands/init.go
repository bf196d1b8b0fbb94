package commands

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/wsmodel/internal/cli/config"
	"github.com/conduit-lang/wsmodel/internal/source"
)

//go:embed templates/*
var templatesFS embed.FS

// initAnswers are the values rendered into wsmodel.yaml.
type initAnswers struct {
	Program          string
	LogLevel         string
	ApplicationClass string
	ApplicationPath  string
	ServerAddr       string
	RedisAddr        string
}

func defaultInitAnswers() initAnswers {
	return initAnswers{
		Program:    "program.yaml",
		LogLevel:   "info",
		ServerAddr: ":8080",
	}
}

// NewInitCommand creates the init command
func NewInitCommand() *cobra.Command {
	var (
		yes   bool
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a wsmodel configuration",
		Long: `Create wsmodel.yaml and, when missing, a sample program description.

You are prompted for the settings unless --yes is given.

Examples:
  wsmodel init
  wsmodel init my-service --yes`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			answers := defaultInitAnswers()
			if !yes {
				if err := askInit(&answers); err != nil {
					return err
				}
			}
			return runInit(cmd, dir, answers, force)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Accept the defaults without prompting")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration")

	return cmd
}

func askInit(answers *initAnswers) error {
	questions := []*survey.Question{
		{
			Name:     "Program",
			Prompt:   &survey.Input{Message: "Program description file:", Default: answers.Program},
			Validate: survey.Required,
		},
		{
			Name: "LogLevel",
			Prompt: &survey.Select{
				Message: "Log level:",
				Options: []string{"debug", "info", "warn", "error"},
				Default: answers.LogLevel,
			},
		},
		{
			Name:   "ApplicationClass",
			Prompt: &survey.Input{Message: "Application class declared in web.xml (optional):"},
		},
		{
			Name:     "ServerAddr",
			Prompt:   &survey.Input{Message: "HTTP address for 'wsmodel serve':", Default: answers.ServerAddr},
			Validate: survey.Required,
		},
		{
			Name:   "RedisAddr",
			Prompt: &survey.Input{Message: "Redis address for endpoint events (optional):"},
		},
	}
	if err := survey.Ask(questions, answers); err != nil {
		return err
	}
	if answers.ApplicationClass != "" {
		prompt := &survey.Input{Message: "Application path:", Default: "/"}
		validate := func(ans interface{}) error {
			if s, _ := ans.(string); !strings.HasPrefix(s, "/") {
				return errors.New("the path must start with '/'")
			}
			return nil
		}
		if err := survey.AskOne(prompt, &answers.ApplicationPath, survey.WithValidator(validate)); err != nil {
			return err
		}
	}
	return nil
}

func runInit(cmd *cobra.Command, dir string, answers initAnswers, force bool) error {
	out := cmd.OutOrStdout()
	successColor := color.New(color.FgGreen, color.Bold)
	infoColor := color.New(color.FgCyan)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	configFile := filepath.Join(dir, config.FileName+".yaml")
	if _, err := os.Stat(configFile); err == nil && !force {
		return fmt.Errorf("%s already exists, use --force to overwrite it", configFile)
	}

	tmpl, err := template.ParseFS(templatesFS, "templates/wsmodel.yaml.tmpl")
	if err != nil {
		return fmt.Errorf("failed to parse config template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, answers); err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	if err := os.WriteFile(configFile, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", configFile, err)
	}
	if _, err := config.LoadFile(configFile); err != nil {
		return fmt.Errorf("generated configuration is invalid: %w", err)
	}
	infoColor.Fprintf(out, "Created %s\n", configFile)

	programFile := answers.Program
	if !filepath.IsAbs(programFile) {
		programFile = filepath.Join(dir, programFile)
	}
	if _, err := os.Stat(programFile); errors.Is(err, os.ErrNotExist) {
		sample, err := templatesFS.ReadFile("templates/program.yaml")
		if err != nil {
			return err
		}
		if _, err := source.ParseProgram(sample); err != nil {
			return fmt.Errorf("sample program is invalid: %w", err)
		}
		if err := os.WriteFile(programFile, sample, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", programFile, err)
		}
		infoColor.Fprintf(out, "Created %s\n", programFile)
	}

	successColor.Fprintln(out, "\nDone! Next steps:")
	fmt.Fprintln(out, "  wsmodel endpoints")
	fmt.Fprintln(out, "  wsmodel watch")
	return nil
}

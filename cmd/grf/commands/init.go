package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-region-facts/internal/config"
)

func newInitCmd() *cobra.Command {
	var (
		global bool
		force  bool
		yes    bool
		path   string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file",
		Long: `Creates a config file in ./.grf/config.yaml or with --global in
~/.grf/config.yaml. On a terminal the settings are asked for one by one,
starting from the defaults; with --yes, or when stdin is not a terminal,
the defaults are written as is. Existing files are kept unless --force is
given or the overwrite is confirmed.`,
		Args: cobra.NoArgs,
		// An invalid existing config must not prevent rewriting it.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			target := path
			switch {
			case target != "":
			case global:
				target = config.GlobalConfigPath()
			default:
				target = config.ProjectConfigPath()
			}

			interactive := !yes && isInteractive(cmd.InOrStdin())
			cfg := config.DefaultConfig()

			if _, err := os.Stat(target); err == nil && !force {
				if !interactive {
					return fmt.Errorf("config already exists at %s (use --force to overwrite)", target)
				}
				overwrite, err := confirmOverwrite(cmd, target)
				if err != nil {
					return err
				}
				if !overwrite {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
					return nil
				}
			}

			if interactive {
				answers := answersFrom(cfg)
				if err := answers.form().WithInput(cmd.InOrStdin()).WithOutput(cmd.ErrOrStderr()).Run(); err != nil {
					return fmt.Errorf("interactive prompt failed: %w", err)
				}
				if err := answers.apply(cfg); err != nil {
					return err
				}
			}

			if err := cfg.Save(target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", target)
			return nil
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "Write the global config instead of the project config")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Write the defaults without prompting")
	cmd.Flags().StringVar(&path, "path", "", "Write the config to this path")
	return cmd
}

// isInteractive reports whether r is a terminal a form can read from.
func isInteractive(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func confirmOverwrite(cmd *cobra.Command, target string) (bool, error) {
	var overwrite bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Config file exists").
				Description(fmt.Sprintf("Overwrite existing config at %s?", target)).
				Affirmative("Overwrite").
				Negative("Cancel").
				Value(&overwrite),
		),
	).WithInput(cmd.InOrStdin()).WithOutput(cmd.ErrOrStderr())
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("interactive prompt failed: %w", err)
	}
	return overwrite, nil
}

// initAnswers holds the form fields as the user edits them.
type initAnswers struct {
	LogLevel  string
	Format    string
	Workers   string
	CacheDir  string
	ExpandAll bool
}

func answersFrom(cfg *config.Config) *initAnswers {
	return &initAnswers{
		LogLevel:  cfg.LogLevel,
		Format:    string(cfg.Format),
		Workers:   strconv.Itoa(cfg.Workers),
		CacheDir:  cfg.CacheDir,
		ExpandAll: cfg.ExpandAllLocations,
	}
}

func (a *initAnswers) form() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Log level").
				Description("Messages below this level are dropped").
				Options(
					huh.NewOption("debug (stage timings)", "debug"),
					huh.NewOption("info", "info"),
					huh.NewOption("warn (move errors, taint)", "warn"),
					huh.NewOption("error", "error"),
				).
				Value(&a.LogLevel),
			huh.NewSelect[string]().
				Title("Default format of grf enrich").
				Options(
					huh.NewOption("JSON", string(config.FormatJSON)),
					huh.NewOption("YAML", string(config.FormatYAML)),
					huh.NewOption("msgpack fact store", string(config.FormatMsgpack)),
				).
				Value(&a.Format),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Workers").
				Description("Procedures enriched in parallel").
				Placeholder("4").
				Validate(validateWorkers).
				Value(&a.Workers),
			huh.NewInput().
				Title("Cache directory (optional, press Enter to skip)").
				Description("Fact stores of enriched programs are kept here").
				Placeholder("optional").
				Value(&a.CacheDir),
			huh.NewConfirm().
				Title("Expand all-locations constraints").
				Description("Repeat constraints that hold everywhere at every point in subset_base?").
				Affirmative("Yes").
				Negative("No, once at the entry").
				Value(&a.ExpandAll),
		),
	)
}

func validateWorkers(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return errors.New("workers must be a positive number")
	}
	return nil
}

// apply copies the answers into cfg and validates the result.
func (a *initAnswers) apply(cfg *config.Config) error {
	if err := validateWorkers(a.Workers); err != nil {
		return err
	}
	workers, _ := strconv.Atoi(strings.TrimSpace(a.Workers))

	cfg.LogLevel = a.LogLevel
	cfg.Format = config.OutputFormat(a.Format)
	cfg.Workers = workers
	cfg.CacheDir = strings.TrimSpace(a.CacheDir)
	cfg.ExpandAllLocations = a.ExpandAll
	return cfg.Validate()
}

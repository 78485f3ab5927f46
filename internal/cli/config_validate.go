package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rshade/gradebook/internal/config"
)

// NewConfigValidateCmd creates the config validate command for validating configuration.
func NewConfigValidateCmd() *cobra.Command {
	var (
		verbose bool
		file    string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Validates the effective configuration (user config, project overlay and
GRADEBOOK_* environment variables), or a single file given with --file.

Every problem is reported, not just the first one.`,
		Example: `  # Validate current configuration
  gradebook config validate

  # Validate a specific file and show the resolved values
  gradebook config validate --file ./ci/gradebook.yaml --verbose`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigValidate(cmd, file, verbose)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show detailed validation information")
	cmd.Flags().StringVar(&file, "file", "", "validate this file instead of the effective configuration")

	return cmd
}

// runConfigValidate executes the configuration validation logic.
func runConfigValidate(cmd *cobra.Command, file string, verbose bool) error {
	cfg := config.GetGlobalConfig()
	if file != "" {
		loaded, err := config.Load(file)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		cfg = loaded
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	cmd.Printf("Configuration is valid\n")
	if verbose {
		printVerboseDetails(cmd, cfg)
	}
	return nil
}

// printVerboseDetails prints detailed configuration information.
func printVerboseDetails(cmd *cobra.Command, cfg *config.Config) {
	cmd.Println()
	cmd.Println("Configuration details:")
	cmd.Printf("  Report format: %s\n", cfg.Report.Format)
	cmd.Printf("  Output directory: %s\n", cfg.Report.OutputDir)
	cmd.Printf("  Workers: %d\n", cfg.Report.Workers)
	cmd.Printf("  Logging level: %s\n", cfg.Logging.Level)
	cmd.Printf("  Log file: %s\n", cfg.Logging.File)
	cmd.Printf("  Audit enabled: %t\n", cfg.Logging.Audit.Enabled)
}

// NewConfigShowCmd creates the config show command, which prints the effective
// configuration as YAML.
func NewConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Example: `  # Show configuration after file, project and environment overrides
  gradebook config show`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.GetGlobalConfig()
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshalling configuration: %w", err)
			}
			if path := cfg.ConfigPath(); path != "" {
				cmd.Printf("# %s\n", path)
			}
			cmd.Print(string(data))
			return nil
		},
	}
}

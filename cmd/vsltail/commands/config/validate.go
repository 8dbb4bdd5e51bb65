package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vsl-go/vslcore/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Load and validate the vsltail configuration, reporting any errors
without starting the pipeline.`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Println("configuration is valid")
	return nil
}

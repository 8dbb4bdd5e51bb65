package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vsl-go/vslcore/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a sample configuration file",
	Long: `Write a sample vsltail configuration file with sane defaults.

By default the file is written to $XDG_CONFIG_HOME/vsltail/config.yaml.
Use --config to choose a different path.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing configuration file")
}

func runInit(cmd *cobra.Command, args []string) error {
	var (
		path string
		err  error
	)
	if configFile := GetConfigFile(); configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
		path = configFile
	} else {
		path, err = config.InitConfig(initForce)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Configuration file created at: %s\n", path)
	fmt.Println("Edit it to point at your VSL source, then run: vsltail run")
	return nil
}

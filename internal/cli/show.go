// internal/cli/show.go
package loremaster

import (
	"fmt"
	"os"

	"github.com/k0kubun/pp"
	"github.com/mwiater/loremaster/internal/appconfig"
	"github.com/spf13/cobra"
)

var configInitForce bool

// showCmd represents the 'show' command group for displaying resources.
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Group commands for displaying resources",
}

// showConfigCmd prints the merged configuration, dumping the full struct in debug mode.
var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show config settings ensuring that the config file is loaded properly and overridden by flags accordingly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		appconfig.ShowConfig(cmd.OutOrStdout(), cfg)
		if cfg.Debug {
			masked := cfg
			if masked.API.APIKey != "" {
				masked.API.APIKey = "***"
			}
			pp.Println(masked)
		}
		return nil
	},
}

// configCmd groups configuration file commands.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

// configInitCmd writes a config file populated with every default.
var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			path = appconfig.DefaultConfigPath
		}
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := appconfig.Save(path, appconfig.Default()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s wrote %s\n", successResult("OK"), path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	showCmd.AddCommand(showConfigCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(showCmd, configCmd)
}

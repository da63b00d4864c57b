// internal/cli/root.go
package loremaster

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mwiater/loremaster/internal/appconfig"
	"github.com/mwiater/loremaster/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	currentConfig *appconfig.Config
)

var rootCmd = &cobra.Command{
	Use:           "loremaster",
	Short:         "loremaster: ask questions of your novel's knowledge base",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 1) Load config (file or defaults), flags override file values.
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		currentConfig = &cfg

		// 2) Route logs to the configured file, echoing to stderr in debug mode.
		if err := logging.Init(cfg.LogFilePath(), cfg.Debug); err != nil {
			return fmt.Errorf("init logging: %w", err)
		}
		logging.LogEvent("loremaster %s: config=%q dataPath=%q", cmd.CommandPath(), cfg.ConfigPath, cfg.DataPath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Close()
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", appconfig.DefaultConfigPath, "config file (JSON or YAML)")

	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("dataPath", "", "knowledge base directory")
	rootCmd.PersistentFlags().String("logFile", "", "log file path")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("dataPath", rootCmd.PersistentFlags().Lookup("dataPath"))
	_ = viper.BindPFlag("logFile", rootCmd.PersistentFlags().Lookup("logFile"))
}

func initConfig() {
	// A missing .env file is the normal case.
	_ = godotenv.Load()
	appconfig.BindEnv(viper.GetViper())
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// loadConfig reads the config file when present and decodes the merged
// flag, file and default values.
func loadConfig() (appconfig.Config, error) {
	used := ""
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return appconfig.Config{}, fmt.Errorf("failed to load config: %w", err)
		}
	} else {
		used = viper.ConfigFileUsed()
	}

	cfg, err := appconfig.FromViper(viper.GetViper())
	if err != nil {
		return appconfig.Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ConfigPath = used
	return cfg, nil
}

// GetConfig returns the configuration loaded for the running command.
func GetConfig() *appconfig.Config {
	return currentConfig
}

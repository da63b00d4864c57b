// internal/cli/ping.go
package loremaster

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/mwiater/loremaster/internal/apiclient"
	"github.com/spf13/cobra"
)

var (
	successResult = color.New(color.FgGreen).SprintFunc()
	failedResult  = color.New(color.FgRed).SprintFunc()
)

// pingCmd checks that the configured API accepts a minimal chat request.
var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the connection to the model API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		client, err := apiclient.New(&cfg)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if !client.TestConnection(ctx) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", failedResult("FAILED"), cfg.API.BaseURL)
			return fmt.Errorf("connection test failed")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", successResult("OK"), cfg.API.BaseURL, cfg.API.TestModel)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}

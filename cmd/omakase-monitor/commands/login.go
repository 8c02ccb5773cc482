package commands

import (
	"fmt"

	"omakase-monitor/lib/scrapers/omakase"
	"omakase-monitor/lib/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verifies the configured credentials and saves the session cookies.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := mustLoadConfig()

		client, err := omakase.NewClient(ctx, omakase.ClientOptions{
			CookiesFile: config.CookiesFile,
		})
		if err != nil {
			serviceutil.Fatal("failed to initialize omakase client", err)
		}
		err = client.Login(ctx, config.Omakase.Email, config.Omakase.Password)
		if err != nil {
			serviceutil.Fatal("failed to login", err)
		}
		fmt.Printf("logged in, session cookies saved to %s\n", config.CookiesFile)
	},
}

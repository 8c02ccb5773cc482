package commands

import (
	"os"
	"strconv"

	"omakase-monitor/lib/scrapers/omakase"
	"omakase-monitor/lib/serviceutil"
	"omakase-monitor/services/notifier"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check [slug...]",
	Short: "Prints the currently open slots without diffing or notifying.",
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

		wanted := map[string]bool{}
		for _, slug := range args {
			wanted[slug] = true
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Restaurant", "Date", "Time", "Price", "Seats"})

		for _, restaurant := range config.Targets() {
			if !restaurant.Enabled {
				continue
			}
			if len(wanted) > 0 && !wanted[restaurant.Slug] {
				continue
			}
			slots, err := client.FetchSlots(ctx, restaurant.Slug)
			if err != nil {
				serviceutil.Fatal("failed to fetch slots", err)
			}
			for _, slot := range slots {
				seats := ""
				if slot.AvailableSeats > 0 {
					seats = strconv.Itoa(slot.AvailableSeats)
				}
				t.AppendRow(table.Row{
					restaurant.Name,
					slot.Date,
					slot.Time,
					notifier.FormatPrice(slot.Price),
					seats,
				})
			}
		}

		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}

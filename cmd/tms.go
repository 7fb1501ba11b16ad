package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"logi-track/internal/tms"
)

var (
	syncClient string
	syncSince  string
)

var tmsCmd = &cobra.Command{
	Use:   "tms",
	Short: "Transport management system integration",
}

var tmsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull shipments from the TMS and reconcile them",
	Run: func(cmd *cobra.Command, args []string) {
		syncTMS(cmd.Context())
	},
}

func syncTMS(ctx context.Context) {
	service := tms.NewService(cfg.TMS, provider)
	result, err := service.Sync(ctx, tms.Filter{ClientID: syncClient, UpdatedSince: syncSince})
	exitOnError("TMS sync failed", err)

	fmt.Printf("Synced %d shipments: %d created, %d updated, %d skipped, %d timeline events added\n",
		result.Synced, result.Created, result.Updated, result.Skipped, result.Events)
}

func init() {
	rootCmd.AddCommand(tmsCmd)
	tmsCmd.AddCommand(tmsSyncCmd)

	tmsSyncCmd.Flags().StringVar(&syncClient, "client", "", "only sync shipments of this client id")
	tmsSyncCmd.Flags().StringVar(&syncSince, "since", "", "only sync shipments updated since this RFC 3339 time")
}

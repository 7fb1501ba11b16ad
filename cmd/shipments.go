package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"logi-track/internal/access"
	"logi-track/internal/importer"
)

var importClient string

var shipmentsCmd = &cobra.Command{
	Use:   "shipments",
	Short: "Manage shipments",
}

var importShipmentsCmd = &cobra.Command{
	Use:   "import <csv>",
	Short: "Import shipments from a CSV file for a client",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		importShipments(cmd.Context(), args[0])
	},
}

func importShipments(ctx context.Context, path string) {
	if importClient == "" {
		exitOnError("Missing client", fmt.Errorf("--client is required"))
	}

	// Accept either the account id or its email
	client, err := provider.GetUser(ctx, importClient)
	if err != nil {
		client, err = provider.GetUserByEmail(ctx, access.NormalizeEmail(importClient))
	}
	exitOnError("Failed to find client", err)

	f, err := os.Open(path)
	exitOnError("Failed to open file", err)
	defer f.Close()

	text, err := importer.Decode(f)
	exitOnError("Failed to read file", err)

	result, err := importer.Parse(text, client.ID)
	exitOnError("Failed to parse file", err)

	exitOnError("Failed to import shipments", provider.CreateShipments(ctx, result.Shipments))
	fmt.Printf("Imported %d shipments for %s (%d rows skipped)\n", len(result.Shipments), client.Email, result.Skipped)
}

func init() {
	rootCmd.AddCommand(shipmentsCmd)
	shipmentsCmd.AddCommand(importShipmentsCmd)

	importShipmentsCmd.Flags().StringVar(&importClient, "client", "", "client account id or email")
}

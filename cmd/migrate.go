package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Opening the provider applies pending migrations.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and print the schema version",
	Run: func(cmd *cobra.Command, args []string) {
		version, err := provider.GetSchemaVersion(cmd.Context())
		exitOnError("Failed to read schema version", err)
		fmt.Printf("Database schema is at version %d\n", version)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"logi-track/internal/routes"
	"logi-track/internal/storage"
)

var requestStatus string

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "Review access requests",
}

var listRequestsCmd = &cobra.Command{
	Use:   "list",
	Short: "List access requests",
	Run: func(cmd *cobra.Command, args []string) {
		listRequests(cmd.Context())
	},
}

var approveRequestCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a pending request and mail the sign-in details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reviewRequest(cmd.Context(), args[0], storage.AccessRequestApproved)
	},
}

var rejectRequestCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject a pending request",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reviewRequest(cmd.Context(), args[0], storage.AccessRequestRejected)
	},
}

func listRequests(ctx context.Context) {
	status := storage.AccessRequestStatus(requestStatus)
	if status != "" && !status.Valid() {
		exitOnError("Invalid status", fmt.Errorf("unknown status %q", requestStatus))
	}

	requests, err := provider.ListAccessRequests(ctx, status)
	exitOnError("Failed to list access requests", err)

	if len(requests) == 0 {
		fmt.Println("No access requests found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tCOMPANY\tSTATUS\tCREATED")
	fmt.Fprintln(w, "--\t-----\t-------\t------\t-------")
	for _, r := range requests {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Email, r.CompanyName, r.Status, r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}

func reviewRequest(ctx context.Context, id string, status storage.AccessRequestStatus) {
	req, err := provider.GetAccessRequest(ctx, id)
	exitOnError("Failed to find access request", err)
	if req.Status != storage.AccessRequestPending {
		exitOnError("Cannot review request", fmt.Errorf("request is already %s", req.Status))
	}

	if status == storage.AccessRequestApproved {
		env, cleanup, err := NewEnv(ctx, cfg, provider)
		exitOnError("Failed to initialize", err)
		defer cleanup()

		req, err = routes.ApproveAccessRequest(ctx, env, req, cfg.BaseURL)
		exitOnError("Failed to approve request", err)
	} else {
		req, err = provider.TransitionAccessRequest(ctx, id, status)
		exitOnError("Failed to reject request", err)
	}

	fmt.Printf("Access request %s for %s is now %s\n", req.ID, req.Email, req.Status)
}

func init() {
	rootCmd.AddCommand(requestsCmd)
	requestsCmd.AddCommand(listRequestsCmd, approveRequestCmd, rejectRequestCmd)

	listRequestsCmd.Flags().StringVar(&requestStatus, "status", "", "only list requests with this status")
}

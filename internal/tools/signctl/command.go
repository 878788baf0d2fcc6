package signctl

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Rox-Lvmaohua/qrsignature/internal/di"
)

// NewRootCommand builds the operator CLI. Every subcommand stands up its own
// dependencies from the environment, the same way the API process does.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "qrsignctl",
		Short:         "Operations toolkit for the QR signature service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCommand(), newPurgeCommand(), newIssueCommand())
	return root
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := di.InitializeMigrationRunner()
			if err != nil {
				return err
			}
			return runner.Run()
		},
	}
}

func newPurgeCommand() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete terminal sessions past the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := di.InitializeSignService()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			purged, err := svc.PurgeOldSessions(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d sessions\n", purged)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "abort the sweep after this long")
	return cmd
}

func newIssueCommand() *cobra.Command {
	var projectID, userID, fileID, metaCode string
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Mint a signing session and print its URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := di.InitializeSignService()
			if err != nil {
				return err
			}
			result, err := svc.Generate(cmd.Context(), projectID, userID, fileID, metaCode)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session: %s\nsequence: %d\nexpires: %s\nurl: %s\n",
				result.SessionRef, result.Sequence, result.ExpiresAt.Format(time.RFC3339), result.SignURL)
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project identifier")
	cmd.Flags().StringVar(&userID, "user", "", "signer user identifier")
	cmd.Flags().StringVar(&fileID, "file", "", "file identifier")
	cmd.Flags().StringVar(&metaCode, "meta", "", "metadata code")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("meta")
	return cmd
}

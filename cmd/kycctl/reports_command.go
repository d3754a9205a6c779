package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"kycflow/internal/report"
)

func newReportsCommand(ctx *commandContext) *cobra.Command {
	reportsCmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect archived verification reports",
	}
	reportsCmd.AddCommand(newReportsListCommand(ctx))
	reportsCmd.AddCommand(newReportsShowCommand(ctx))
	return reportsCmd
}

func newReportsListCommand(ctx *commandContext) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the archived reports of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(userID) == "" {
				return fmt.Errorf("--user is required")
			}
			a, err := ctx.load(cmd.Context(), cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.Archive.ListByUser(cmd.Context(), userID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No archived reports")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.Report.VerificationID,
					e.CountryCode,
					e.DocumentType,
					e.Report.Status,
					e.ArchivedAt.Local().Format(time.DateTime),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"Verification", "Country", "Document", "Status", "Archived"}, rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User whose reports are listed")
	return cmd
}

func newReportsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <verification-id>",
		Short: "Print an archived report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.load(cmd.Context(), cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			entry, err := a.Archive.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			data, err := report.Export(entry.Report)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

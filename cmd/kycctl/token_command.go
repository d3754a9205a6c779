package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var verificationID string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a service token accepted by the flow API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.load(cmd.Context(), cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			token, err := a.APITokens.Token(verificationID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&verificationID, "verification-id", "", "Scope the token to one verification")
	return cmd
}

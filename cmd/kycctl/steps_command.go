package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newStepsCommand(ctx *commandContext) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "steps",
		Short: "Show the flow a user would be given",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.load(cmd.Context(), cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg, err := a.Source.FlowConfig(cmd.Context(), userID)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(cfg.Steps))
			for i, step := range cfg.Steps {
				rows = append(rows, []string{strconv.Itoa(i + 1), string(step)})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"#", "Step"}, rows))
			fmt.Fprintf(out, "MRZ:            %t\n", cfg.Settings.EnableMRZ)
			fmt.Fprintf(out, "Barcode:        %t\n", cfg.Settings.EnableBarcode)
			fmt.Fprintf(out, "Document types: %s\n", listOrAny(cfg.Settings.DocumentTypes))
			fmt.Fprintf(out, "Countries:      %s\n", listOrAny(cfg.Settings.Countries))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "operator", "User whose flow configuration is resolved")
	return cmd
}

func listOrAny(values []string) string {
	if len(values) == 0 {
		return "any"
	}
	return strings.Join(values, ", ")
}

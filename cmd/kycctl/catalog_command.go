package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"kycflow/internal/catalog"
)

func newCatalogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog [country-code]",
		Short: "List supported countries, or the document types of one country",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Default()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				countries := cat.Countries()
				rows := make([][]string, 0, len(countries))
				for _, c := range countries {
					rows = append(rows, []string{c.Code, c.Name})
				}
				fmt.Fprintln(out, renderTable([]string{"Code", "Country"}, rows))
				return nil
			}

			code := strings.ToUpper(strings.TrimSpace(args[0]))
			if !cat.HasCountry(code) {
				return fmt.Errorf("unknown country %q", code)
			}
			docs := cat.DocumentTypes(code)
			rows := make([][]string, 0, len(docs))
			for _, d := range docs {
				rows = append(rows, []string{d.Value, d.Label})
			}
			fmt.Fprintln(out, renderTable([]string{"Type", "Label"}, rows))
			return nil
		},
	}
}

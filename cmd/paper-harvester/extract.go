// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-harvester/internal/doi"
)

var extractCmd = &cobra.Command{
	Use:   "extract <export>...",
	Short: "Print the DOIs found in bibliographic exports",
	Long: `Extract scans each export file (text or legacy binary, decoded as
Latin-1) for DOIs and prints them once each, in first-seen order, with
the publisher each would be routed to.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var all []string
		for _, path := range args {
			found, err := extractFile(path)
			if err != nil {
				return err
			}
			all = append(all, found...)
		}
		dois, _ := doi.NormalizeAll(all)

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(doi.Records(dois))
		}
		for _, d := range dois {
			fmt.Fprintf(out, "%s\t%s\n", d, doi.Classify(d))
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().Bool("json", false, "output records as JSON")

	rootCmd.AddCommand(extractCmd)
}

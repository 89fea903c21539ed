// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"
)

var planCmd = &cobra.Command{
	Use:   "plan [dois...]",
	Short: "Show how DOIs would be routed without downloading",
	Long: `Plan resolves inputs exactly as download does and reports how many DOIs
each publisher would handle, which publishers are disabled for lack of
credentials, and a few example DOIs. No network requests are made.`,
	RunE: runPlan,
}

func init() {
	addInputFlags(planCmd)
	addRunFlags(planCmd)
	planCmd.Flags().Bool("yaml", false, "write the plan as YAML")

	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	b, err := prepareBatch(cmd, args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asYAML, _ := cmd.Flags().GetBool("yaml"); asYAML {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(b.plan); err != nil {
			return err
		}
		return enc.Close()
	}
	printPlan(out, b)
	return nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-harvester/internal/harvest"
	"github.com/pdiddy/paper-harvester/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search a provider for articles",
	Long: `Search pages through one provider's search endpoint and prints the
matching DOIs with their routing. The query is passed through in the
provider's own syntax. Output is one DOI per line, suitable for
download --doi-file.`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().String("provider", "openalex", "provider to search: "+strings.Join(harvest.ProviderNames(), ", "))
	searchCmd.Flags().String("query", "", "search query")
	searchCmd.Flags().Int("max-results", 20, "maximum number of results (0 = all pages)")
	searchCmd.Flags().Int("page-size", 0, "results per request (default: provider's default)")
	searchCmd.Flags().Bool("json", false, "output results as JSON")
	_ = searchCmd.MarkFlagRequired("query")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("provider")
	query, _ := cmd.Flags().GetString("query")
	limit, _ := cmd.Flags().GetInt("max-results")
	pageSize, _ := cmd.Flags().GetInt("page-size")
	asJSON, _ := cmd.Flags().GetBool("json")

	searcher, err := harvest.NewSearcher(baseConfig(), strings.ToLower(name))
	if err != nil {
		return err
	}

	var records []types.ArticleRecord
	out := cmd.OutOrStdout()
	for rec, err := range harvest.SearchRecords(cmd.Context(), searcher, query, pageSize, limit) {
		if err != nil {
			return fmt.Errorf("searching %s: %w", name, err)
		}
		if asJSON {
			records = append(records, rec)
			continue
		}
		fmt.Fprintf(out, "%s\t%s\t%s\n", rec.Identifier(), rec.Publisher, rec.Title)
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	return nil
}

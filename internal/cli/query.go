package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docrag/internal/assembler"
	"github.com/dgallion1/docrag/internal/pipeline"
)

func (a *app) queryCommand() *cobra.Command {
	var (
		k           int
		showContext bool
	)
	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Answer a question from the indexed documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c *pipeline.Components) error {
				ans, err := c.Session.Query(ctx, args[0], k)
				if err != nil {
					return err
				}
				if a.json {
					return printJSON(cmd, ans)
				}
				if showContext {
					cmd.Println(ans.Context)
					cmd.Println(strings.Repeat("-", 40))
				}
				cmd.Println(ans.Answer)
				printSources(cmd, ans)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of passages to retrieve (0 uses the configured default)")
	cmd.Flags().BoolVar(&showContext, "show-context", false, "print the assembled context before the answer")
	return cmd
}

func printSources(cmd *cobra.Command, ans *pipeline.Answer) {
	if ans.RetrievalError != "" {
		cmd.Printf("\n(retrieval failed: %s)\n", ans.RetrievalError)
	}
	if len(ans.Results) == 0 {
		return
	}
	cmd.Println("\nSources:")
	for _, r := range ans.Results {
		cmd.Printf("  [%d] %s (%.2f)\n", r.Rank, assembler.Source(r.Metadata.Filename, r.Metadata.PageNumbers), r.Score)
	}
}

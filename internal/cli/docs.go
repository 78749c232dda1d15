package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docrag/internal/pipeline"
)

func (a *app) docsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "List indexed documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c *pipeline.Components) error {
				docs, err := c.Store.Documents(ctx)
				if err != nil {
					return fmt.Errorf("failed to list documents: %w", err)
				}
				if a.json {
					return printJSON(cmd, docs)
				}
				if len(docs) == 0 {
					cmd.Println("No documents indexed.")
					return nil
				}
				for _, d := range docs {
					cmd.Printf("  %s  %-40s %d chunks\n", d.DocID, d.Filename, d.Chunks)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "rm [doc-id]",
		Short: "Delete a document's records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c *pipeline.Components) error {
				n, err := c.Store.DeleteDocument(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to delete document: %w", err)
				}
				if n == 0 {
					return fmt.Errorf("document %s not found", args[0])
				}
				cmd.Printf("deleted %s (%d records)\n", args[0], n)
				return nil
			})
		},
	})
	return cmd
}

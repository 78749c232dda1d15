// Package cli implements the docrag command line: ingest, query, chat and docs run the
// pipeline in-process against the configured store.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docrag/internal/pipeline"
)

// Builder wires the pipeline components for one command invocation. configPath is the
// --config flag value and may be empty.
type Builder func(ctx context.Context, configPath string) (*pipeline.Components, error)

type app struct {
	build      Builder
	configPath string
	json       bool
}

// NewRootCommand returns the docrag command tree.
func NewRootCommand(build Builder) *cobra.Command {
	a := &app{build: build}
	root := &cobra.Command{
		Use:   "docrag",
		Short: "Ingest documents and answer questions from them",
		Long: `docrag parses documents into structure-aware chunks, embeds them into a vector store,
and answers questions with a language model grounded on the retrieved passages.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&a.json, "json", false, "output results as JSON")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file (overrides DOCRAG_CONFIG)")

	root.AddCommand(
		a.ingestCommand(),
		a.queryCommand(),
		a.chatCommand(),
		a.docsCommand(),
	)
	return root
}

// run builds the components, calls fn, and releases them.
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context, c *pipeline.Components) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := a.build(ctx, a.configPath)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

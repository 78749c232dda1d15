package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docrag/internal/pipeline"
)

type ingestOutput struct {
	Source  string           `json:"source"`
	Result  *pipeline.Result `json:"result,omitempty"`
	Error   string           `json:"error,omitempty"`
	Skipped bool             `json:"skipped,omitempty"`
}

func (a *app) ingestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [source...]",
		Short: "Ingest files or URLs",
		Long: `Parses, chunks and embeds each source, replacing any records previously stored for it.
Unparseable sources are reported and skipped; other failures stop the batch.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c *pipeline.Components) error {
				return a.ingest(ctx, cmd, c, args)
			})
		},
	}
}

func (a *app) ingest(ctx context.Context, cmd *cobra.Command, c *pipeline.Components, sources []string) error {
	results := c.Ingester.IngestBatch(ctx, sources)

	failed := 0
	out := make([]ingestOutput, len(results))
	for i, r := range results {
		out[i] = ingestOutput{Source: r.Source, Result: r.Result, Skipped: r.Skipped}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
			failed++
		}
	}

	if a.json {
		if err := printJSON(cmd, out); err != nil {
			return err
		}
	} else {
		for _, o := range out {
			switch {
			case o.Skipped:
				cmd.Printf("skipped %s\n", o.Source)
			case o.Error != "":
				cmd.Printf("failed  %s: %s\n", o.Source, o.Error)
			default:
				cmd.Printf("ingested %s (doc %s, %d chunks)\n", o.Source, o.Result.DocID, o.Result.Chunks)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed", failed, len(sources))
	}
	return nil
}

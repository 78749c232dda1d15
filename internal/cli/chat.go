package cli

import (
	"bufio"
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dgallion1/docrag/internal/generate"
	"github.com/dgallion1/docrag/internal/pipeline"
)

func (a *app) chatCommand() *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat about the indexed documents",
		Long: `Starts a line-mode conversation. Each line is a question; answers stream as they are generated.
Type "exit" or send EOF to quit, "reset" to start a new conversation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, c *pipeline.Components) error {
				return chatLoop(ctx, cmd, c.Session, k)
			})
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of passages to retrieve per question")
	return cmd
}

func chatLoop(ctx context.Context, cmd *cobra.Command, session *pipeline.Session, k int) error {
	conv := generate.NewConversation(uuid.NewString())
	scanner := bufio.NewScanner(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	for {
		cmd.Print("> ")
		if !scanner.Scan() {
			cmd.Println()
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		switch question {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "reset":
			conv = generate.NewConversation(uuid.NewString())
			cmd.Println("(new conversation)")
			continue
		}

		ans, err := session.Chat(ctx, conv, question, k, func(delta string) error {
			_, err := out.Write([]byte(delta))
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			cmd.PrintErrf("\nerror: %v\n", err)
			continue
		}
		cmd.Println()
		if ans.RetrievalError != "" {
			cmd.Printf("(retrieval failed: %s)\n", ans.RetrievalError)
		}
	}
}

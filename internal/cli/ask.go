// internal/cli/ask.go
package loremaster

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mwiater/loremaster/internal/rag"
	"github.com/mwiater/loremaster/internal/streaming"
	"github.com/spf13/cobra"
)

var (
	askCategories []string
	askStream     bool
	askNoRAG      bool
)

var (
	answerLabel   = color.New(color.FgMagenta, color.Bold).SprintFunc()
	sourceLabel   = color.New(color.FgCyan).SprintFunc()
	warningResult = color.New(color.FgYellow).SprintFunc()
)

// askCmd answers a single question against the knowledge base.
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the knowledge base",
	Long:  `The 'ask' command retrieves the most relevant entries for a question, reranks them and generates a grounded answer.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.TrimSpace(strings.Join(args, " "))
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		svc, err := newServices(cfg)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		out := cmd.OutOrStdout()

		if askStream || askNoRAG {
			return streamAnswer(ctx, svc.consumer, out, streaming.Request{
				Query:          query,
				UseRAG:         !askNoRAG,
				CategoryFilter: askCategories,
				Model:          cfg.RAG.ChatModel,
				Temperature:    cfg.RAG.Temperature,
				MaxTokens:      cfg.RAG.MaxTokens,
			})
		}

		opts := rag.OptionsFromConfig(cfg)
		if len(askCategories) > 0 {
			opts.CategoryFilter = askCategories
		}
		answer := svc.engine.Answer(ctx, query, nil, opts)
		fmt.Fprintf(out, "%s %s\n", answerLabel("LoreMaster:"), answer)
		return nil
	},
}

// streamAnswer prints a streaming session as it arrives.
func streamAnswer(ctx context.Context, consumer *streaming.Consumer, out io.Writer, req streaming.Request) error {
	fmt.Fprintf(out, "%s ", answerLabel("LoreMaster:"))
	var citations int
	for chunk := range consumer.Stream(ctx, req) {
		switch chunk.Type {
		case streaming.TextDelta:
			fmt.Fprint(out, chunk.Content)
		case streaming.Citations:
			citations = len(chunk.Citations)
			for i, c := range chunk.Citations {
				fmt.Fprintf(out, "\n  %s %s", sourceLabel(fmt.Sprintf("[%d]", i+1)), c.Title)
			}
			if citations > 0 {
				fmt.Fprintln(out)
			}
		case streaming.RetrievalError:
			fmt.Fprintf(out, "\n%s\n", warningResult("retrieval failed: "+chunk.Content))
		case streaming.Complete:
			fmt.Fprintln(out)
			return nil
		case streaming.Error:
			fmt.Fprintln(out)
			return fmt.Errorf("stream failed: %s", chunk.Content)
		}
	}
	fmt.Fprintln(out)
	return ctx.Err()
}

func init() {
	askCmd.Flags().StringSliceVar(&askCategories, "category", nil, "restrict recall to these category prefixes")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "stream the answer as it is generated")
	askCmd.Flags().BoolVar(&askNoRAG, "no-rag", false, "answer without consulting the knowledge base (implies --stream)")
	rootCmd.AddCommand(askCmd)
}

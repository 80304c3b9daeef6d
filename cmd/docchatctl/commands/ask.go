package commands

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"docchat/internal/models"
	"docchat/internal/util"
)

var (
	askDocID     string
	askMode      string
	askSessionID string
	askTopK      int
	askMinScore  float64
)

type chatBody struct {
	Question  string   `json:"question"`
	Mode      string   `json:"mode,omitempty"`
	TopK      *int     `json:"top_k,omitempty"`
	MinScore  *float64 `json:"min_score,omitempty"`
	DocID     string   `json:"doc_id,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
}

// NewAskCmd creates the ask command
func NewAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question answered only from indexed documents",
		Long: `Ask a question. The answer cites the document pages it came from,
or the assistant says it could not find the answer.

Examples:
  docchatctl ask "What is the refund window?"
  docchatctl ask --doc 3f6c... --mode fast "Who signed the contract?"
  docchatctl ask --session 9a1e... "And the renewal date?"`,
		Args: cobra.ExactArgs(1),
		RunE: runAsk,
	}

	cmd.Flags().StringVar(&askDocID, "doc", "", "Restrict to one document id")
	cmd.Flags().StringVar(&askMode, "mode", "", "Generation mode: fast or quality")
	cmd.Flags().StringVar(&askSessionID, "session", "", "Session id to record the exchange in")
	cmd.Flags().IntVar(&askTopK, "top-k", 0, "Chunks to retrieve (server default when 0)")
	cmd.Flags().Float64Var(&askMinScore, "min-score", -1, "Minimum similarity (server default when negative)")

	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(args[0])
	if question == "" {
		return fmt.Errorf("question must not be empty")
	}

	body := chatBody{
		Question:  question,
		Mode:      askMode,
		DocID:     askDocID,
		SessionID: askSessionID,
	}
	if askTopK > 0 {
		body.TopK = &askTopK
	}
	if askMinScore >= 0 {
		body.MinScore = &askMinScore
	}

	var resp models.ChatResponse
	if err := newClient().do(cmd, http.MethodPost, "/chat", body, &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, resp)
	}
	printAnswer(cmd, question, resp)
	return nil
}

func printAnswer(cmd *cobra.Command, question string, resp models.ChatResponse) {
	out := cmd.OutOrStdout()
	if resp.Abstained {
		color.New(color.FgYellow).Fprintln(out, resp.Answer)
		return
	}
	fmt.Fprintln(out, resp.Answer)
	if len(resp.Citations) == 0 {
		return
	}

	fmt.Fprintln(out)
	heading := color.New(color.FgCyan, color.Bold)
	heading.Fprintln(out, "Sources")
	for i, c := range resp.Citations {
		fmt.Fprintf(out, "  [%d] %s p.%d (chunk %d, score %.2f)\n", i+1, c.DocName, c.PageNumber, c.ChunkIndex, c.Score)
		if snippet := util.DisplayEvidenceSnippet(c.Quote, question, 220); snippet != "" {
			fmt.Fprintf(out, "      %s\n", snippet)
		}
	}
	fmt.Fprintf(out, "\n%s · %s · %dms\n", resp.ModeUsed, resp.ModelUsed, resp.Latency.TotalMs)
}

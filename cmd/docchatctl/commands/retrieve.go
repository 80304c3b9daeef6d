package commands

import (
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"docchat/internal/util"
)

var (
	retrieveDocID    string
	retrieveTopK     int
	retrieveMinScore float64
)

type retrieveHit struct {
	ChunkID    string  `json:"chunk_id"`
	Score      float64 `json:"score"`
	DocID      string  `json:"doc_id"`
	DocName    string  `json:"doc_name"`
	PageNumber int     `json:"page_number"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
}

type retrieveResponse struct {
	Question string        `json:"question"`
	TopK     int           `json:"top_k"`
	MinScore float64       `json:"min_score"`
	Results  []retrieveHit `json:"results"`
}

// NewRetrieveCmd creates the retrieve command
func NewRetrieveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrieve <question>",
		Short: "Show the chunks a question would be answered from",
		Long: `Run retrieval only, without calling the language model.

Examples:
  docchatctl retrieve "termination clause"
  docchatctl retrieve --top-k 3 --min-score 0.4 "termination clause"`,
		Args: cobra.ExactArgs(1),
		RunE: runRetrieve,
	}

	cmd.Flags().StringVar(&retrieveDocID, "doc", "", "Restrict to one document id")
	cmd.Flags().IntVar(&retrieveTopK, "top-k", 0, "Chunks to retrieve (server default when 0)")
	cmd.Flags().Float64Var(&retrieveMinScore, "min-score", -1, "Minimum similarity (server default when negative)")

	return cmd
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(args[0])
	if question == "" {
		return fmt.Errorf("question must not be empty")
	}
	body := chatBody{Question: question, DocID: retrieveDocID}
	if retrieveTopK > 0 {
		body.TopK = &retrieveTopK
	}
	if retrieveMinScore >= 0 {
		body.MinScore = &retrieveMinScore
	}

	var resp retrieveResponse
	if err := newClient().do(cmd, http.MethodPost, "/retrieve", body, &resp); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, resp)
	}
	if len(resp.Results) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No chunks above %.2f for: %s\n", resp.MinScore, question)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tDOCUMENT\tPAGE\tCHUNK\tTEXT")
	for _, h := range resp.Results {
		fmt.Fprintf(w, "%.3f\t%s\t%d\t%d\t%s\n", h.Score, h.DocName, h.PageNumber, h.ChunkIndex,
			util.DisplaySnippet(h.Text, 80))
	}
	return w.Flush()
}

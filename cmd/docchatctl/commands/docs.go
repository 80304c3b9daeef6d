package commands

import (
	"fmt"
	"net/http"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"docchat/internal/models"
	"docchat/internal/util"
)

var chunksLimit int

// NewDocsCmd creates the docs command group
func NewDocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "List, inspect and delete ingested documents",
	}
	cmd.AddCommand(newDocsListCmd())
	cmd.AddCommand(newDocsShowCmd())
	cmd.AddCommand(newDocsChunksCmd())
	cmd.AddCommand(newDocsDeleteCmd())
	return cmd
}

func newDocsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Documents []models.Document `json:"documents"`
			}
			if err := newClient().do(cmd, http.MethodGet, "/documents", nil, &resp); err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, resp)
			}
			if len(resp.Documents) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No documents yet.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tPAGES\tCHUNKS\tUPDATED")
			for _, d := range resp.Documents {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n", d.DocID, d.DocName, d.Status,
					d.PageCount, d.ChunkCount, d.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}

func newDocsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <doc-id>",
		Short: "Show a document and its ingest progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			var doc models.Document
			if err := client.do(cmd, http.MethodGet, "/documents/"+args[0], nil, &doc); err != nil {
				return err
			}
			var prog models.IngestProgress
			if err := client.do(cmd, http.MethodGet, "/documents/"+args[0]+"/progress", nil, &prog); err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, map[string]any{"document": doc, "progress": prog})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:      %s\n", doc.DocID)
			fmt.Fprintf(out, "Name:    %s\n", doc.DocName)
			fmt.Fprintf(out, "Status:  %s\n", doc.Status)
			if doc.FailReason != "" {
				fmt.Fprintf(out, "Reason:  %s\n", doc.FailReason)
			}
			fmt.Fprintf(out, "Stage:   %s (%d/%d chunks embedded)\n", prog.Stage, prog.ChunksEmbedded, prog.ChunksTotal)
			fmt.Fprintf(out, "Pages:   %d\n", doc.PageCount)
			fmt.Fprintf(out, "SHA-256: %s\n", doc.SHA256)
			return nil
		},
	}
}

func newDocsChunksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunks <doc-id>",
		Short: "List the stored chunks of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				DocID  string         `json:"doc_id"`
				Chunks []models.Chunk `json:"chunks"`
			}
			path := fmt.Sprintf("/documents/%s/chunks?limit=%d", args[0], chunksLimit)
			if err := newClient().do(cmd, http.MethodGet, path, nil, &resp); err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, resp)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PAGE\tCHUNK\tTEXT")
			for _, c := range resp.Chunks {
				fmt.Fprintf(w, "%d\t%d\t%s\n", c.PageNumber, c.ChunkIndex, util.DisplaySnippet(c.Text, 100))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&chunksLimit, "limit", 50, "Maximum chunks to list (1-500)")
	return cmd
}

func newDocsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <doc-id>",
		Short: "Delete a document, its chunks and its vectors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().do(cmd, http.MethodDelete, "/documents/"+args[0], nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

package commands

import (
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"docchat/internal/models"
)

var (
	ingestWait     bool
	ingestInterval time.Duration
)

type ingestResponse struct {
	DocID      string `json:"doc_id"`
	DocName    string `json:"doc_name"`
	Status     string `json:"status"`
	Deduped    bool   `json:"deduped"`
	WorkflowID string `json:"workflow_id"`
}

// NewIngestCmd creates the ingest command
func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Upload documents for indexing",
		Long: `Upload one or more PDF or text files. Files already indexed with the
same content are not processed again.

Examples:
  docchatctl ingest handbook.pdf
  docchatctl ingest --wait notes.txt policy.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: runIngest,
	}

	cmd.Flags().BoolVar(&ingestWait, "wait", false, "Wait until each document is indexed or failed")
	cmd.Flags().DurationVar(&ingestInterval, "interval", 2*time.Second, "Polling interval with --wait")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	client := newClient()
	out := cmd.OutOrStdout()
	var failed int

	for _, path := range args {
		var resp ingestResponse
		if err := client.upload(cmd, path, &resp); err != nil {
			color.New(color.FgRed).Fprintf(out, "%s: %v\n", path, err)
			failed++
			continue
		}
		if jsonOutput {
			if err := printJSON(cmd, resp); err != nil {
				return err
			}
		} else if resp.Deduped {
			fmt.Fprintf(out, "%s: already ingested as %s (%s)\n", resp.DocName, resp.DocID, resp.Status)
		} else {
			fmt.Fprintf(out, "%s: queued as %s\n", resp.DocName, resp.DocID)
		}
		if !ingestWait || resp.Status == models.DocumentIndexed {
			continue
		}
		prog, err := waitForDocument(cmd, client, resp.DocID, resp.DocName)
		if err != nil {
			return err
		}
		if prog.Status == models.DocumentFailed {
			color.New(color.FgRed).Fprintf(out, "%s: failed: %s\n", resp.DocName, prog.Error)
			failed++
			continue
		}
		color.New(color.FgGreen).Fprintf(out, "%s: indexed %d pages, %d chunks\n", resp.DocName, prog.Pages, prog.ChunksTotal)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files did not ingest", failed, len(args))
	}
	return nil
}

func newEmbedBar(cmd *cobra.Command, name string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription(color.CyanString(name)),
		progressbar.OptionSetItsString("chunks"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
}

// waitForDocument polls progress until the document settles, drawing embed
// progress on stderr.
func waitForDocument(cmd *cobra.Command, client *apiClient, docID, name string) (models.IngestProgress, error) {
	bar := newEmbedBar(cmd, name)
	defer func() { _ = bar.Finish() }()

	ticker := time.NewTicker(ingestInterval)
	defer ticker.Stop()
	for {
		var prog models.IngestProgress
		if err := client.do(cmd, http.MethodGet, "/documents/"+docID+"/progress", nil, &prog); err != nil {
			return prog, err
		}
		if prog.ChunksTotal > 0 {
			bar.ChangeMax(prog.ChunksTotal)
			_ = bar.Set(prog.ChunksEmbedded)
		}
		bar.Describe(color.CyanString(name) + " " + prog.Stage)
		if prog.Status == models.DocumentIndexed || prog.Status == models.DocumentFailed {
			return prog, nil
		}
		select {
		case <-cmdContext(cmd).Done():
			return prog, cmdContext(cmd).Err()
		case <-ticker.C:
		}
	}
}

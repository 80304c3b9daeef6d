package commands

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultAPI = "http://localhost:8080"

var (
	apiURL     string
	timeout    time.Duration
	jsonOutput bool
)

// NewRootCmd builds the docchatctl command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docchatctl",
		Short: "Ask questions about your documents from the terminal",
		Long: `docchatctl talks to a running docchat API.

It uploads documents, lists what has been indexed and asks grounded
questions whose answers cite the pages they came from.

Examples:
  docchatctl ingest report.pdf
  docchatctl docs list
  docchatctl ask "What was the Q3 revenue?"`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
			if !cmd.Flags().Changed("api") {
				if v := strings.TrimSpace(os.Getenv("DOCCHAT_API")); v != "" {
					apiURL = v
				}
			}
		},
	}

	cmd.PersistentFlags().StringVar(&apiURL, "api", defaultAPI, "Base URL of the docchat API (env DOCCHAT_API)")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Request timeout")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print raw JSON responses")

	cmd.AddCommand(NewAskCmd())
	cmd.AddCommand(NewRetrieveCmd())
	cmd.AddCommand(NewIngestCmd())
	cmd.AddCommand(NewDocsCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

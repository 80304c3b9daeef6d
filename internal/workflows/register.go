package workflows

import (
	"docchat/internal/ingest"

	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

func Register(w worker.Worker) {
	w.RegisterWorkflowWithOptions(DocumentIngestWorkflow, workflowRegisterOptions())
}

func workflowRegisterOptions() workflow.RegisterOptions {
	return workflow.RegisterOptions{Name: ingest.WorkflowName}
}

package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ParseDocumentActivity)
	w.RegisterActivity(a.ChunkDocumentActivity)
	w.RegisterActivity(a.StoreChunksActivity)
	w.RegisterActivity(a.EmbedChunksActivity)
	w.RegisterActivity(a.IndexChunksActivity)
	w.RegisterActivity(a.UpdateDocumentStatusActivity)
	w.RegisterActivity(a.LogLLMCallActivity)
	w.RegisterActivity(a.WriteIngestManifestActivity)
}

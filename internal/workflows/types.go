package workflows

import "time"

// Ingest stages as reported by the progress query.
const (
	StageQueued   = "queued"
	StageParse    = "parse"
	StageChunk    = "chunk"
	StageStore    = "store"
	StageEmbed    = "embed"
	StageManifest = "manifest"
	StageDone     = "done"
)

const (
	defaultEmbedBatch      = 32
	defaultCooldownSeconds = 900
)

type providerState struct {
	disabledUntil map[int]time.Time
}

func newProviderState() providerState {
	return providerState{disabledUntil: map[int]time.Time{}}
}

package memcore

import "time"

// KeyStep is a short description of one critical step, selected by the
// summarizer's priority score.
type KeyStep struct {
	Index       int    `json:"index"`
	Description string `json:"description"`
}

// EpisodeSummary is produced by the summarizer before an episode is
// evicted; it is the only trace of the episode left in the active set
// after eviction.
type EpisodeSummary struct {
	EpisodeID          string    `json:"episode_id"`
	KeyConcepts        []string  `json:"key_concepts"`
	KeySteps           []KeyStep `json:"key_steps"`
	OutcomeGist        string    `json:"outcome_gist"`
	Reward             float64   `json:"reward"`
	SummaryText        string    `json:"summary_text"`
	OriginalSizeBytes  int64     `json:"original_size_bytes"`
	CompressionRatio   float64   `json:"compression_ratio"`
	SummarizedAt       time.Time `json:"summarized_at"`
}

const MaxSummaryTextBytes = 2 * 1024 // 2 KiB

package capacity

import (
	"strings"
	"testing"
	"time"

	"github.com/d-o-hub/memcore/internal/memcore"
)

func sampleSummarizableEpisode() *memcore.Episode {
	end := time.Now()
	return &memcore.Episode{
		ID:              "ep-1",
		TaskType:        memcore.TaskTypeDebug,
		TaskDescription: "debug the connection pool deadlock under high concurrency",
		StartTime:       end.Add(-time.Minute),
		EndTime:         &end,
		Outcome:         memcore.NewSuccessOutcome("deadlock fixed", []string{"pool.go"}),
		Reward:          &memcore.RewardScore{Total: 0.8},
		Steps: []memcore.ExecutionStep{
			{Index: 0, Tool: "shell", Action: "reproduce deadlock", Success: false, LatencyMs: 500, Observation: "pool hangs under concurrency"},
			{Index: 1, Tool: "debugger", Action: "inspect goroutine dump", Success: true, LatencyMs: 200},
			{Index: 2, Tool: "editor", Action: "fix lock ordering", Success: true, LatencyMs: 100},
		},
	}
}

func TestSummarizeProducesKeyConceptsWithoutStopwords(t *testing.T) {
	s := NewSummarizer(5)
	summary := s.Summarize(sampleSummarizableEpisode())

	if len(summary.KeyConcepts) == 0 {
		t.Fatal("expected at least one key concept")
	}
	for _, c := range summary.KeyConcepts {
		if isStopword(c) {
			t.Errorf("expected no stopwords among key concepts, found %q", c)
		}
	}
}

func TestSummarizeBoundsKeyStepsToConfiguredMax(t *testing.T) {
	s := NewSummarizer(2)
	summary := s.Summarize(sampleSummarizableEpisode())

	if len(summary.KeySteps) > 2 {
		t.Errorf("expected at most 2 key steps, got %d", len(summary.KeySteps))
	}
}

func TestSummarizeKeyStepsPreserveOriginalOrder(t *testing.T) {
	s := NewSummarizer(5)
	summary := s.Summarize(sampleSummarizableEpisode())

	for i := 1; i < len(summary.KeySteps); i++ {
		if summary.KeySteps[i].Index <= summary.KeySteps[i-1].Index {
			t.Errorf("expected key steps in ascending index order, got %v", summary.KeySteps)
		}
	}
}

func TestSummarizeOutcomeGistReflectsSuccess(t *testing.T) {
	s := NewSummarizer(5)
	summary := s.Summarize(sampleSummarizableEpisode())

	if !strings.Contains(summary.OutcomeGist, "succeeded") {
		t.Errorf("expected outcome gist to reflect success, got %q", summary.OutcomeGist)
	}
}

func TestSummarizeReportsCompressionRatioBelowOne(t *testing.T) {
	s := NewSummarizer(5)
	summary := s.Summarize(sampleSummarizableEpisode())

	if summary.CompressionRatio <= 0 || summary.CompressionRatio >= 1 {
		t.Errorf("expected a compression ratio in (0,1), got %v", summary.CompressionRatio)
	}
}

func TestSummarizeTextRespectsMaxBytes(t *testing.T) {
	s := NewSummarizer(5)
	e := sampleSummarizableEpisode()
	e.TaskDescription = strings.Repeat("word ", 2000)
	summary := s.Summarize(e)

	if len(summary.SummaryText) > memcore.MaxSummaryTextBytes {
		t.Errorf("expected summary text to respect the max size, got %d bytes", len(summary.SummaryText))
	}
}

func TestSummarizeIncompleteEpisodeReportsIncompleteGist(t *testing.T) {
	s := NewSummarizer(5)
	e := sampleSummarizableEpisode()
	e.Outcome = nil
	summary := s.Summarize(e)

	if summary.OutcomeGist != "incomplete" {
		t.Errorf("expected incomplete gist for an episode with no outcome, got %q", summary.OutcomeGist)
	}
}

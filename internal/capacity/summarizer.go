package capacity

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/d-o-hub/memcore/internal/memcore"
)

var wordPattern = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_-]{2,}`)

// Summarizer produces the EpisodeSummary an episode leaves behind once
// the capacity manager evicts it.
type Summarizer struct {
	maxKeySteps int
}

// NewSummarizer builds a Summarizer bounding key_steps to maxKeySteps.
func NewSummarizer(maxKeySteps int) *Summarizer {
	if maxKeySteps <= 0 {
		maxKeySteps = 5
	}
	return &Summarizer{maxKeySteps: maxKeySteps}
}

// Summarize builds an EpisodeSummary for e. It never returns an error for
// a well-formed episode; JSON marshal failure of the episode itself
// (used only to size the compression ratio) degrades to a zero ratio
// rather than failing the whole eviction.
func (s *Summarizer) Summarize(e *memcore.Episode) *memcore.EpisodeSummary {
	originalSize, _ := e.SerializedSize()

	concepts := s.keyConcepts(e)
	steps := s.keySteps(e)
	gist := outcomeGist(e.Outcome)
	text := summaryText(e, gist, concepts)

	summary := &memcore.EpisodeSummary{
		EpisodeID:         e.ID,
		KeyConcepts:       concepts,
		KeySteps:          steps,
		OutcomeGist:       gist,
		SummaryText:       text,
		OriginalSizeBytes: int64(originalSize),
		SummarizedAt:      time.Now(),
	}
	if e.Reward != nil {
		summary.Reward = e.Reward.Total
	}
	if summarySize := len(text) + len(gist); originalSize > 0 {
		summary.CompressionRatio = float64(summarySize) / float64(originalSize)
	}
	return summary
}

// keyConcepts extracts the top terms from the task description and step
// actions/observations after stopword filtering and frequency ranking.
func (s *Summarizer) keyConcepts(e *memcore.Episode) []string {
	counts := map[string]int{}
	addTerms := func(text string) {
		for _, m := range wordPattern.FindAllString(text, -1) {
			term := strings.ToLower(m)
			if isStopword(term) {
				continue
			}
			counts[term]++
		}
	}

	addTerms(e.TaskDescription)
	for _, step := range e.Steps {
		addTerms(step.Action)
		addTerms(step.Observation)
	}

	type scored struct {
		term  string
		count int
	}
	ranked := make([]scored, 0, len(counts))
	for term, count := range counts {
		ranked = append(ranked, scored{term, count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].term < ranked[j].term
	})

	const maxConcepts = 8
	out := make([]string, 0, maxConcepts)
	for i := 0; i < len(ranked) && i < maxConcepts; i++ {
		out = append(out, ranked[i].term)
	}
	return out
}

// keySteps scores each step by success, latency (favoring faster steps),
// and distinctiveness (a step whose action differs from its neighbors is
// more informative than a repeated one), then returns the top-K indices
// in original order.
func (s *Summarizer) keySteps(e *memcore.Episode) []memcore.KeyStep {
	if len(e.Steps) == 0 {
		return nil
	}

	type scoredStep struct {
		index int
		score float64
	}
	scores := make([]scoredStep, len(e.Steps))
	for i, step := range e.Steps {
		score := 0.0
		if step.Success {
			score += 0.5
		} else {
			score += 0.3 // failures are informative too, just less so than successes
		}
		if step.LatencyMs > 0 {
			score += 1.0 / (1.0 + float64(step.LatencyMs)/1000.0)
		}
		if i == 0 || e.Steps[i-1].Action != step.Action {
			score += 0.3 // distinctiveness bonus for a non-repeated action
		}
		scores[i] = scoredStep{index: i, score: score}
	}

	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	k := s.maxKeySteps
	if k > len(scores) {
		k = len(scores)
	}
	picked := scores[:k]
	sort.Slice(picked, func(i, j int) bool { return picked[i].index < picked[j].index })

	out := make([]memcore.KeyStep, 0, k)
	for _, p := range picked {
		step := e.Steps[p.index]
		desc := step.Action
		if step.Tool != "" {
			desc = fmt.Sprintf("%s: %s", step.Tool, step.Action)
		}
		out = append(out, memcore.KeyStep{Index: p.index, Description: desc})
	}
	return out
}

func outcomeGist(o *memcore.TaskOutcome) string {
	if o == nil {
		return "incomplete"
	}
	switch o.Kind {
	case memcore.OutcomeSuccess:
		if o.Verdict != "" {
			return "succeeded: " + o.Verdict
		}
		return "succeeded"
	case memcore.OutcomeFailure:
		if o.Reason != "" {
			return "failed: " + o.Reason
		}
		return "failed"
	case memcore.OutcomePartial:
		return "partially succeeded"
	case memcore.OutcomeTimeout:
		return "timed out"
	case memcore.OutcomeCancelled:
		return "cancelled"
	default:
		return string(o.Kind)
	}
}

func summaryText(e *memcore.Episode, gist string, concepts []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task (%s) %s across %d step(s), touching %s.",
		e.TaskType, gist, len(e.Steps), strings.Join(limitStrings(concepts, 3), ", "))
	if len(concepts) == 0 {
		// no concepts extracted; keep the sentence grammatical
		b.Reset()
		fmt.Fprintf(&b, "Task (%s) %s across %d step(s).", e.TaskType, gist, len(e.Steps))
	}
	text := b.String()
	if len(text) > int(memcore.MaxSummaryTextBytes) {
		text = text[:memcore.MaxSummaryTextBytes]
	}
	return text
}

func limitStrings(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

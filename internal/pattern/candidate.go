package pattern

import "github.com/d-o-hub/memcore/internal/memcore"

// candidate is an extractor's intermediate output before aggregation
// turns it into a scored, ranked *memcore.Pattern.
type candidate struct {
	kind             memcore.PatternKind
	key              string // dedup key within a kind, e.g. the tool-sequence signature
	supportEpisodes  []string
	rewards          []float64
	toolSequence     *memcore.ToolSequencePayload
	decisionPoint    *memcore.DecisionPointPayload
	errorRecovery    *memcore.ErrorRecoveryPayload
	contextPattern   *memcore.ContextPatternPayload
}

func (c *candidate) addSupport(episodeID string, reward float64) {
	c.supportEpisodes = append(c.supportEpisodes, episodeID)
	c.rewards = append(c.rewards, reward)
}

func episodeReward(e *memcore.Episode) float64 {
	if e.Reward != nil {
		return e.Reward.Total
	}
	return 0
}

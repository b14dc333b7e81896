package pattern

import (
	"time"

	"github.com/google/uuid"

	"github.com/d-o-hub/memcore/internal/config"
	"github.com/d-o-hub/memcore/internal/memcore"
)

const emaAlpha = 0.3

// buildPattern turns a candidate into a scored *memcore.Pattern.
// Confidence = clamp(support_fraction × quality_weight, 0, 1), where
// quality_weight is the mean reward of supporting episodes scaled by the
// configured quality-weight knob. Effectiveness is the EMA of those same
// rewards in encounter order. Frequency is the raw support count.
func buildPattern(c *candidate, totalEpisodes int, cfg config.PatternConfig) *memcore.Pattern {
	support := len(c.supportEpisodes)
	fraction := 0.0
	if totalEpisodes > 0 {
		fraction = float64(support) / float64(totalEpisodes)
	}

	meanReward := mean(c.rewards)
	qualityWeight := meanReward * cfg.QualityWeight
	confidence := clamp01(fraction * qualityWeight)

	now := time.Now()
	p := &memcore.Pattern{
		ID:               uuid.NewString(),
		Kind:             c.kind,
		ToolSequence:     c.toolSequence,
		DecisionPoint:    c.decisionPoint,
		ErrorRecovery:    c.errorRecovery,
		ContextPattern:   c.contextPattern,
		Confidence:       confidence,
		Frequency:        support,
		Effectiveness:    ema(c.rewards, emaAlpha),
		LastUsed:         now,
		CreatedAt:        now,
		SourceEpisodeIDs: c.supportEpisodes,
		Decay:            1.0,
	}
	return p
}

// DecayPatterns multiplies the confidence of every pattern not used
// within cfg.RetentionWindow by cfg.DecayFactor, archiving any pattern
// whose confidence falls below cfg.ConfidenceFloor. Patterns are mutated
// in place and the same slice is returned for convenience.
func DecayPatterns(patterns []*memcore.Pattern, cfg config.PatternConfig, now time.Time) []*memcore.Pattern {
	cutoff := now.Add(-cfg.RetentionWindow)
	for _, p := range patterns {
		if p.Archived {
			continue
		}
		if p.LastUsed.Before(cutoff) {
			p.Confidence *= cfg.DecayFactor
			p.Decay *= cfg.DecayFactor
		}
		if p.Confidence < cfg.ConfidenceFloor {
			p.Archived = true
		}
	}
	return patterns
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// ema computes the exponential moving average of values in order,
// seeded by the first value.
func ema(values []float64, alpha float64) float64 {
	if len(values) == 0 {
		return 0
	}
	avg := values[0]
	for _, v := range values[1:] {
		avg = alpha*v + (1-alpha)*avg
	}
	return avg
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package orchestrator

import (
	"context"
	"time"

	"github.com/d-o-hub/memcore/internal/memcore"
	"github.com/d-o-hub/memcore/internal/pattern"
)

// allPatternKinds enumerates the closed set of pattern variants, used by
// DecayPatterns to visit every kind.
var allPatternKinds = []memcore.PatternKind{
	memcore.PatternToolSequence,
	memcore.PatternDecisionPoint,
	memcore.PatternErrorRecovery,
	memcore.PatternContext,
}

// ExtractPatterns runs the extraction pipeline over completed episodes
// within the configured retention window and persists the patterns whose
// confidence reaches the configured floor; it returns every pattern found,
// persisted or not. CompleteEpisode runs it in the background after each
// completion, and callers may also invoke it directly.
func (o *Orchestrator) ExtractPatterns(ctx context.Context) ([]*memcore.Pattern, error) {
	since := time.Now().Add(-o.cfg.Pattern.RetentionWindow)
	episodes, err := o.store.ListEpisodes(ctx, memcore.EpisodeFilter{Since: since, IncludeArchived: true})
	if err != nil {
		return nil, err
	}

	found := o.pattern.Extract(episodes)
	for _, p := range found {
		if p.Confidence < o.cfg.Pattern.ConfidenceFloor {
			continue
		}
		if err := o.store.UpsertPattern(ctx, p); err != nil {
			o.log.Warnw("failed to persist extracted pattern", "pattern_id", p.ID, "kind", p.Kind, "error", err)
			continue
		}
	}
	return found, nil
}

// DecayPatterns applies the configured decay schedule to every known
// pattern, archiving any whose confidence falls below the floor, and
// persists the result.
func (o *Orchestrator) DecayPatterns(ctx context.Context) error {
	var all []*memcore.Pattern
	for _, kind := range allPatternKinds {
		kindPatterns, err := o.store.ListPatterns(ctx, kind)
		if err != nil {
			return err
		}
		all = append(all, kindPatterns...)
	}

	decayed := pattern.DecayPatterns(all, o.cfg.Pattern, time.Now())
	for _, p := range decayed {
		if err := o.store.UpsertPattern(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// ListPatterns returns every known pattern of kind.
func (o *Orchestrator) ListPatterns(ctx context.Context, kind memcore.PatternKind) ([]*memcore.Pattern, error) {
	return o.store.ListPatterns(ctx, kind)
}

// ListHeuristics returns every known heuristic.
func (o *Orchestrator) ListHeuristics(ctx context.Context) ([]*memcore.Heuristic, error) {
	return o.store.ListHeuristics(ctx)
}

// UpsertHeuristic creates or updates a named heuristic.
func (o *Orchestrator) UpsertHeuristic(ctx context.Context, h *memcore.Heuristic) error {
	return o.store.UpsertHeuristic(ctx, h)
}

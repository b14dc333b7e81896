// Package pattern extracts reusable patterns from completed episodes:
// tool-use sequences, condition→action decision points, error-recovery
// pairs, and frequent context signatures, clustering episodes first when
// an embedding provider is available.
package pattern

import (
	"github.com/d-o-hub/memcore/internal/config"
	"github.com/d-o-hub/memcore/internal/logging"
	"github.com/d-o-hub/memcore/internal/memcore"
)

// Pipeline runs the extractor set over a window of episodes.
type Pipeline struct {
	cfg      config.PatternConfig
	provider EmbeddingProvider
	log      logging.Logger
}

// New builds a Pipeline. provider may be nil, in which case clustering
// falls back to tag-based Jaccard similarity.
func New(cfg config.PatternConfig, provider EmbeddingProvider, log logging.Logger) *Pipeline {
	if log == nil {
		log = logging.Noop()
	}
	return &Pipeline{cfg: cfg, provider: provider, log: log}
}

// Extract runs clustering then every extractor over episodes, aggregating
// candidates into ranked patterns. Extraction is best-effort per the
// spec: a failing extractor is logged and skipped rather than aborting
// the whole pass, and whatever other extractors produced is still
// returned.
func (p *Pipeline) Extract(episodes []*memcore.Episode) []*memcore.Pattern {
	ordered := sortByStartTime(episodes)
	clusters := Cluster(ordered, p.provider, p.cfg.ClusterTagJaccardThreshold, p.cfg.ClusterEmbeddingSimilarityThreshold)

	var patterns []*memcore.Pattern
	patterns = append(patterns, p.runExtractor("tool_sequence", ordered, ExtractToolSequences)...)
	patterns = append(patterns, p.runExtractor("decision_point", ordered, ExtractDecisionPoints)...)
	patterns = append(patterns, p.runExtractor("error_recovery", ordered, ExtractErrorRecoveries)...)

	// ContextPattern mines within each cluster rather than the whole
	// window: a signature is only interesting relative to the group it
	// was drawn from, not diluted across unrelated episodes.
	for _, cluster := range clusters {
		patterns = append(patterns, p.runExtractor("context_pattern", cluster, ExtractContextPatterns)...)
	}

	return patterns
}

func (p *Pipeline) runExtractor(name string, episodes []*memcore.Episode, fn func([]*memcore.Episode, config.PatternConfig) []*candidate) (out []*memcore.Pattern) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Errorw("pattern extraction failed, skipping", "extractor", name, "panic", r)
			out = nil
		}
	}()

	candidates := fn(episodes, p.cfg)
	total := len(episodes)
	result := make([]*memcore.Pattern, 0, len(candidates))
	for _, c := range candidates {
		result = append(result, buildPattern(c, total, p.cfg))
	}
	return result
}

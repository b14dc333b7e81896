package retrieval

import (
	"sort"
	"time"

	"github.com/d-o-hub/memcore/internal/config"
	"github.com/d-o-hub/memcore/internal/memcore"
)

// Query is a spatiotemporal retrieval request.
type Query struct {
	Text      string
	Context   memcore.EpisodeContext
	Embedding []float32 // optional query embedding; enables embedding-based relevance
	K         int

	// Domain and TaskType restrict the search to a single subtree when
	// set; otherwise the top-ranked subtrees by prior hit rate are
	// explored, bounded by the configured MaxClustersToSearch.
	Domain   string
	TaskType memcore.TaskType

	// DisableDiversity, when true, skips MMR and returns pure-relevance
	// top-K.
	DisableDiversity bool
}

// Result is one ranked retrieval hit.
type Result struct {
	EpisodeID string
	Score     float64
}

// scoredEntry pairs an index entry with its precomputed relevance score;
// shared between Query's candidate scoring and mmrSelect's diversity pass.
type scoredEntry struct {
	entry *Entry
	score float64
}

// Retriever answers Query requests against an Index.
type Retriever struct {
	index *Index
	cfg   config.RetrievalConfig
}

// NewRetriever builds a Retriever over idx using cfg's search breadth
// and MMR parameters.
func NewRetriever(idx *Index, cfg config.RetrievalConfig) *Retriever {
	return &Retriever{index: idx, cfg: cfg}
}

// Query runs coarse-to-fine retrieval: restrict to matching subtrees,
// score candidates by relevance + temporal bias, then apply MMR (unless
// disabled) to pick the final K.
func (r *Retriever) Query(q Query) []Result {
	now := time.Now()

	var subtrees []subtreeKey
	if q.Domain != "" || q.TaskType != "" {
		subtrees = []subtreeKey{{domain: q.Domain, taskType: q.TaskType}}
	} else {
		subtrees = r.index.RankedSubtrees(r.cfg.MaxClustersToSearch)
	}

	var candidates []*Entry
	for _, st := range subtrees {
		candidates = append(candidates, r.index.Entries(st.domain, st.taskType)...)
	}

	scored := make([]scoredEntry, 0, len(candidates))
	for _, e := range candidates {
		s := relevance(e, q) + r.cfg.TemporalBiasWeight*recencyScore(now, e.StartTime)
		scored = append(scored, scoredEntry{e, s})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	k := q.K
	if k <= 0 {
		k = len(scored)
	}

	diversify := !q.DisableDiversity && r.cfg.DiversifyByDefault
	var chosen []scoredEntry
	if diversify {
		chosen = mmrSelect(scored, k, r.cfg.Lambda)
	} else {
		if k > len(scored) {
			k = len(scored)
		}
		chosen = scored[:k]
	}

	hit := len(chosen) > 0
	for _, st := range subtrees {
		r.index.RecordQuery(st.domain, st.taskType, hit)
	}

	out := make([]Result, 0, len(chosen))
	for _, c := range chosen {
		out = append(out, Result{EpisodeID: c.entry.EpisodeID, Score: c.score})
	}
	return out
}

// mmrSelect applies Maximal Marginal Relevance: iteratively picks the
// candidate maximizing λ·relevance − (1−λ)·max_sim(already_selected)
// until k items are chosen or candidates run out.
func mmrSelect(candidates []scoredEntry, k int, lambda float64) []scoredEntry {
	if k > len(candidates) {
		k = len(candidates)
	}
	remaining := make([]scoredEntry, len(candidates))
	copy(remaining, candidates)

	var selected []scoredEntry

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		bestScore := 0.0
		for i, cand := range remaining {
			maxSim := 0.0
			for _, s := range selected {
				if sim := similarity(cand.entry, s.entry); sim > maxSim {
					maxSim = sim
				}
			}
			mmr := lambda*cand.score - (1-lambda)*maxSim
			if bestIdx == -1 || mmr > bestScore {
				bestIdx = i
				bestScore = mmr
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

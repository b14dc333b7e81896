package pattern

import (
	"sort"

	"github.com/d-o-hub/memcore/internal/memcore"
)

// EmbeddingProvider computes a dense vector for a piece of text. A nil
// provider makes clustering fall back to tag-based Jaccard similarity.
type EmbeddingProvider interface {
	Embed(text string) ([]float32, error)
}

// Cluster groups episodes for extractors that operate on groups (sequence
// mining, context-pattern frequency). Clustering is greedy: episodes are
// visited in order, and each unclustered episode either joins the most
// similar existing cluster above threshold or starts a new one.
func Cluster(episodes []*memcore.Episode, provider EmbeddingProvider, tagThreshold, embeddingThreshold float64) [][]*memcore.Episode {
	if len(episodes) == 0 {
		return nil
	}

	if provider != nil {
		if vectors, ok := embedAll(episodes, provider); ok {
			return clusterByEmbedding(episodes, vectors, embeddingThreshold)
		}
	}
	return clusterByTags(episodes, tagThreshold)
}

func embedAll(episodes []*memcore.Episode, provider EmbeddingProvider) ([][]float32, bool) {
	vectors := make([][]float32, len(episodes))
	for i, e := range episodes {
		v, err := provider.Embed(e.TaskDescription)
		if err != nil || len(v) == 0 {
			return nil, false
		}
		vectors[i] = v
	}
	return vectors, true
}

func clusterByEmbedding(episodes []*memcore.Episode, vectors [][]float32, threshold float64) [][]*memcore.Episode {
	assigned := make([]bool, len(episodes))
	var clusters [][]*memcore.Episode
	var centroids [][]float32

	for i, e := range episodes {
		if assigned[i] {
			continue
		}
		best := -1
		bestScore := threshold
		for c, centroid := range centroids {
			score := memcore.CosineSimilarity(vectors[i], centroid)
			if score >= bestScore {
				best = c
				bestScore = score
			}
		}
		if best >= 0 {
			clusters[best] = append(clusters[best], e)
			assigned[i] = true
			continue
		}
		clusters = append(clusters, []*memcore.Episode{e})
		centroids = append(centroids, vectors[i])
		assigned[i] = true
	}
	return clusters
}

func clusterByTags(episodes []*memcore.Episode, threshold float64) [][]*memcore.Episode {
	assigned := make([]bool, len(episodes))
	var clusters [][]*memcore.Episode
	var representatives []map[string]bool

	for i, e := range episodes {
		if assigned[i] {
			continue
		}
		tags := tagSet(e)
		best := -1
		bestScore := threshold
		for c, rep := range representatives {
			score := jaccard(tags, rep)
			if score >= bestScore {
				best = c
				bestScore = score
			}
		}
		if best >= 0 {
			clusters[best] = append(clusters[best], e)
			assigned[i] = true
			continue
		}
		clusters = append(clusters, []*memcore.Episode{e})
		representatives = append(representatives, tags)
		assigned[i] = true
	}
	return clusters
}

func tagSet(e *memcore.Episode) map[string]bool {
	set := make(map[string]bool, len(e.Tags)+2)
	for _, t := range e.Tags {
		set[t] = true
	}
	if e.Domain != "" {
		set["domain:"+e.Domain] = true
	}
	if e.Language != "" {
		set["language:"+e.Language] = true
	}
	return set
}

// jaccard computes |a∩b| / |a∪b| over two tag sets, 0 if both are empty.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if b[t] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// sortByStartTime returns episodes ordered oldest-first, the ordering
// extractors rely on for sequence mining and EMA computation.
func sortByStartTime(episodes []*memcore.Episode) []*memcore.Episode {
	out := make([]*memcore.Episode, len(episodes))
	copy(out, episodes)
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

package retrieval

import "github.com/d-o-hub/memcore/internal/memcore"

// similarity scores two entries' pairwise similarity for MMR's diversity
// term: cosine similarity over cached embeddings when both are present,
// else tag-Jaccard over tags+domain+language as a fallback.
func similarity(a, b *Entry) float64 {
	if len(a.Embedding) > 0 && len(b.Embedding) > 0 {
		return memcore.CosineSimilarity(a.Embedding, b.Embedding)
	}
	return tagJaccard(entrySignature(a), entrySignature(b))
}

// relevance scores an entry against a query: embedding cosine similarity
// when the query carries an embedding and the entry has one, else
// tag-Jaccard between the query's context and the entry's tags/domain/
// language, plus a small bonus for an exact domain/task-type match.
func relevance(e *Entry, q Query) float64 {
	score := 0.0
	if len(q.Embedding) > 0 && len(e.Embedding) > 0 {
		score += memcore.CosineSimilarity(q.Embedding, e.Embedding)
	} else {
		score += tagJaccard(entrySignature(e), querySignature(q))
	}
	if q.Domain != "" && q.Domain == e.Domain {
		score += 0.1
	}
	if q.TaskType != "" && q.TaskType == e.TaskType {
		score += 0.1
	}
	return score
}

func entrySignature(e *Entry) map[string]bool {
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

func querySignature(q Query) map[string]bool {
	set := make(map[string]bool, len(q.Context.Tags)+2)
	for _, t := range q.Context.Tags {
		set[t] = true
	}
	if q.Context.Domain != "" {
		set["domain:"+q.Context.Domain] = true
	}
	if q.Context.Language != "" {
		set["language:"+q.Context.Language] = true
	}
	return set
}

func tagJaccard(a, b map[string]bool) float64 {
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

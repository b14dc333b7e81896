package cache

import (
	"fmt"
	"sort"
	"strings"
)

// QueryKind enumerates the supported query shapes the query-result cache
// can key on. Kept as a closed enum rather than a free-form string so a
// typo in a kind name can't silently create an unreachable cache key.
type QueryKind string

const (
	QueryEpisodesByFilter QueryKind = "episodes_by_filter"
	QueryRetrieval        QueryKind = "retrieval"
	QueryPatternsByDomain QueryKind = "patterns_by_domain"
	QueryRelatedEpisodes  QueryKind = "related_episodes"
)

// QueryDescriptor identifies one cacheable query by kind plus its
// parameters. Two descriptors with the same kind and parameters produce
// the same cache key.
type QueryDescriptor struct {
	Kind   QueryKind
	Params map[string]string
}

// Key deterministically encodes the descriptor into a cache key: params
// are sorted by name so map iteration order never affects the result.
func (d QueryDescriptor) Key() string {
	names := make([]string, 0, len(d.Params))
	for k := range d.Params {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(string(d.Kind))
	for _, name := range names {
		b.WriteByte('|')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(d.Params[name])
	}
	return b.String()
}

// NewQueryDescriptor is a small constructor convenience for the common
// case of a handful of string-valued parameters.
func NewQueryDescriptor(kind QueryKind, params map[string]string) QueryDescriptor {
	return QueryDescriptor{Kind: kind, Params: params}
}

// String implements fmt.Stringer for debugging/log output.
func (d QueryDescriptor) String() string {
	return fmt.Sprintf("QueryDescriptor{%s}", d.Key())
}

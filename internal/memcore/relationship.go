package memcore

import "time"

// RelationshipType enumerates the kind of edge between two episodes.
// parent_child, depends_on and blocks are acyclic (see AcyclicTypes):
// inserting an edge of one of these types must not introduce a cycle
// within the same-type subgraph.
type RelationshipType string

const (
	RelationshipParentChild RelationshipType = "parent_child"
	RelationshipDependsOn   RelationshipType = "depends_on"
	RelationshipFollows     RelationshipType = "follows"
	RelationshipRelatedTo   RelationshipType = "related_to"
	RelationshipBlocks      RelationshipType = "blocks"
	RelationshipDuplicates  RelationshipType = "duplicates"
	RelationshipReferences  RelationshipType = "references"
)

// AcyclicTypes are the relationship types whose same-type subgraph must
// remain a DAG.
var AcyclicTypes = map[RelationshipType]bool{
	RelationshipParentChild: true,
	RelationshipDependsOn:   true,
	RelationshipBlocks:      true,
}

// RelationshipMetadata carries free-form detail about why a relationship
// was created.
type RelationshipMetadata struct {
	Reason       string            `json:"reason,omitempty"`
	CreatedBy    string            `json:"created_by,omitempty"`
	Priority     int               `json:"priority,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

// EpisodeRelationship is a typed directed edge between two episodes.
type EpisodeRelationship struct {
	ID            string               `json:"id"`
	FromEpisodeID string               `json:"from_episode_id"`
	ToEpisodeID   string               `json:"to_episode_id"`
	Type          RelationshipType     `json:"type"`
	Metadata      RelationshipMetadata `json:"metadata"`
	CreatedAt     time.Time            `json:"created_at"`
}

// Direction selects which edges GetForEpisode returns.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
	DirectionBoth     Direction = "both"
)

// RelationshipFilter filters FindRelated queries.
type RelationshipFilter struct {
	EpisodeID string
	Type      RelationshipType
	Direction Direction
}

// Package audit records structured events for the operations spec.md's
// external-interfaces section calls out for audit: episode create/
// complete/evict, relationship add/remove, sandbox invocation, and
// configuration change. Every event always reaches the tagged logger;
// when NATS is configured it additionally publishes to
// "<subject-prefix>.<kind>", reusing the teacher's internal/nats client.
package audit

import "time"

// Kind enumerates the audited operation categories.
type Kind string

const (
	KindEpisodeCreated      Kind = "episode_created"
	KindEpisodeCompleted    Kind = "episode_completed"
	KindEpisodeEvicted      Kind = "episode_evicted"
	KindRelationshipAdded   Kind = "relationship_added"
	KindRelationshipRemoved Kind = "relationship_removed"
	KindSandboxInvoked      Kind = "sandbox_invoked"
	KindConfigChanged       Kind = "config_changed"
)

// Event is one structured audit record. Fields carries event-specific
// detail (episode_id, relationship type, sandbox status, etc.); Record
// applies key-based redaction to it before it's logged or published.
type Event struct {
	Kind      Kind                   `json:"kind"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

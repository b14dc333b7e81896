package memcore

import (
	"encoding/json"
	"time"
)

// Size limits from the spec's invariants.
const (
	MaxTaskDescriptionBytes = 10 * 1024        // 10 KiB
	MaxMetadataBytes        = 1 * 1024 * 1024  // 1 MiB
	MaxEpisodeBytes         = 10 * 1024 * 1024 // 10 MiB
	MaxSteps                = 1000
)

// TaskType enumerates the kind of work an episode records.
type TaskType string

const (
	TaskTypeCodeGen   TaskType = "code_gen"
	TaskTypeDebug     TaskType = "debug"
	TaskTypeTest      TaskType = "test"
	TaskTypeRefactor  TaskType = "refactor"
	TaskTypeOther     TaskType = "other"
)

// EpisodeContext is the structured context an episode is started with.
type EpisodeContext struct {
	Domain      string            `json:"domain,omitempty"`
	Language    string            `json:"language,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Constraints map[string]string `json:"constraints,omitempty"`
}

// Episode is one end-to-end agent task execution and its recorded context.
type Episode struct {
	ID              string                 `json:"id"`
	TaskType        TaskType               `json:"task_type"`
	TaskDescription string                 `json:"task_description"`
	Context         EpisodeContext         `json:"context"`
	StartTime       time.Time              `json:"start_time"`
	EndTime         *time.Time             `json:"end_time,omitempty"`
	Steps           []ExecutionStep        `json:"steps"`
	Outcome         *TaskOutcome           `json:"outcome,omitempty"`
	Reward          *RewardScore           `json:"reward,omitempty"`
	Reflection      string                 `json:"reflection,omitempty"`
	Patterns        []string               `json:"patterns,omitempty"`
	Heuristics      []string               `json:"heuristics,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	Domain          string                 `json:"domain,omitempty"`
	Language        string                 `json:"language,omitempty"`
	Tags            []string               `json:"tags,omitempty"`
	ArchivedAt      *time.Time             `json:"archived_at,omitempty"`

	// LastAccessed and AccessCount are bookkeeping used by the
	// capacity-manager victim scoring; they are not part of the spec's
	// serialized entity but live alongside it in the durable store.
	LastAccessed time.Time `json:"-"`
	AccessCount  int64     `json:"-"`
}

// IsCompleted reports whether the episode has an end time and outcome.
func (e *Episode) IsCompleted() bool {
	return e.EndTime != nil && e.Outcome != nil
}

// SerializedSize reports the on-wire size of the episode for the
// 10 MiB total-size invariant: the exact length of its JSON encoding.
func (e *Episode) SerializedSize() (int, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// ExecutionStep is one tool invocation within an episode. Steps are
// append-only for a non-completed episode and immutable once the episode
// completes.
type ExecutionStep struct {
	Index       int       `json:"index"`
	Tool        string    `json:"tool"`
	Action      string    `json:"action"`
	Input       string    `json:"input"`
	Output      string    `json:"output"`
	Success     bool      `json:"success"`
	LatencyMs   int64     `json:"latency_ms"`
	Tokens      int       `json:"tokens"`
	Timestamp   time.Time `json:"timestamp"`
	Observation string    `json:"observation,omitempty"`
}

// OutcomeKind is the tag of the TaskOutcome variant.
type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeFailure   OutcomeKind = "failure"
	OutcomePartial   OutcomeKind = "partial"
	OutcomeTimeout   OutcomeKind = "timeout"
	OutcomeCancelled OutcomeKind = "cancelled"
)

// TaskOutcome is a tagged variant: Success{verdict,artifacts},
// Failure{reason}, Partial{verdict,reason}, Timeout, Cancelled.
type TaskOutcome struct {
	Kind      OutcomeKind `json:"kind"`
	Verdict   string      `json:"verdict,omitempty"`
	Artifacts []string    `json:"artifacts,omitempty"`
	Reason    string      `json:"reason,omitempty"`
}

func NewSuccessOutcome(verdict string, artifacts []string) *TaskOutcome {
	return &TaskOutcome{Kind: OutcomeSuccess, Verdict: verdict, Artifacts: artifacts}
}

func NewFailureOutcome(reason string) *TaskOutcome {
	return &TaskOutcome{Kind: OutcomeFailure, Reason: reason}
}

func NewPartialOutcome(verdict, reason string) *TaskOutcome {
	return &TaskOutcome{Kind: OutcomePartial, Verdict: verdict, Reason: reason}
}

func NewTimeoutOutcome() *TaskOutcome { return &TaskOutcome{Kind: OutcomeTimeout} }

func NewCancelledOutcome() *TaskOutcome { return &TaskOutcome{Kind: OutcomeCancelled} }

// RewardScore scores a completed episode. Total and each component are
// clamped to [0,1].
type RewardScore struct {
	Total       float64 `json:"total"`
	Correctness float64 `json:"correctness"`
	Efficiency  float64 `json:"efficiency"`
	Robustness  float64 `json:"robustness"`
	Clarity     float64 `json:"clarity"`
}

// EpisodeFilter filters episode queries.
type EpisodeFilter struct {
	Domain        string
	TaskType      TaskType
	Language      string
	Tag           string
	Since         time.Time
	Until         time.Time
	IncludeArchived bool
	Limit         int
	Offset        int
}

package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/d-o-hub/memcore/internal/audit"
	"github.com/d-o-hub/memcore/internal/memcore"
)

const (
	opCreateEpisode   = "orchestrator.CreateEpisode"
	opAppendStep      = "orchestrator.AppendStep"
	opCompleteEpisode = "orchestrator.CompleteEpisode"
)

// CreateEpisode starts a new episode. Creation needs no per-episode lock:
// the episode doesn't exist yet, so there's no concurrent writer to
// serialize against.
func (o *Orchestrator) CreateEpisode(ctx context.Context, taskType memcore.TaskType, taskDescription string, episodeCtx memcore.EpisodeContext, metadata map[string]interface{}) (*memcore.Episode, error) {
	if err := memcore.ValidateNewEpisode(opCreateEpisode, taskDescription); err != nil {
		return nil, err
	}
	if err := memcore.ValidateMetadataSize(opCreateEpisode, metadata); err != nil {
		return nil, err
	}

	now := time.Now()
	e := &memcore.Episode{
		ID:              uuid.NewString(),
		TaskType:        taskType,
		TaskDescription: taskDescription,
		Context:         episodeCtx,
		StartTime:       now,
		LastAccessed:    now,
		Metadata:        metadata,
		Domain:          episodeCtx.Domain,
		Language:        episodeCtx.Language,
		Tags:            episodeCtx.Tags,
	}

	if err := o.store.PutEpisode(ctx, e); err != nil {
		return nil, err
	}
	o.index.Insert(entryFor(e), now)
	o.audit.Record(audit.KindEpisodeCreated, map[string]interface{}{
		"episode_id": e.ID,
		"task_type":  string(e.TaskType),
		"domain":     e.Domain,
	})
	return e, nil
}

// AppendStep appends a tool-invocation step to an in-progress episode.
// The lock is held only around the in-memory decision of whether the
// step is still admissible (step count, size bounds); it's released
// before the durable append itself runs, per the "never hold a lock
// across a suspension point" rule.
func (o *Orchestrator) AppendStep(ctx context.Context, episodeID string, step memcore.ExecutionStep) error {
	e, err := o.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return err
	}

	var validateErr error
	o.locks.WithLock(episodeID, func() {
		if e.IsCompleted() {
			validateErr = memcore.NewAlreadyCompleted(opAppendStep)
			return
		}
		validateErr = memcore.ValidateStep(opAppendStep, len(e.Steps), step)
	})
	if validateErr != nil {
		return validateErr
	}

	// step.Index is assigned authoritatively by the durable store's own
	// read-validate-append, which re-checks against its own up-to-date
	// view rather than trusting this one.
	if step.Timestamp.IsZero() {
		step.Timestamp = time.Now()
	}
	return o.store.AppendStep(ctx, episodeID, step)
}

// CompleteEpisode records an episode's terminal outcome, computes its
// reward deterministically from its recorded steps, and triggers a
// capacity check so the newly-completed episode doesn't push the active
// set over its configured bound.
func (o *Orchestrator) CompleteEpisode(ctx context.Context, episodeID string, outcome *memcore.TaskOutcome, reflection string) (*memcore.Episode, error) {
	e, err := o.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return nil, err
	}

	var reward *memcore.RewardScore
	var stateErr error
	o.locks.WithLock(episodeID, func() {
		if e.IsCompleted() {
			stateErr = memcore.NewAlreadyCompleted(opCompleteEpisode)
			return
		}
		weights := memcore.RewardWeights{
			Correctness: o.cfg.Reward.Correctness,
			Efficiency:  o.cfg.Reward.Efficiency,
			Robustness:  o.cfg.Reward.Robustness,
			Clarity:     o.cfg.Reward.Clarity,
		}
		reward = memcore.ComputeReward(e.Steps, outcome, weights)
	})
	if stateErr != nil {
		return nil, stateErr
	}

	now := time.Now()
	e.EndTime = &now
	e.Outcome = outcome
	e.Reward = reward
	e.Reflection = reflection

	if err := memcore.ValidateEpisodeTotalSize(opCompleteEpisode, e); err != nil {
		return nil, err
	}
	if err := o.store.CompleteEpisode(ctx, e); err != nil {
		return nil, err
	}
	o.index.Insert(entryFor(e), e.StartTime)

	o.audit.Record(audit.KindEpisodeCompleted, map[string]interface{}{
		"episode_id": e.ID,
		"outcome":    string(outcome.Kind),
		"reward":     reward.Total,
	})

	if evicted, ids, err := o.capacity.CheckAndEvict(ctx); err != nil {
		o.log.Warnw("capacity check failed after episode completion", "episode_id", e.ID, "error", err)
	} else if evicted > 0 {
		for _, id := range ids {
			o.index.Remove(id)
		}
		o.audit.Record(audit.KindEpisodeEvicted, map[string]interface{}{
			"count": evicted,
			"ids":   ids,
		})
	}

	o.triggerPatternExtraction(e.ID)

	return e, nil
}

// triggerPatternExtraction runs the extraction pipeline in the background
// after a completed episode, per the "enqueues pattern extraction" step of
// completion. It's best-effort: a panic or error here is logged and never
// propagates to the caller that just completed its episode successfully.
func (o *Orchestrator) triggerPatternExtraction(episodeID string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.log.Warnw("async pattern extraction panicked", "episode_id", episodeID, "panic", r)
			}
		}()
		if _, err := o.ExtractPatterns(context.Background()); err != nil {
			o.log.Warnw("async pattern extraction failed", "episode_id", episodeID, "error", err)
		}
	}()
}

// GetEpisode fetches a single episode by ID.
func (o *Orchestrator) GetEpisode(ctx context.Context, episodeID string) (*memcore.Episode, error) {
	return o.store.GetEpisode(ctx, episodeID)
}

// ListEpisodes filters episodes from durable storage.
func (o *Orchestrator) ListEpisodes(ctx context.Context, filter memcore.EpisodeFilter) ([]*memcore.Episode, error) {
	return o.store.ListEpisodes(ctx, filter)
}

package pattern

import (
	"fmt"
	"sort"
	"strings"

	"github.com/d-o-hub/memcore/internal/config"
	"github.com/d-o-hub/memcore/internal/memcore"
)

// ngramLengths bounds the sequence lengths ToolSequence mining considers;
// longer sequences are rarer and noisier to support at useful confidence.
var ngramLengths = []int{2, 3}

// ExtractToolSequences mines n-grams over the ordered (tool, action)
// sequence of successful episodes. A candidate survives when it's
// observed in at least MinSupportCount episodes and its support fraction
// within the window is at least MinSupportFraction.
func ExtractToolSequences(episodes []*memcore.Episode, cfg config.PatternConfig) []*candidate {
	byKey := map[string]*candidate{}

	total := len(episodes)
	for _, e := range episodes {
		if !succeeded(e) {
			continue
		}
		actions := make([]memcore.ToolAction, 0, len(e.Steps))
		for _, s := range e.Steps {
			actions = append(actions, memcore.ToolAction{Tool: s.Tool, Action: s.Action})
		}
		seen := map[string]bool{}
		for _, n := range ngramLengths {
			for i := 0; i+n <= len(actions); i++ {
				window := actions[i : i+n]
				key := toolSequenceKey(window)
				if seen[key] {
					continue // count each episode once per n-gram, not once per occurrence
				}
				seen[key] = true

				c, ok := byKey[key]
				if !ok {
					seq := make([]memcore.ToolAction, len(window))
					copy(seq, window)
					c = &candidate{
						kind:         memcore.PatternToolSequence,
						key:          key,
						toolSequence: &memcore.ToolSequencePayload{Tools: seq},
					}
					byKey[key] = c
				}
				c.addSupport(e.ID, episodeReward(e))
			}
		}
	}

	var out []*candidate
	for _, c := range byKey {
		support := len(c.supportEpisodes)
		fraction := 0.0
		if total > 0 {
			fraction = float64(support) / float64(total)
		}
		if support >= cfg.MinSupportCount && fraction >= cfg.MinSupportFraction {
			out = append(out, c)
		}
	}
	return out
}

func toolSequenceKey(seq []memcore.ToolAction) string {
	parts := make([]string, len(seq))
	for i, a := range seq {
		parts[i] = a.Tool + ":" + a.Action
	}
	return strings.Join(parts, "->")
}

// ExtractDecisionPoints mines (condition, action) pairs from consecutive
// steps — the condition is the tool just used, the action is what
// followed — keeping pairs whose conditional success rate clears the
// configured threshold and whose support count is at least
// MinSupportCount.
func ExtractDecisionPoints(episodes []*memcore.Episode, cfg config.PatternConfig) []*candidate {
	type accum struct {
		successes int
		total     int
		condition string
		action    string
	}
	byKey := map[string]*accum{}
	support := map[string][]string{}
	rewards := map[string][]float64{}

	for _, e := range episodes {
		for i := 0; i+1 < len(e.Steps); i++ {
			condition := e.Steps[i].Tool
			action := e.Steps[i+1].Action
			if condition == "" || action == "" {
				continue
			}
			key := condition + "=>" + action
			a, ok := byKey[key]
			if !ok {
				a = &accum{condition: condition, action: action}
				byKey[key] = a
			}
			a.total++
			if e.Steps[i+1].Success {
				a.successes++
			}
			support[key] = append(support[key], e.ID)
			rewards[key] = append(rewards[key], episodeReward(e))
		}
	}

	var out []*candidate
	for key, a := range byKey {
		if a.total < cfg.MinSupportCount {
			continue
		}
		rate := float64(a.successes) / float64(a.total)
		if rate < cfg.DecisionSuccessRateThreshold {
			continue
		}
		c := &candidate{
			kind: memcore.PatternDecisionPoint,
			key:  key,
			decisionPoint: &memcore.DecisionPointPayload{
				Condition: a.condition,
				Action:    a.action,
			},
			supportEpisodes: uniqueStrings(support[key]),
			rewards:         rewards[key],
		}
		out = append(out, c)
	}
	return out
}

// ExtractErrorRecoveries records (trigger, recovery) pairs for every
// failing step immediately followed by a successful step, aggregated by
// normalized trigger text.
func ExtractErrorRecoveries(episodes []*memcore.Episode, cfg config.PatternConfig) []*candidate {
	byKey := map[string]*candidate{}
	recoverySteps := map[string]map[string]bool{}

	for _, e := range episodes {
		for i := 0; i+1 < len(e.Steps); i++ {
			failing, recovery := e.Steps[i], e.Steps[i+1]
			if failing.Success || !recovery.Success {
				continue
			}
			trigger := normalizeTrigger(failing)
			if trigger == "" {
				continue
			}
			c, ok := byKey[trigger]
			if !ok {
				c = &candidate{
					kind:          memcore.PatternErrorRecovery,
					key:           trigger,
					errorRecovery: &memcore.ErrorRecoveryPayload{Trigger: trigger},
				}
				byKey[trigger] = c
				recoverySteps[trigger] = map[string]bool{}
			}
			if !recoverySteps[trigger][recovery.Action] {
				recoverySteps[trigger][recovery.Action] = true
				c.errorRecovery.RecoverySteps = append(c.errorRecovery.RecoverySteps, recovery.Action)
			}
			c.addSupport(e.ID, episodeReward(e))
		}
	}

	var out []*candidate
	for _, c := range byKey {
		if len(c.supportEpisodes) >= cfg.MinSupportCount {
			out = append(out, c)
		}
	}
	return out
}

func normalizeTrigger(step memcore.ExecutionStep) string {
	text := step.Observation
	if text == "" {
		text = step.Action
	}
	return strings.ToLower(strings.TrimSpace(text))
}

// ExtractContextPatterns finds frequent (domain, language, tag-subset)
// signatures and records which actions they correlate with.
func ExtractContextPatterns(episodes []*memcore.Episode, cfg config.PatternConfig) []*candidate {
	byKey := map[string]*candidate{}
	actionSeen := map[string]map[string]bool{}

	for _, e := range episodes {
		sig := contextSignature(e)
		if sig == "" {
			continue
		}
		c, ok := byKey[sig]
		if !ok {
			c = &candidate{
				kind:           memcore.PatternContext,
				key:            sig,
				contextPattern: &memcore.ContextPatternPayload{ContextSignature: sig},
			}
			byKey[sig] = c
			actionSeen[sig] = map[string]bool{}
		}
		for _, s := range e.Steps {
			if s.Action != "" && !actionSeen[sig][s.Action] {
				actionSeen[sig][s.Action] = true
				c.contextPattern.Actions = append(c.contextPattern.Actions, s.Action)
			}
		}
		c.addSupport(e.ID, episodeReward(e))
	}

	var out []*candidate
	for _, c := range byKey {
		if len(c.supportEpisodes) >= cfg.MinSupportCount {
			out = append(out, c)
		}
	}
	return out
}

func contextSignature(e *memcore.Episode) string {
	if e.Domain == "" && e.Language == "" && len(e.Tags) == 0 {
		return ""
	}
	tags := make([]string, len(e.Tags))
	copy(tags, e.Tags)
	sort.Strings(tags)
	return fmt.Sprintf("%s|%s|%s", e.Domain, e.Language, strings.Join(tags, ","))
}

func succeeded(e *memcore.Episode) bool {
	return e.Outcome != nil && e.Outcome.Kind == memcore.OutcomeSuccess
}

func uniqueStrings(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

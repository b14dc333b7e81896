package memcore

import "fmt"

// ValidateNewEpisode checks the invariants that must hold before an episode
// is ever durably written: description size, step count is still zero at
// creation time so nothing to check there yet.
func ValidateNewEpisode(op, taskDescription string) error {
	if len(taskDescription) > MaxTaskDescriptionBytes {
		return NewValidation(op, "task_description", fmt.Errorf("description is %d bytes, max %d", len(taskDescription), MaxTaskDescriptionBytes))
	}
	return nil
}

// ValidateStep checks a step can be appended: step count bound and bounded
// input/output sizes (bounded the same as task descriptions, a generous
// enough limit for tool input/output blobs).
func ValidateStep(op string, existingSteps int, step ExecutionStep) error {
	if existingSteps >= MaxSteps {
		return NewResourceLimitExceeded(op, "steps")
	}
	if len(step.Input) > MaxTaskDescriptionBytes {
		return NewValidation(op, "step.input", fmt.Errorf("input is %d bytes, max %d", len(step.Input), MaxTaskDescriptionBytes))
	}
	if len(step.Output) > MaxTaskDescriptionBytes {
		return NewValidation(op, "step.output", fmt.Errorf("output is %d bytes, max %d", len(step.Output), MaxTaskDescriptionBytes))
	}
	return nil
}

// ValidateMetadataSize checks the ≤1 MiB metadata bound.
func ValidateMetadataSize(op string, metadata map[string]interface{}) error {
	if metadata == nil {
		return nil
	}
	size := 0
	for k, v := range metadata {
		size += len(k)
		size += estimateValueSize(v)
	}
	if size > MaxMetadataBytes {
		return NewValidation(op, "metadata", fmt.Errorf("metadata is ~%d bytes, max %d", size, MaxMetadataBytes))
	}
	return nil
}

func estimateValueSize(v interface{}) int {
	switch t := v.(type) {
	case string:
		return len(t)
	case []string:
		n := 0
		for _, s := range t {
			n += len(s)
		}
		return n
	default:
		return 32 // rough fixed estimate for scalars/nested structures
	}
}

// ValidateEpisodeTotalSize checks the ≤10 MiB total-serialized-size bound.
func ValidateEpisodeTotalSize(op string, e *Episode) error {
	size, err := e.SerializedSize()
	if err != nil {
		return NewStorage(op, err)
	}
	if size > MaxEpisodeBytes {
		return NewResourceLimitExceeded(op, "episode_size")
	}
	return nil
}

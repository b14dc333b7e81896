package pattern

import (
	"testing"
	"time"

	"github.com/d-o-hub/memcore/internal/memcore"
)

func TestPipelineExtractReturnsPatternsAcrossExtractors(t *testing.T) {
	cfg := testPatternConfig()
	cfg.MinSupportCount = 2
	cfg.MinSupportFraction = 0.1
	cfg.DecisionSuccessRateThreshold = 0.5

	base := time.Now()
	var episodes []*memcore.Episode
	for i := 0; i < 3; i++ {
		steps := []memcore.ExecutionStep{
			{Tool: "shell", Action: "run tests", Success: false, Observation: "flaky failure"},
			{Tool: "shell", Action: "retry", Success: true},
		}
		episodes = append(episodes, successfulEpisode("ep", steps, "coding", "go", []string{"ci"}, 0.7, base.Add(time.Duration(i)*time.Minute)))
	}

	p := New(cfg, nil, nil)
	patterns := p.Extract(episodes)

	if len(patterns) == 0 {
		t.Fatal("expected the pipeline to surface at least one pattern")
	}
}

func TestPipelineExtractEmptyWindowReturnsNoPatterns(t *testing.T) {
	p := New(testPatternConfig(), nil, nil)
	patterns := p.Extract(nil)
	if len(patterns) != 0 {
		t.Errorf("expected no patterns for an empty window, got %d", len(patterns))
	}
}

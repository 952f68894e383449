// Package matrix expands the reviewer roster into the concrete list of
// reviewer tasks to run for one PR event (spec §4.2).
package matrix

import (
	"fmt"

	"cerberus/internal/config"
)

// Task is one {reviewer, perspective, model_tier?, model_wave?} record.
type Task struct {
	Codename    string
	Perspective string
	ModelTier   string
	ModelWave   string
}

// Expand returns the ordered list of reviewer tasks for a run. wave and
// tier are optional selectors; an empty wave means "all reviewers, no wave
// gating applies to this expansion".
func Expand(c *config.Config, wave, tier string) ([]Task, error) {
	if c == nil {
		return nil, fmt.Errorf("matrix: nil config")
	}

	if wave != "" {
		if c.Waves == nil {
			return nil, fmt.Errorf("matrix: wave %q selected but no waves are configured", wave)
		}
		w, ok := c.Waves.Definitions[wave]
		if !ok {
			return nil, fmt.Errorf("matrix: unknown wave %q", wave)
		}
		tasks := make([]Task, 0, len(w.Reviewers))
		for _, codename := range w.Reviewers {
			r, err := c.GetReviewer(codename)
			if err != nil {
				return nil, fmt.Errorf("matrix: wave %q: %w", wave, err)
			}
			tasks = append(tasks, Task{
				Codename:    r.Codename,
				Perspective: r.Perspective,
				ModelTier:   tier,
				ModelWave:   wave,
			})
		}
		return tasks, nil
	}

	tasks := make([]Task, 0, len(c.Reviewers))
	for _, r := range c.Reviewers {
		tasks = append(tasks, Task{
			Codename:    r.Codename,
			Perspective: r.Perspective,
			ModelTier:   tier,
		})
	}
	return tasks, nil
}

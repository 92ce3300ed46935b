// Package pipeline reads the declarative CI pipeline description and
// translates it into platform-specific pipeline formats.
package pipeline

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Pipeline is the top level of a pipeline description: a set of named tasks.
type Pipeline struct {
	Tasks map[string]Task `yaml:"tasks,omitempty"`
}

// Task describes what to build and test on one platform.
type Task struct {
	Platform     string            `yaml:"platform,omitempty"`
	Environment  map[string]string `yaml:"environment,omitempty"`
	BuildTargets []string          `yaml:"build_targets,omitempty"`
	TestTargets  []string          `yaml:"test_targets,omitempty"`
}

// FromYAML parses a pipeline description. A task without an explicit platform
// uses its own name as the platform, which keeps the common single-platform
// case down to one line of YAML.
func FromYAML(content string) (*Pipeline, error) {
	var pipeline Pipeline
	if err := yaml.Unmarshal([]byte(content), &pipeline); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline description: %w", err)
	}

	for name, task := range pipeline.Tasks {
		if task.Platform == "" {
			task.Platform = name
			pipeline.Tasks[name] = task
		}
	}
	return &pipeline, nil
}

// Package buildkite builds Buildkite pipeline descriptions and serializes
// them to the YAML format the Buildkite agent expects.
package buildkite

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Pipeline is a Buildkite pipeline upload payload.
type Pipeline struct {
	Agents map[string]string `yaml:"agents,omitempty"`
	Env    map[string]string `yaml:"env,omitempty"`
	Steps  []Step            `yaml:"steps,omitempty"`
}

// AddCommandStep appends a command step to the pipeline.
func (p *Pipeline) AddCommandStep(step *CommandStep) {
	p.Steps = append(p.Steps, Step{Command: step})
}

// Agent sets one agent targeting rule on the pipeline.
func (p *Pipeline) Agent(key, value string) {
	if p.Agents == nil {
		p.Agents = map[string]string{}
	}
	p.Agents[key] = value
}

// ToYAML serializes the pipeline.
func (p *Pipeline) ToYAML() (string, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(p); err != nil {
		return "", fmt.Errorf("failed to serialize pipeline: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return "", fmt.Errorf("failed to serialize pipeline: %w", err)
	}
	return buf.String(), nil
}

// Step is one pipeline step. Only command steps exist today; the wrapper keeps
// the YAML untagged the way Buildkite wants it.
type Step struct {
	Command *CommandStep
}

func (s Step) MarshalYAML() (interface{}, error) {
	return s.Command, nil
}

// CommandStep runs one or more shell commands on an agent.
type CommandStep struct {
	Agents   map[string]string `yaml:"agents,omitempty"`
	Command  string            `yaml:"command,omitempty"`
	Commands []string          `yaml:"commands,omitempty"`
	Label    string            `yaml:"label,omitempty"`
	Plugins  []Plugin          `yaml:"plugins,omitempty"`
}

// AddCommand appends a command. A step with a single command serializes it as
// the scalar `command:` field; adding a second one migrates both into the
// `commands:` list.
func (s *CommandStep) AddCommand(command string) {
	if s.Command == "" && len(s.Commands) == 0 {
		s.Command = command
		return
	}
	if s.Command != "" {
		s.Commands = append(s.Commands, s.Command)
		s.Command = ""
	}
	s.Commands = append(s.Commands, command)
}

// Agent sets one agent targeting rule on the step.
func (s *CommandStep) Agent(key, value string) {
	if s.Agents == nil {
		s.Agents = map[string]string{}
	}
	s.Agents[key] = value
}

// AddDockerPlugin attaches the docker plugin at the given version.
func (s *CommandStep) AddDockerPlugin(version string, plugin *DockerPlugin) {
	s.Plugins = append(s.Plugins, Plugin{Name: "docker", Version: version, Properties: plugin})
}

// Plugin is a versioned Buildkite plugin reference. It serializes as a
// one-entry map keyed "name#version", which is the agent's wire format.
type Plugin struct {
	Name       string
	Version    string
	Properties interface{}
}

func (p Plugin) MarshalYAML() (interface{}, error) {
	return map[string]interface{}{
		fmt.Sprintf("%s#%s", p.Name, p.Version): p.Properties,
	}, nil
}

// DockerPlugin configures the Buildkite docker plugin.
type DockerPlugin struct {
	AlwaysPull           bool     `yaml:"always-pull"`
	Environment          []string `yaml:"environment,omitempty"`
	Image                string   `yaml:"image,omitempty"`
	Network              string   `yaml:"network,omitempty"`
	Privileged           bool     `yaml:"privileged"`
	PropagateEnvironment bool     `yaml:"propagate-environment"`
	PropagateUIDGID      bool     `yaml:"propagate-uid-gid"`
	Volumes              []string `yaml:"volumes,omitempty"`
}

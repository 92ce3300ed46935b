package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the agent-side configuration that accompanies a pipeline
// description. It carries no fields yet; parsing it still rejects files that
// are not valid YAML mappings.
type Config struct{}

// ConfigFromPath reads a config file.
func ConfigFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &config, nil
}

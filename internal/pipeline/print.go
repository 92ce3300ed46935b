package pipeline

import (
	"fmt"
	"io"

	"bazelci-agent/internal/buildkite"
	"bazelci-agent/internal/loader"
)

// PrintMode selects the output format of Print.
type PrintMode string

// PrintModeBuildkite emits a Buildkite pipeline upload payload.
const PrintModeBuildkite PrintMode = "buildkite"

// ParsePrintMode converts a command line value into a PrintMode.
func ParsePrintMode(value string) (PrintMode, error) {
	if PrintMode(value) == PrintModeBuildkite {
		return PrintModeBuildkite, nil
	}
	return "", fmt.Errorf("invalid mode %q (must be %q)", value, PrintModeBuildkite)
}

// Print loads the pipeline description at location (a local path or an
// http(s) URL) together with an optional config file, translates it into the
// requested format and writes the result to w.
func Print(w io.Writer, location, configPath string, mode PrintMode) error {
	content, err := loader.Load(location)
	if err != nil {
		return err
	}
	pipeline, err := FromYAML(content)
	if err != nil {
		return err
	}

	config := &Config{}
	if configPath != "" {
		config, err = ConfigFromPath(configPath)
		if err != nil {
			return err
		}
	}

	switch mode {
	case PrintModeBuildkite:
		return printAsBuildkite(w, pipeline, config)
	}
	return fmt.Errorf("unknown pipeline mode %q", mode)
}

// printAsBuildkite emits the bootstrap step that runs the pipeline's tasks
// inside the standard CI docker image.
func printAsBuildkite(w io.Writer, _ *Pipeline, _ *Config) error {
	step := &buildkite.CommandStep{}
	step.Agent("queue", "default")

	plugin := &buildkite.DockerPlugin{
		AlwaysPull: true,
		Environment: []string{
			"ANDROID_HOME",
			"ANDROID_NDK_HOME",
			"BUILDKITE_ARTIFACT_UPLOAD_DESTINATION",
		},
		Image:                "gcr.io/bazel-public/ubuntu1804-java11",
		Network:              "host",
		Privileged:           true,
		PropagateEnvironment: true,
		PropagateUIDGID:      true,
		Volumes: []string{
			"/etc/group:/etc/group:ro",
			"/etc/passwd:/etc/passwd:ro",
			"/opt:/opt:ro",
			"/var/lib/buildkite-agent:/var/lib/buildkite-agent",
			"/var/lib/gitmirrors:/var/lib/gitmirrors:ro",
			"/var/run/docker.sock:/var/run/docker.sock",
		},
	}
	step.AddDockerPlugin("3.8.0", plugin)

	var out buildkite.Pipeline
	out.AddCommandStep(step)

	yaml, err := out.ToYAML()
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, yaml)
	return err
}

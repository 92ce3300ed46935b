// Package artifact stages the log files of failing tests and uploads them
// while the Bazel build that produces them may still be running.
package artifact

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Mode selects the upload backend for a whole run.
type Mode string

const (
	// ModeDry reports what would be uploaded without touching the
	// filesystem or any backend. Useful for debugging.
	ModeDry Mode = "dry"

	// ModeBuildkite copies the logs into a staging directory and uploads
	// them as Buildkite artifacts via the buildkite-agent binary.
	ModeBuildkite Mode = "buildkite"
)

// ParseMode converts a command line value into a Mode.
func ParseMode(value string) (Mode, error) {
	switch Mode(value) {
	case ModeDry, ModeBuildkite:
		return Mode(value), nil
	}
	return "", fmt.Errorf("invalid mode %q (must be %q or %q)", value, ModeDry, ModeBuildkite)
}

// Uploader publishes a batch of artifacts. Paths may be relative, in which
// case they are resolved against dir. An empty batch must be a no-op.
type Uploader interface {
	Upload(dir string, artifacts []string) error
}

// DryUploader prints each artifact path instead of uploading it.
type DryUploader struct {
	// Out receives the report. Defaults to os.Stdout.
	Out io.Writer
}

func (u *DryUploader) Upload(dir string, artifacts []string) error {
	out := u.Out
	if out == nil {
		out = os.Stdout
	}
	for _, artifact := range artifacts {
		path := artifact
		if dir != "" && !filepath.IsAbs(artifact) {
			path = filepath.Join(dir, artifact)
		}
		fmt.Fprintf(out, "Upload artifact: %s\n", path)
	}
	return nil
}

// BuildkiteUploader runs `buildkite-agent artifact upload` with the staging
// directory as working directory. A non-zero exit of the agent is an upload
// failure; its stderr is included in the returned error.
type BuildkiteUploader struct{}

func (u *BuildkiteUploader) Upload(dir string, artifacts []string) error {
	if len(artifacts) == 0 {
		return nil
	}

	cmd := exec.Command("buildkite-agent", "artifact", "upload", strings.Join(artifacts, ";"))
	if dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("failed to resolve upload directory %s: %w", dir, err)
		}
		cmd.Dir = abs
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("buildkite-agent artifact upload failed: %w: %s", err, msg)
		}
		return fmt.Errorf("buildkite-agent artifact upload failed: %w", err)
	}
	return nil
}

// NewUploader returns the backend for the given mode.
func NewUploader(mode Mode) Uploader {
	if mode == ModeBuildkite {
		return &BuildkiteUploader{}
	}
	return &DryUploader{}
}

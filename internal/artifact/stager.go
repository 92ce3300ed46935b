package artifact

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"bazelci-agent/internal/bep"
)

// fileProtocol is the URI scheme Bazel uses for local test log files.
const fileProtocol = "file://"

// uploadStatuses are the test outcomes whose logs get uploaded.
var uploadStatuses = map[string]bool{
	"FAILED":  true,
	"TIMEOUT": true,
	"FLAKY":   true,
}

// Stager copies test log files into a staging directory laid out by target
// label, so an uploaded test.log is easy to associate with the target that
// produced it. The directory is created lazily, on the first real copy, and
// is left behind for the CI environment to clean up.
type Stager struct {
	mode   Mode
	logger *slog.Logger
	root   string
}

// NewStager returns a stager for the given mode. In dry mode no directory is
// ever created and no file is copied.
func NewStager(mode Mode, logger *slog.Logger) *Stager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stager{mode: mode, logger: logger}
}

// Dir returns the staging root, or "" if nothing has been staged yet.
func (s *Stager) Dir() string { return s.root }

// Stage filters testLogs to the outcomes worth uploading, copies their log
// files under the staging root and returns the staged paths relative to it.
// Output URIs that are not local files cannot be staged and are skipped with
// a warning.
func (s *Stager) Stage(testLogs []bep.TestLog) ([]string, error) {
	var artifacts []string
	for _, testLog := range testLogs {
		if !uploadStatuses[testLog.Status] {
			continue
		}

		// A single log keeps the plain test.log name; with multiple
		// attempts the first one is already attempt_1.log.
		attempt := 0
		if len(testLog.Paths) > 1 {
			attempt = 1
		}
		for _, uri := range testLog.Paths {
			if !strings.HasPrefix(uri, fileProtocol) {
				s.logger.Warn("test log is not a local file, skipping upload",
					"target", testLog.Target, "uri", uri)
				continue
			}
			source := strings.TrimPrefix(uri, fileProtocol)
			relative := testLabelToPath(testLog.Target, attempt)

			root, err := s.stagingRoot()
			if err != nil {
				return nil, err
			}
			if s.mode != ModeDry {
				destination := filepath.Join(root, relative)
				if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
					return nil, fmt.Errorf("failed to create directories for %s: %w", destination, err)
				}
				if err := copyFile(source, destination); err != nil {
					return nil, err
				}
			}

			artifacts = append(artifacts, relative)
			attempt++
		}
	}
	return artifacts, nil
}

// stagingRoot creates the staging directory on first use. Dry mode gets a
// fixed path under the temp dir that is never created, since it only shows up
// in the printed report.
func (s *Stager) stagingRoot() (string, error) {
	if s.root != "" {
		return s.root, nil
	}
	if s.mode == ModeDry {
		s.root = filepath.Join(os.TempDir(), "bazelci-agent-dry")
		return s.root, nil
	}
	root, err := os.MkdirTemp("", "bazelci-agent-")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	s.root = root
	return root, nil
}

// testLabelToPath maps a target label like //foo:bar to a relative staging
// path. '/' and ':' become the platform separator, the leading separators are
// trimmed, and the file name encodes which attempt the log belongs to.
func testLabelToPath(label string, attempt int) string {
	separator := string(os.PathSeparator)
	mapped := strings.Map(func(r rune) rune {
		if r == '/' || r == ':' {
			return os.PathSeparator
		}
		return r
	}, label)
	mapped = strings.TrimLeft(mapped, separator)

	name := "test.log"
	if attempt > 0 {
		name = fmt.Sprintf("attempt_%d.log", attempt)
	}
	return filepath.Join(mapped, name)
}

func copyFile(source, destination string) error {
	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", source, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(destination)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", destination, err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy file %s to %s: %w", source, destination, err)
	}
	return nil
}

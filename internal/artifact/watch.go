package artifact

import (
	"fmt"
	"log/slog"
	"time"

	"bazelci-agent/internal/bep"
)

const (
	// maxRetries is how many consecutive parse failures are tolerated
	// before the watch loop gives up.
	maxRetries = 5

	// pollInterval throttles re-reading a file whose producer writes
	// asynchronously.
	pollInterval = time.Second
)

// UploadOptions configures a watch run.
type UploadOptions struct {
	// Mode selects dry-run reporting or real Buildkite uploads.
	Mode Mode

	// Delay is an optional pause before the first read, for producers
	// that take a moment to create the file.
	Delay time.Duration

	// MonitorFlakyTests uploads the whole BEP file at the end of the run
	// when any test was flaky, so the flakiness can be investigated later.
	MonitorFlakyTests bool

	// Uploader overrides the backend chosen by Mode. Tests use this to
	// avoid spawning buildkite-agent.
	Uploader Uploader

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Sleep defaults to time.Sleep. Tests use this to skip real delays.
	Sleep func(time.Duration)
}

// Upload tails the BEP JSON file at buildEventJSONFile and uploads the logs of
// failing, timed out and flaky tests as they appear. It returns once the
// file's terminal message has been read, or with an error after maxRetries
// consecutive parse failures.
//
// Per-batch upload failures are logged and swallowed: one broken upload must
// not abort tailing the rest of the build. Only the optional end-of-run upload
// of the whole BEP file propagates its error.
func Upload(buildEventJSONFile string, opts UploadOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	uploader := opts.Uploader
	if uploader == nil {
		uploader = NewUploader(opts.Mode)
	}

	if opts.Delay > 0 {
		sleep(opts.Delay)
	}

	stager := NewStager(opts.Mode, logger)
	parser := bep.NewParser(buildEventJSONFile)
	retries := maxRetries
	cursor := 0

	for {
		if err := parser.Parse(); err != nil {
			retries--
			if retries == 0 {
				return err
			}
			logger.Warn("failed to parse build event file", "error", err)
		} else {
			retries = maxRetries

			// New entries are tracked by index, so structurally
			// identical results can never be uploaded twice.
			if err := stageAndUpload(stager, uploader, parser.TestLogs[cursor:]); err != nil {
				logger.Warn("failed to upload test logs", "error", err)
			}
			cursor = len(parser.TestLogs)

			if parser.Done() {
				break
			}
		}

		sleep(pollInterval)
	}

	if opts.MonitorFlakyTests && parser.HasTestStatus("FLAKY") {
		if err := uploader.Upload("", []string{buildEventJSONFile}); err != nil {
			return fmt.Errorf("failed to upload build event file %s: %w", buildEventJSONFile, err)
		}
	}

	return nil
}

func stageAndUpload(stager *Stager, uploader Uploader, testLogs []bep.TestLog) error {
	artifacts, err := stager.Stage(testLogs)
	if err != nil {
		return err
	}
	if len(artifacts) == 0 {
		return nil
	}
	return uploader.Upload(stager.Dir(), artifacts)
}

package main

import (
	"fmt"
	"os"
	"time"

	"bazelci-agent/internal/artifact"
	"bazelci-agent/internal/pipeline"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bazelci-agent",
	Short: "Bazel CI support agent",
	Long:  `bazelci-agent assists Bazel CI builds: it uploads the logs of failing tests as Buildkite artifacts and generates Buildkite pipeline descriptions.`,
}

var artifactCmd = &cobra.Command{
	Use:   "artifact",
	Short: "Work with build artifacts",
}

var (
	buildEventJSONFile string
	uploadMode         string
	uploadDelay        time.Duration
	monitorFlakyTests  bool
)

var artifactUploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload test logs from a build event JSON file",
	Long: `Upload the logs of failing, timed out and flaky tests as artifacts.

The build event JSON file is read in a loop while Bazel may still be writing
to it, until its last message is reached or too many consecutive read errors
occur. Newly finished tests are uploaded as they appear, renamed after the
target that produced them.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := artifact.ParseMode(uploadMode)
		if err != nil {
			return err
		}
		return artifact.Upload(buildEventJSONFile, artifact.UploadOptions{
			Mode:              mode,
			Delay:             uploadDelay,
			MonitorFlakyTests: monitorFlakyTests,
		})
	},
}

var (
	pipelineConfig string
	pipelineMode   string
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Work with pipeline descriptions",
}

var pipelinePrintCmd = &cobra.Command{
	Use:   "print PIPELINE",
	Short: "Print a CI pipeline in a platform-specific format",
	Long: `Load a declarative pipeline description from a local path or an http(s) URL
and print it to stdout in the format of the selected CI platform.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := pipeline.ParsePrintMode(pipelineMode)
		if err != nil {
			return err
		}
		return pipeline.Print(os.Stdout, args[0], pipelineConfig, mode)
	},
}

func init() {
	artifactUploadCmd.Flags().StringVar(&buildEventJSONFile, "build_event_json_file", "", "Path of the build event JSON file written by Bazel")
	artifactUploadCmd.Flags().StringVar(&uploadMode, "mode", string(artifact.ModeDry), "Where to upload: 'dry' only prints, 'buildkite' uploads as Buildkite artifacts")
	artifactUploadCmd.Flags().DurationVar(&uploadDelay, "delay", 0, "Wait this long before the first read, e.g. 5s")
	artifactUploadCmd.Flags().BoolVar(&monitorFlakyTests, "monitor_flaky_tests", false, "Upload the whole build event JSON file at the end if any test was flaky")
	_ = artifactUploadCmd.MarkFlagRequired("build_event_json_file")
	artifactCmd.AddCommand(artifactUploadCmd)
	rootCmd.AddCommand(artifactCmd)

	pipelinePrintCmd.Flags().StringVar(&pipelineConfig, "config", "", "Path of an optional agent config file")
	pipelinePrintCmd.Flags().StringVar(&pipelineMode, "mode", string(pipeline.PrintModeBuildkite), "Output format (only 'buildkite' today)")
	pipelineCmd.AddCommand(pipelinePrintCmd)
	rootCmd.AddCommand(pipelineCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

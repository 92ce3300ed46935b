package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type uploadCall struct {
	dir       string
	artifacts []string
}

type fakeUploader struct {
	calls []uploadCall
	errs  []error // errs[i] is returned by call i; missing entries mean nil
}

func (u *fakeUploader) Upload(dir string, artifacts []string) error {
	call := len(u.calls)
	u.calls = append(u.calls, uploadCall{dir: dir, artifacts: artifacts})
	if call < len(u.errs) {
		return u.errs[call]
	}
	return nil
}

func summaryLine(label, status string, uris ...string) string {
	failed := ""
	for i, uri := range uris {
		if i > 0 {
			failed += ","
		}
		failed += fmt.Sprintf(`{"uri":%q}`, uri)
	}
	return fmt.Sprintf(`{"id":{"testSummary":{"label":%q}},"testSummary":{"overallStatus":%q,"failed":[%s]}}`+"\n",
		label, status, failed)
}

const lastMessageLine = `{"lastMessage": true}` + "\n"

func writeBEPFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "build_events.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestUpload_FailedTestEndToEnd(t *testing.T) {
	uri := "file:///tmp/x/test.log"
	path := writeBEPFile(t, summaryLine("//foo:bar", "FAILED", uri)+lastMessageLine)

	uploader := &fakeUploader{}
	var sleeps []time.Duration
	err := Upload(path, UploadOptions{
		Mode:     ModeDry,
		Uploader: uploader,
		Logger:   testLogger(),
		Sleep:    func(d time.Duration) { sleeps = append(sleeps, d) },
	})
	require.NoError(t, err)

	require.Len(t, uploader.calls, 1)
	require.Equal(t, []string{filepath.Join("foo", "bar", "test.log")}, uploader.calls[0].artifacts)
	require.NotEmpty(t, uploader.calls[0].dir)

	// The terminal message arrived on the first pass, so the loop never
	// slept.
	require.Empty(t, sleeps)
}

func TestUpload_StartupDelay(t *testing.T) {
	path := writeBEPFile(t, lastMessageLine)

	var sleeps []time.Duration
	err := Upload(path, UploadOptions{
		Mode:     ModeDry,
		Delay:    5 * time.Second,
		Uploader: &fakeUploader{},
		Logger:   testLogger(),
		Sleep:    func(d time.Duration) { sleeps = append(sleeps, d) },
	})
	require.NoError(t, err)

	require.Equal(t, []time.Duration{5 * time.Second}, sleeps)
}

func TestUpload_PassingTestsUploadNothing(t *testing.T) {
	path := writeBEPFile(t, summaryLine("//foo:ok", "PASSED", "file:///tmp/x/test.log")+lastMessageLine)

	uploader := &fakeUploader{}
	err := Upload(path, UploadOptions{
		Mode:     ModeDry,
		Uploader: uploader,
		Logger:   testLogger(),
		Sleep:    func(time.Duration) {},
	})
	require.NoError(t, err)

	require.Empty(t, uploader.calls)
}

func TestUpload_NewEntriesUploadedOncePerBatch(t *testing.T) {
	path := writeBEPFile(t, summaryLine("//foo:bar", "FAILED", "file:///tmp/x/test.log"))

	// The producer appends the rest of the build while the loop sleeps.
	appended := false
	uploader := &fakeUploader{}
	err := Upload(path, UploadOptions{
		Mode:     ModeDry,
		Uploader: uploader,
		Logger:   testLogger(),
		Sleep: func(time.Duration) {
			if appended {
				return
			}
			appended = true
			file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
			require.NoError(t, err)
			_, err = file.WriteString(summaryLine("//foo:baz", "TIMEOUT", "file:///tmp/y/test.log") + lastMessageLine)
			require.NoError(t, err)
			require.NoError(t, file.Close())
		},
	})
	require.NoError(t, err)

	require.Len(t, uploader.calls, 2)
	require.Equal(t, []string{filepath.Join("foo", "bar", "test.log")}, uploader.calls[0].artifacts)
	require.Equal(t, []string{filepath.Join("foo", "baz", "test.log")}, uploader.calls[1].artifacts)
}

func TestUpload_RetryBudgetExhausted(t *testing.T) {
	path := writeBEPFile(t, `{"id": {"truncat`)

	var sleeps []time.Duration
	err := Upload(path, UploadOptions{
		Mode:     ModeDry,
		Uploader: &fakeUploader{},
		Logger:   testLogger(),
		Sleep:    func(d time.Duration) { sleeps = append(sleeps, d) },
	})
	require.Error(t, err)

	require.Contains(t, err.Error(), fmt.Sprintf("%s:1:", path))
	// Five attempts, with a pause between each pair of attempts.
	require.Len(t, sleeps, 4)
}

func TestUpload_PerBatchFailureIsSwallowed(t *testing.T) {
	path := writeBEPFile(t, summaryLine("//foo:bar", "FAILED", "file:///tmp/x/test.log")+lastMessageLine)

	uploader := &fakeUploader{errs: []error{errors.New("upload backend down")}}
	err := Upload(path, UploadOptions{
		Mode:     ModeDry,
		Uploader: uploader,
		Logger:   testLogger(),
		Sleep:    func(time.Duration) {},
	})
	require.NoError(t, err)
	require.Len(t, uploader.calls, 1)
}

func TestUpload_MonitorFlakyTestsUploadsWholeFile(t *testing.T) {
	path := writeBEPFile(t, summaryLine("//foo:flaky", "FLAKY", "file:///tmp/x/test.log")+lastMessageLine)

	uploader := &fakeUploader{}
	err := Upload(path, UploadOptions{
		Mode:              ModeDry,
		MonitorFlakyTests: true,
		Uploader:          uploader,
		Logger:            testLogger(),
		Sleep:             func(time.Duration) {},
	})
	require.NoError(t, err)

	require.Len(t, uploader.calls, 2)
	final := uploader.calls[1]
	require.Equal(t, "", final.dir)
	require.Equal(t, []string{path}, final.artifacts)
}

func TestUpload_MonitorFlakyTestsFailurePropagates(t *testing.T) {
	path := writeBEPFile(t, summaryLine("//foo:flaky", "FLAKY", "file:///tmp/x/test.log")+lastMessageLine)

	uploader := &fakeUploader{errs: []error{nil, errors.New("upload backend down")}}
	err := Upload(path, UploadOptions{
		Mode:              ModeDry,
		MonitorFlakyTests: true,
		Uploader:          uploader,
		Logger:            testLogger(),
		Sleep:             func(time.Duration) {},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "upload backend down")
}

func TestUpload_NoFlakyTestsSkipsFinalUpload(t *testing.T) {
	path := writeBEPFile(t, summaryLine("//foo:bar", "FAILED", "file:///tmp/x/test.log")+lastMessageLine)

	uploader := &fakeUploader{}
	err := Upload(path, UploadOptions{
		Mode:              ModeDry,
		MonitorFlakyTests: true,
		Uploader:          uploader,
		Logger:            testLogger(),
		Sleep:             func(time.Duration) {},
	})
	require.NoError(t, err)
	require.Len(t, uploader.calls, 1)
}

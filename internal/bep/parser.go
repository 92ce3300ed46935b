package bep

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// TestLog is one test target's result together with the log files of its
// failed runs. Entries are append-only; the parser never rewrites them.
type TestLog struct {
	Target string
	Status string
	Paths  []string
}

// Parser incrementally reads a BEP JSON file that a Bazel process may still be
// writing. It remembers the byte offset of the first undecoded line, so each
// Parse call picks up exactly where the previous one stopped. The file handle
// is not kept open between calls; truncation or rotation between calls shows
// up as ordinary read errors instead of undefined behavior.
type Parser struct {
	path   string
	offset uint64
	line   int
	done   bool

	// TestLogs accumulates one entry per test summary event, in file order.
	TestLogs []TestLog
}

// NewParser returns a parser positioned at the start of the given file. The
// file does not need to exist yet; Parse reports the open error.
func NewParser(path string) *Parser {
	return &Parser{path: path, line: 1}
}

// Done reports whether the terminal "last message" event has been read.
func (p *Parser) Done() bool { return p.done }

// Offset returns the byte offset of the first line that has not been decoded.
func (p *Parser) Offset() uint64 { return p.offset }

// Line returns the 1-based number of the line that will be decoded next.
func (p *Parser) Line() int { return p.line }

// Parse reads the file from the stored offset until the last message is
// reached or the file runs out of bytes. Reaching EOF without a last message
// is success: the producer is still writing and the caller should retry later.
//
// A line that does not decode as a JSON object leaves offset and line number
// untouched and is reported as an error carrying both, so the next call
// re-reads the same bytes. This is deliberate: the line is usually a partial
// write that will be complete by then.
func (p *Parser) Parse() error {
	file, err := os.Open(p.path)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", p.path, err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(int64(p.offset), io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek file %s to offset %d: %w", p.path, p.offset, err)
	}

	reader := bufio.NewReader(file)
	for {
		line, readErr := reader.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return fmt.Errorf("failed to read file %s: %w", p.path, readErr)
		}
		if len(line) == 0 {
			return nil
		}

		// A final line without a trailing newline is still offered to the
		// decoder. If it is a truncated write it fails and gets retried;
		// if it already decodes, it is consumed like any other record.
		event, decodeErr := ParseBuildEvent([]byte(line))
		if decodeErr != nil {
			return fmt.Errorf("%s:%d: %w", p.path, p.line, decodeErr)
		}

		p.offset += uint64(len(line))
		p.line++

		if event.IsLastMessage() {
			p.done = true
			return nil
		}
		if event.IsTestSummary() {
			p.TestLogs = append(p.TestLogs, TestLog{
				Target: event.Label(),
				Status: event.OverallStatus(),
				Paths:  event.FailedOutputURIs(),
			})
		}

		if readErr == io.EOF {
			return nil
		}
	}
}

// HasTestStatus reports whether any accumulated test log has the given status.
func (p *Parser) HasTestStatus(status string) bool {
	for _, testLog := range p.TestLogs {
		if testLog.Status == status {
			return true
		}
	}
	return false
}

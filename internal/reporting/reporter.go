// -- internal/reporting/reporter.go --
package reporting

import (
	"fmt"
	"io"
	"os"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
)

// Reporter renders run batches to an output.
type Reporter interface {
	// Write renders one batch.
	Write(batch schemas.RunBatch) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a new reporter based on the specified format and output path.
func New(format, outputPath string) (Reporter, error) {
	switch format {
	case "json", "text", "html":
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}
	return NewWithWriter(format, writer)
}

// NewWithWriter creates a reporter over an open writer, taking ownership of it.
func NewWithWriter(format string, w io.WriteCloser) (Reporter, error) {
	switch format {
	case "json":
		return NewJSONReporter(w), nil
	case "text":
		return NewTextReporter(w), nil
	case "html":
		return NewHTMLReporter(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// NopCloser adapts a writer the caller keeps ownership of.
func NopCloser(w io.Writer) io.WriteCloser {
	return &nopWriteCloser{w}
}

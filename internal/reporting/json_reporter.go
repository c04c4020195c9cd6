package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
)

// JSONReport is the document the json reporter emits per batch.
type JSONReport struct {
	Timestamp string                         `json:"timestamp"`
	Summary   schemas.RunSummary             `json:"summary"`
	Failing   []schemas.ElementOutcomeRecord `json:"failing"`
}

// JSONReporter writes one indented JSON document per batch.
type JSONReporter struct {
	mu     sync.Mutex
	writer io.WriteCloser
}

// NewJSONReporter takes ownership of w.
func NewJSONReporter(w io.WriteCloser) *JSONReporter {
	return &JSONReporter{writer: w}
}

// Write implements Reporter.
func (r *JSONReporter) Write(batch schemas.RunBatch) error {
	report := JSONReport{
		Timestamp: batch.Timestamp,
		Summary:   batch.Summarize(),
		Failing:   failing(batch),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	enc := json.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode json report: %w", err)
	}
	return nil
}

// Close implements Reporter.
func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer.Close()
}

// failing lists the records judged not working, never nil.
func failing(batch schemas.RunBatch) []schemas.ElementOutcomeRecord {
	out := []schemas.ElementOutcomeRecord{}
	for _, rec := range batch.Elements {
		if !rec.IsWorking {
			out = append(out, rec)
		}
	}
	return out
}

package schemas

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// -- Outcome Schemas --

// TimestampLayout is the wall-clock format used inside outcome batches.
const TimestampLayout = "2006-01-02 15:04:05"

// RunIDLayout formats the run identifier, also used in the batch file name.
const RunIDLayout = "20060102_150405"

// TriState is a boolean signal that may be undetermined. It marshals to
// JSON true, false or null.
type TriState int8

const (
	Undetermined TriState = iota
	False
	True
)

// TriStateOf lifts a plain boolean.
func TriStateOf(b bool) TriState {
	if b {
		return True
	}
	return False
}

// IsTrue reports an explicit true.
func (t TriState) IsTrue() bool { return t == True }

// IsFalse reports an explicit false; Undetermined is not false.
func (t TriState) IsFalse() bool { return t == False }

func (t TriState) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "undetermined"
	}
}

// MarshalJSON implements json.Marshaler.
func (t TriState) MarshalJSON() ([]byte, error) {
	switch t {
	case True:
		return []byte("true"), nil
	case False:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *TriState) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true":
		*t = True
	case "false":
		*t = False
	case "null":
		*t = Undetermined
	default:
		return fmt.Errorf("invalid tri-state value %s", data)
	}
	return nil
}

// ElementOutcomeRecord is the result of exercising one element. The JSON field
// names are read by downstream report aggregation and must stay stable.
type ElementOutcomeRecord struct {
	ID                   uuid.UUID `json:"-"`
	PageURL              string    `json:"page_url"`
	ElementType          Role      `json:"element_type"`
	Selector             string    `json:"selector"`
	Description          string    `json:"description"`
	Success              bool      `json:"success"`
	IsWorking            bool      `json:"is_working"`
	ErrorMessage         *string   `json:"error_message"`
	ScreenshotBefore     *string   `json:"screenshot_before"`
	ScreenshotAfter      *string   `json:"screenshot_after"`
	PageChangeDetected   bool      `json:"page_change_detected"`
	VisualChangeDetected TriState  `json:"visual_change_detected"`
	Timestamp            string    `json:"timestamp"`
}

// Error returns the recorded error message or the empty string.
func (r ElementOutcomeRecord) Error() string {
	if r.ErrorMessage == nil {
		return ""
	}
	return *r.ErrorMessage
}

// RunBatch is the single JSON document written per run.
type RunBatch struct {
	RunID     string                 `json:"test_id"`
	Timestamp string                 `json:"timestamp"`
	Elements  []ElementOutcomeRecord `json:"elements"`
}

// RoleSummary counts outcomes for one role.
type RoleSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Working    int `json:"working"`
}

// RunSummary aggregates a batch.
type RunSummary struct {
	RunID      string               `json:"test_id"`
	Total      int                  `json:"total"`
	Successful int                  `json:"successful"`
	Working    int                  `json:"working"`
	ByType     map[Role]RoleSummary `json:"by_type"`
}

// Summarize counts totals and per-role figures for a batch.
func (b RunBatch) Summarize() RunSummary {
	s := RunSummary{RunID: b.RunID, ByType: make(map[Role]RoleSummary)}
	for _, r := range b.Elements {
		rs := s.ByType[r.ElementType]
		s.Total++
		rs.Total++
		if r.Success {
			s.Successful++
			rs.Successful++
		}
		if r.IsWorking {
			s.Working++
			rs.Working++
		}
		s.ByType[r.ElementType] = rs
	}
	return s
}

var (
	_ json.Marshaler   = TriState(0)
	_ json.Unmarshaler = (*TriState)(nil)
)

package effectiveness_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
	"github.com/xkilldash9x/uiprobe-cli/internal/effectiveness"
)

func errPtr(s string) *string { return &s }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		rec  schemas.ElementOutcomeRecord
		want bool
	}{
		// input
		{"input always works", schemas.ElementOutcomeRecord{ElementType: schemas.RoleInput, ErrorMessage: errPtr("timeout")}, true},

		// checkbox, radio, select
		{"checkbox success", schemas.ElementOutcomeRecord{ElementType: schemas.RoleCheckbox, Success: true}, true},
		{"radio failure", schemas.ElementOutcomeRecord{ElementType: schemas.RoleRadio}, false},
		{"select failure", schemas.ElementOutcomeRecord{ElementType: schemas.RoleSelect, ErrorMessage: errPtr("not visible")}, false},

		// link
		{"link failed", schemas.ElementOutcomeRecord{ElementType: schemas.RoleLink, Selector: "a[href='/x']"}, false},
		{"link page change", schemas.ElementOutcomeRecord{ElementType: schemas.RoleLink, Success: true, Selector: "a[href='#top']", PageChangeDetected: true}, true},
		{"link visual change", schemas.ElementOutcomeRecord{ElementType: schemas.RoleLink, Success: true, Selector: "#nav", VisualChangeDetected: schemas.True}, true},
		{"anchor only link", schemas.ElementOutcomeRecord{ElementType: schemas.RoleLink, Success: true, Selector: "a[href='#']", VisualChangeDetected: schemas.False}, false},
		{"anchor in description", schemas.ElementOutcomeRecord{ElementType: schemas.RoleLink, Success: true, Selector: "a", Description: "#section"}, false},
		{"handler link", schemas.ElementOutcomeRecord{ElementType: schemas.RoleLink, Success: true, Selector: "a[data-action='x']"}, true},
		{"navigation wording no change", schemas.ElementOutcomeRecord{ElementType: schemas.RoleLink, Success: true, Selector: "a[href='/login']", Description: "Log in to your Account", VisualChangeDetected: schemas.False}, false},
		{"navigation wording undetermined visual", schemas.ElementOutcomeRecord{ElementType: schemas.RoleLink, Success: true, Selector: "a[href='/login']", Description: "Sign in", VisualChangeDetected: schemas.Undetermined}, true},
		{"plain link default", schemas.ElementOutcomeRecord{ElementType: schemas.RoleLink, Success: true, Selector: "a[href='/about']", Description: "About", VisualChangeDetected: schemas.False}, true},

		// button
		{"button success", schemas.ElementOutcomeRecord{ElementType: schemas.RoleButton, Success: true}, true},
		{"button plain failure", schemas.ElementOutcomeRecord{ElementType: schemas.RoleButton, Selector: "button", Description: "Menu", ErrorMessage: errPtr("boom")}, false},
		{"button not visible", schemas.ElementOutcomeRecord{ElementType: schemas.RoleButton, ErrorMessage: errPtr("element is not visible")}, true},
		{"button detached", schemas.ElementOutcomeRecord{ElementType: schemas.RoleButton, Selector: "button", Description: "x", ErrorMessage: errPtr("Element is not attached to the DOM")}, true},
		{"button nth-match functional text", schemas.ElementOutcomeRecord{ElementType: schemas.RoleButton, Selector: "button:has-text('Save'):nth-match(3)", Description: "Save", ErrorMessage: errPtr(`Error: "nth-match" failed`)}, true},
		{"button store badge", schemas.ElementOutcomeRecord{ElementType: schemas.RoleButton, Selector: "button:nth-match(2)", Description: "Get it on Google Play", ErrorMessage: errPtr(`Error: "nth-match" failed`)}, false},
		{"button in anchor", schemas.ElementOutcomeRecord{ElementType: schemas.RoleButton, Selector: "a[href='/go'] > button", Description: "Go", ErrorMessage: errPtr("boom")}, true},
		{"button styling signals", schemas.ElementOutcomeRecord{ElementType: schemas.RoleButton, Selector: "button[class*='rounded transition']", Description: "x", ErrorMessage: errPtr("boom")}, true},
		{"button single styling signal", schemas.ElementOutcomeRecord{ElementType: schemas.RoleButton, Selector: "button[class*='rounded']", Description: "x", ErrorMessage: errPtr("boom")}, false},
		{"button aria", schemas.ElementOutcomeRecord{ElementType: schemas.RoleButton, Selector: "button[aria-label='close']", Description: "x", ErrorMessage: errPtr("boom")}, true},
		{"button selector issue with action word", schemas.ElementOutcomeRecord{ElementType: schemas.RoleButton, Selector: "button", Description: "Submit order", ErrorMessage: errPtr("strict mode violation: resolved to multiple elements")}, true},
		{"button selector issue without action word", schemas.ElementOutcomeRecord{ElementType: schemas.RoleButton, Selector: "button", Description: "Menu", ErrorMessage: errPtr("resolved to 0 elements")}, false},

		// form
		{"form failed", schemas.ElementOutcomeRecord{ElementType: schemas.RoleForm, Selector: "#f"}, false},
		{"form page change", schemas.ElementOutcomeRecord{ElementType: schemas.RoleForm, Success: true, Selector: "form[class*='submit']", PageChangeDetected: true, VisualChangeDetected: schemas.False}, true},
		{"submit form no change", schemas.ElementOutcomeRecord{ElementType: schemas.RoleForm, Success: true, Selector: "form[class*='Submit']", VisualChangeDetected: schemas.False}, false},
		{"submit form undetermined", schemas.ElementOutcomeRecord{ElementType: schemas.RoleForm, Success: true, Selector: "form[class*='submit']"}, true},
		{"plain form no change", schemas.ElementOutcomeRecord{ElementType: schemas.RoleForm, Success: true, Selector: "#login", VisualChangeDetected: schemas.False}, true},

		// generic interactive roles
		{"clickable undetermined visual", schemas.ElementOutcomeRecord{ElementType: schemas.RoleClickable, Success: true}, true},
		{"tab no change", schemas.ElementOutcomeRecord{ElementType: schemas.RoleTab, Success: true, VisualChangeDetected: schemas.False}, true},
		{"dialog failed no change", schemas.ElementOutcomeRecord{ElementType: schemas.RoleDialog, VisualChangeDetected: schemas.False}, false},
		{"menu page change", schemas.ElementOutcomeRecord{ElementType: schemas.RoleMenu, Success: true, PageChangeDetected: true, VisualChangeDetected: schemas.False}, true},
		{"toggle failed", schemas.ElementOutcomeRecord{ElementType: schemas.RoleToggle, VisualChangeDetected: schemas.True}, false},

		// everything else
		{"hover success", schemas.ElementOutcomeRecord{ElementType: schemas.RoleHover, Success: true, VisualChangeDetected: schemas.False}, true},
		{"page failure", schemas.ElementOutcomeRecord{ElementType: schemas.RolePage, ErrorMessage: errPtr("timeout")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, effectiveness.Classify(tt.rec))
		})
	}
}

func TestInputsAlwaysWork(t *testing.T) {
	for _, success := range []bool{true, false} {
		for _, vis := range []schemas.TriState{schemas.Undetermined, schemas.False, schemas.True} {
			rec := schemas.ElementOutcomeRecord{
				ElementType:          schemas.RoleInput,
				Success:              success,
				VisualChangeDetected: vis,
				ErrorMessage:         errPtr("resolved to 0 elements"),
			}
			assert.True(t, effectiveness.Classify(rec))
		}
	}
}

func TestUndeterminedVisualIsNotFalse(t *testing.T) {
	roles := []schemas.Role{
		schemas.RoleInteractive, schemas.RoleClickable, schemas.RoleTab, schemas.RoleMenu,
		schemas.RoleDialog, schemas.RoleAlert, schemas.RoleToggle,
	}
	for _, r := range roles {
		rec := schemas.ElementOutcomeRecord{ElementType: r, Success: true, VisualChangeDetected: schemas.Undetermined}
		assert.True(t, effectiveness.Classify(rec), "role %s", r)
	}
}

func TestSuccessfulInteractiveWithoutVisualChange(t *testing.T) {
	roles := []schemas.Role{
		schemas.RoleInteractive, schemas.RoleClickable, schemas.RoleTab, schemas.RoleMenu,
		schemas.RoleDialog, schemas.RoleAlert, schemas.RoleToggle,
	}
	for _, r := range roles {
		rec := schemas.ElementOutcomeRecord{ElementType: r, Success: true, VisualChangeDetected: schemas.False}
		assert.True(t, effectiveness.Classify(rec), "role %s", r)
	}
}

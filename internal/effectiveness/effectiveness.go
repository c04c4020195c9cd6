// Package effectiveness judges whether an exercised element works as intended,
// as opposed to merely having been clicked without an error.
//
// The rules are heuristic on purpose. Error messages produced by the browser
// are matched verbatim, so they must be recorded unaltered.
package effectiveness

import (
	"strings"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
)

// NavigationTerms mark links expected to navigate. Such a link that changed
// nothing is considered broken.
var NavigationTerms = []string{"login", "sign in", "register", "signup", "sign up", "checkout", "account"}

// FunctionalButtonText marks buttons whose failure is more likely a selector
// problem than a broken control. Matched case sensitively.
var FunctionalButtonText = []string{
	"Continue with", "Sign", "Login", "Submit", "Send", "Search",
	"Apply", "Register", "Create", "Update", "Delete", "Save",
	"Next", "Previous", "Back", "Forward", "Confirm",
}

// NthMatchErrors are engine messages raised for nth-match selectors.
var NthMatchErrors = []string{"expects non-empty selector", `Error: "nth-match"`}

// TechnicalIssues are errors showing the element exists but could not be
// interacted with at that moment.
var TechnicalIssues = []string{
	"not visible", "not clickable", "element is not visible",
	"timeout", "element not visible", "element is not attached",
	"Element is not attached to the DOM", "detached from the DOM",
	"element not interactable", "element not stable",
}

// SelectorIssues are errors about the selector rather than the element.
var SelectorIssues = []string{
	"expects non-empty selector", `Error: "nth-match"`, "resolved to 0 elements",
	"strict mode violation", "resolved to multiple elements",
}

// ActionWords rescue buttons that failed on a selector issue. Matched against
// the lowercased description.
var ActionWords = []string{"continue", "sign", "login", "submit"}

// StoreBadges are footer badges that usually only look like buttons.
var StoreBadges = []string{"App Store", "Google Play"}

// Classify decides the is-working flag of a raw outcome record.
func Classify(rec schemas.ElementOutcomeRecord) bool {
	switch rec.ElementType {
	case schemas.RoleInput:
		return true
	case schemas.RoleCheckbox, schemas.RoleRadio, schemas.RoleSelect:
		return rec.Success
	case schemas.RoleLink:
		return link(rec)
	case schemas.RoleButton:
		return button(rec)
	case schemas.RoleForm:
		return form(rec)
	case schemas.RoleInteractive, schemas.RoleClickable, schemas.RoleTab, schemas.RoleMenu,
		schemas.RoleDialog, schemas.RoleAlert, schemas.RoleToggle:
		return interactive(rec)
	default:
		return rec.Success
	}
}

func link(rec schemas.ElementOutcomeRecord) bool {
	switch {
	case !rec.Success:
		return false
	case rec.PageChangeDetected, rec.VisualChangeDetected.IsTrue():
		return true
	case strings.Contains(rec.Description, "#"), strings.Contains(rec.Selector, "#"):
		return false
	case strings.Contains(rec.Selector, "onclick"), strings.Contains(rec.Selector, "data-"):
		return true
	case rec.Description != "" && containsAny(strings.ToLower(rec.Description), NavigationTerms) &&
		rec.VisualChangeDetected.IsFalse():
		return false
	}
	return true
}

func button(rec schemas.ElementOutcomeRecord) bool {
	working := rec.Success
	errText := rec.Error()
	sel, desc := rec.Selector, rec.Description

	if !rec.Success && sel != "" && desc != "" {
		if strings.Contains(sel, "nth-match") && containsAny(errText, NthMatchErrors) {
			if containsAny(desc, FunctionalButtonText) {
				working = true
			} else if containsAny(desc, StoreBadges) && !strings.Contains(sel, "href") {
				working = false
			}
		}
		if strings.Contains(sel, "<a") || strings.Contains(sel, "href=") || strings.Contains(sel, "a[href") {
			working = true
		}
		if styleSignals(sel) >= 2 {
			working = true
		}
		if strings.Contains(sel, "aria-") {
			working = true
		}
	}

	if errText != "" {
		if containsAny(errText, TechnicalIssues) {
			working = true
		}
		if containsAny(errText, SelectorIssues) && desc != "" && containsAny(strings.ToLower(desc), ActionWords) {
			working = true
		}
	}
	return working
}

// styleSignals counts the utility classes in a selector that suggest an
// interactive control.
func styleSignals(sel string) int {
	signals := []bool{
		strings.Contains(sel, "hover:"),
		strings.Contains(sel, "transition"),
		strings.Contains(sel, "rounded"),
		strings.Contains(sel, "focus:"),
		strings.Contains(sel, "ring-"),
		strings.Contains(sel, "bg-") && (strings.Contains(sel, "hover:bg-") || strings.Contains(sel, "text-white")),
	}
	n := 0
	for _, s := range signals {
		if s {
			n++
		}
	}
	return n
}

func form(rec schemas.ElementOutcomeRecord) bool {
	switch {
	case !rec.Success:
		return false
	case rec.PageChangeDetected:
		return true
	case strings.Contains(strings.ToLower(rec.Selector), "submit"):
		return !rec.VisualChangeDetected.IsFalse()
	}
	return true
}

// interactive trusts the interaction result. A change or an undetermined
// visual signal only confirms success; an unchanged screen does not demote a
// control that accepted the action.
func interactive(rec schemas.ElementOutcomeRecord) bool {
	return rec.Success
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

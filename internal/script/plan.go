// internal/script/plan.go
package script

import (
	"strings"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
	"github.com/xkilldash9x/uiprobe-cli/internal/browser/dom"
	"github.com/xkilldash9x/uiprobe-cli/internal/classifier"
)

// maxDescriptionLen bounds step descriptions.
const maxDescriptionLen = 100

// PriorityOrder is the order roles are exercised in. Data entry comes before
// clicks so a navigating click does not discard half-filled forms. Roles the
// head of the list does not name follow, so every candidate gets a step.
var PriorityOrder = []schemas.Role{
	schemas.RoleInput, schemas.RoleSelect, schemas.RoleCheckbox, schemas.RoleRadio,
	schemas.RoleButton, schemas.RoleForm, schemas.RoleLink, schemas.RoleTab,
	schemas.RoleMenu, schemas.RoleDialog, schemas.RoleAlert,
	schemas.RoleSlider, schemas.RoleToggle, schemas.RoleDatepicker, schemas.RoleFile,
	schemas.RoleInteractive, schemas.RoleClickable, schemas.RoleFocusable, schemas.RoleHover,
}

// Plan turns the candidates of one page into its ordered step list. Forms are
// announced first by marker steps; a non-form candidate sharing a form's
// selector is skipped.
func Plan(url string, roles classifier.RoleMap) schemas.PagePlan {
	plan := schemas.PagePlan{URL: url}

	formSelectors := make(map[string]bool)
	for _, form := range roles[schemas.RoleForm] {
		plan.Steps = append(plan.Steps, schemas.InteractionStep{
			Kind:        schemas.StepMarker,
			Role:        schemas.RoleForm,
			Selector:    form.Selector,
			Description: Describe(form),
		})
		formSelectors[form.Selector] = true
	}

	for _, role := range PriorityOrder {
		for _, c := range roles[role] {
			if role != schemas.RoleForm && formSelectors[c.Selector] {
				continue
			}
			plan.Steps = append(plan.Steps, stepFor(role, c))
		}
	}
	return plan
}

func stepFor(role schemas.Role, c schemas.ElementCandidate) schemas.InteractionStep {
	action := c.Action
	if action == "" {
		action = schemas.ActionFor(role)
	}
	step := schemas.InteractionStep{
		Kind:        schemas.StepKindFor(action),
		Role:        role,
		Selector:    c.Selector,
		Description: Describe(c),
	}
	switch step.Kind {
	case schemas.StepFill:
		step.Value = FillValue(c)
	case schemas.StepSelectOption:
		step.Value = "1"
	case schemas.StepSlide:
		step.Value = "50"
	}
	return step
}

// Describe is the label printed and recorded for a candidate: its text, or
// its selector when it has none, on one line and cut to 100 characters.
func Describe(c schemas.ElementCandidate) string {
	return Sanitize(c.Description())
}

// Sanitize flattens s onto one line and bounds its length.
func Sanitize(s string) string {
	s = dom.CollapseWhitespace(strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(s))
	runes := []rune(s)
	if len(runes) > maxDescriptionLen {
		return string(runes[:maxDescriptionLen])
	}
	return s
}

// FillValue guesses a payload the field will accept.
func FillValue(c schemas.ElementCandidate) string {
	if c.Role == schemas.RoleDatepicker {
		return "2024-01-01"
	}
	hint := strings.ToLower(c.Attributes.Name + " " + c.Attributes.ID + " " + c.Attributes.Placeholder)
	switch c.Attributes.Type {
	case "email":
		return "test@example.com"
	case "password":
		return "TestPassword123!"
	case "tel":
		return "5555550123"
	case "url":
		return "https://example.com"
	case "number", "range":
		return "42"
	case "search":
		return "test search"
	case "date":
		return "2024-01-01"
	case "datetime-local":
		return "2024-01-01T12:00"
	}
	switch {
	case strings.Contains(hint, "email"):
		return "test@example.com"
	case strings.Contains(hint, "password"):
		return "TestPassword123!"
	case strings.Contains(hint, "phone") || strings.Contains(hint, "tel"):
		return "5555550123"
	case strings.Contains(hint, "search"):
		return "test search"
	case strings.Contains(hint, "name"):
		return "Test User"
	}
	return "test value"
}

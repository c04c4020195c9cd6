package schemas

// -- Interaction Plan Schemas --

// StepKind tags the variant of an InteractionStep.
type StepKind string

const (
	StepFill         StepKind = "fill"
	StepClick        StepKind = "click"
	StepCheck        StepKind = "check"
	StepSelectOption StepKind = "select_option"
	StepDetect       StepKind = "detect"
	StepSubmit       StepKind = "submit"
	StepSlide        StepKind = "slide"
	StepToggle       StepKind = "toggle"
	// StepMarker announces a form; it performs no action.
	StepMarker StepKind = "marker"
)

// StepKindFor maps an action verb onto the step variant that performs it.
func StepKindFor(a Action) StepKind {
	switch a {
	case ActionFill:
		return StepFill
	case ActionCheck:
		return StepCheck
	case ActionSelectOption:
		return StepSelectOption
	case ActionDetect:
		return StepDetect
	case ActionSubmit:
		return StepSubmit
	case ActionSlide:
		return StepSlide
	case ActionToggle:
		return StepToggle
	default:
		return StepClick
	}
}

// InteractionStep is one planned action against a single element.
type InteractionStep struct {
	Kind        StepKind `json:"kind"`
	Role        Role     `json:"role"`
	Selector    string   `json:"selector"`
	Description string   `json:"description"`
	Value       string   `json:"value,omitempty"`
}

// Navigates reports whether the step may leave the page, in which case the
// executor captures URL and title around it and navigates back afterwards.
func (s InteractionStep) Navigates() bool {
	if s.Kind == StepMarker {
		return false
	}
	switch s.Role {
	case RoleButton, RoleLink, RoleForm:
		return true
	}
	return s.Kind == StepClick || s.Kind == StepSubmit
}

// PagePlan is the ordered list of steps generated for one page.
type PagePlan struct {
	URL   string            `json:"url"`
	Steps []InteractionStep `json:"steps"`
}

// Actionable returns the steps that perform an action, skipping markers.
func (p PagePlan) Actionable() []InteractionStep {
	out := make([]InteractionStep, 0, len(p.Steps))
	for _, s := range p.Steps {
		if s.Kind != StepMarker {
			out = append(out, s)
		}
	}
	return out
}

package schemas

import "strings"

// -- Element Discovery Schemas --

// Role is the interaction category assigned to a discovered element.
type Role string

const (
	RoleButton      Role = "button"
	RoleLink        Role = "link"
	RoleInput       Role = "input"
	RoleCheckbox    Role = "checkbox"
	RoleRadio       Role = "radio"
	RoleSelect      Role = "select"
	RoleTab         Role = "tab"
	RoleMenu        Role = "menu"
	RoleDialog      Role = "dialog"
	RoleAlert       Role = "alert"
	RoleForm        Role = "form"
	RoleSlider      Role = "slider"
	RoleToggle      Role = "toggle"
	RoleDatepicker  Role = "datepicker"
	RoleFile        Role = "file"
	RoleInteractive Role = "interactive"
	RoleClickable   Role = "clickable"
	RoleFocusable   Role = "focusable"
	RoleHover       Role = "hover"
	// RolePage labels page-level outcomes such as a failed navigation.
	RolePage Role = "page"
)

// CanonicalRoles lists every element role in the order reports and plans iterate them.
var CanonicalRoles = []Role{
	RoleButton, RoleLink, RoleInput, RoleCheckbox, RoleRadio, RoleSelect, RoleTab, RoleMenu,
	RoleDialog, RoleAlert, RoleForm, RoleSlider, RoleToggle, RoleDatepicker, RoleFile,
	RoleInteractive, RoleClickable, RoleFocusable, RoleHover,
}

// Action is the verb used to exercise an element.
type Action string

const (
	ActionFill         Action = "fill"
	ActionClick        Action = "click"
	ActionCheck        Action = "check"
	ActionSelectOption Action = "select_option"
	ActionDetect       Action = "detect"
	ActionSubmit       Action = "submit"
	ActionSlide        Action = "slide"
	ActionToggle       Action = "toggle"
)

var roleActions = map[Role]Action{
	RoleInput:       ActionFill,
	RoleDatepicker:  ActionFill,
	RoleButton:      ActionClick,
	RoleLink:        ActionClick,
	RoleTab:         ActionClick,
	RoleMenu:        ActionClick,
	RoleInteractive: ActionClick,
	RoleClickable:   ActionClick,
	RoleFocusable:   ActionClick,
	RoleHover:       ActionClick,
	RoleCheckbox:    ActionCheck,
	RoleRadio:       ActionCheck,
	RoleSelect:      ActionSelectOption,
	RoleDialog:      ActionDetect,
	RoleAlert:       ActionDetect,
	RoleFile:        ActionDetect,
	RoleForm:        ActionSubmit,
	RoleSlider:      ActionSlide,
	RoleToggle:      ActionToggle,
}

// ActionFor returns the action verb for a role. Unknown roles are clicked.
func ActionFor(r Role) Action {
	if a, ok := roleActions[r]; ok {
		return a
	}
	return ActionClick
}

// Provenance records which discovery pass produced a candidate.
type Provenance string

const (
	ProvenanceDirectTag Provenance = "direct-tag"
	ProvenanceRoleTable Provenance = "role-table"
	ProvenanceEventAria Provenance = "event-aria"
	ProvenanceCatchAll  Provenance = "catch-all"
	ProvenanceFallback  Provenance = "fallback"
)

// DataAttribute is a custom data-* attribute other than the well-known test hooks.
type DataAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Attributes is the fixed set of node attributes the selector cascade consumes.
type Attributes struct {
	ID          string          `json:"id,omitempty"`
	Classes     []string        `json:"classes,omitempty"`
	Name        string          `json:"name,omitempty"`
	Type        string          `json:"type,omitempty"`
	Value       string          `json:"value,omitempty"`
	Placeholder string          `json:"placeholder,omitempty"`
	Href        string          `json:"href,omitempty"`
	Src         string          `json:"src,omitempty"`
	AriaLabel   string          `json:"aria_label,omitempty"`
	TestID      string          `json:"data_testid,omitempty"`
	CypressID   string          `json:"data_cy,omitempty"`
	QAID        string          `json:"data_qa,omitempty"`
	RoleAttr    string          `json:"role,omitempty"`
	Title       string          `json:"title,omitempty"`
	Alt         string          `json:"alt,omitempty"`
	OnClick     string          `json:"onclick,omitempty"`
	OnMouseDown string          `json:"onmousedown,omitempty"`
	Data        []DataAttribute `json:"data,omitempty"`
}

// ClassString joins the class tokens the way they appear in the class attribute.
func (a Attributes) ClassString() string {
	return strings.Join(a.Classes, " ")
}

// PathStep is one hop of an ancestor path: the tag and its 1-based index among
// all element siblings.
type PathStep struct {
	Tag      string `json:"tag"`
	Position int    `json:"position"`
}

// StructuralContext describes where a node sits in the document.
type StructuralContext struct {
	ParentTag        string `json:"parent_tag,omitempty"`
	ParentID         string `json:"parent_id,omitempty"`
	ParentClass      string `json:"parent_class,omitempty"`
	GrandparentTag   string `json:"grandparent_tag,omitempty"`
	GrandparentID    string `json:"grandparent_id,omitempty"`
	GrandparentClass string `json:"grandparent_class,omitempty"`
	// Position is the 1-based index among siblings with the same tag.
	Position int `json:"position"`
	// AncestorPath runs from the document element down to the node itself.
	AncestorPath []PathStep `json:"ancestor_path,omitempty"`
	// AnchorDepth is the index in AncestorPath of the nearest ancestor carrying an
	// id, or -1 when there is none.
	AnchorDepth int    `json:"anchor_depth"`
	AnchorID    string `json:"anchor_id,omitempty"`
}

// ElementCandidate is a discovered node believed to be interactive.
type ElementCandidate struct {
	Tag        string            `json:"tag"`
	Role       Role              `json:"role"`
	Action     Action            `json:"action"`
	Selector   string            `json:"selector"`
	Text       string            `json:"text,omitempty"`
	Attributes Attributes        `json:"attributes"`
	Context    StructuralContext `json:"context"`
	// HasIcon is set when the node contained an inline SVG before sanitizing.
	HasIcon        bool       `json:"has_icon,omitempty"`
	IconPathPrefix string     `json:"icon_path_prefix,omitempty"`
	HasHandler     bool       `json:"has_handler,omitempty"`
	DedupKey       string     `json:"dedup_key"`
	Provenance     Provenance `json:"provenance"`
	XPath          string     `json:"xpath,omitempty"`
}

// Description is the human readable label used in plans and outcome records.
func (c ElementCandidate) Description() string {
	if c.Text != "" {
		return c.Text
	}
	return c.Selector
}

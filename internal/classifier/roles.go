// internal/classifier/roles.go
package classifier

import (
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
)

// roleSelector is one row of the role table evaluated by the second pass.
type roleSelector struct {
	role     schemas.Role
	selector string
}

// roleTable is deliberately broad; the dedup set keeps overlaps out.
var roleTable = []roleSelector{
	{schemas.RoleButton, `button, [role="button"], input[type="button"], input[type="submit"], input[type="reset"], input[type="image"], [class*="btn"], [class*="button"], [aria-pressed], [onclick], [onmousedown], [onmouseup], [data-action], [type="button"], [aria-label], [tabindex]:not([tabindex="-1"]), [class*="clickable"], [class*="click"], [class*="trigger"], [class*="control"], [class*="action"]`},
	{schemas.RoleLink, `a, [role="link"], [href]:not(link):not(script):not(style), [data-href], [data-link], [data-url], [class*="link"], [class*="nav-item"], [class*="menu-item"]`},
	{schemas.RoleInput, `input:not([type="button"]):not([type="submit"]):not([type="reset"]):not([type="hidden"]):not([type="checkbox"]):not([type="radio"]), textarea, [contenteditable="true"], [role="textbox"], [data-input], [aria-multiline="true"], [class*="input"], [class*="field"], [class*="text-field"], [class*="textarea"]`},
	{schemas.RoleCheckbox, `input[type="checkbox"], [role="checkbox"], [aria-checked], [data-checkbox], [class*="checkbox"], [class*="check"]`},
	{schemas.RoleRadio, `input[type="radio"], [role="radio"], [data-radio], [class*="radio"]`},
	{schemas.RoleSelect, `select, [role="combobox"], [role="listbox"], [aria-haspopup="listbox"], [data-select], [class*="select"], [class*="dropdown"], [class*="combobox"]`},
	{schemas.RoleTab, `[role="tab"], [aria-selected], [data-tab], [class*="tab"], [class*="nav-link"]`},
	{schemas.RoleMenu, `[role="menu"], [role="menuitem"], [aria-haspopup="menu"], [data-menu], .dropdown, .dropdown-item, .menu-item, [class*="menu"], [class*="dropdown"]`},
	{schemas.RoleDialog, `[role="dialog"], [role="alertdialog"], [aria-modal="true"], .modal, .dialog, [data-modal], [class*="modal"], [class*="dialog"], [class*="popup"], [class*="overlay"]`},
	{schemas.RoleAlert, `[role="alert"], [aria-live="assertive"], .alert, .notification, [data-alert], [class*="alert"], [class*="notification"], [class*="toast"]`},
	{schemas.RoleForm, `form, [role="form"], [data-form], [class*="form"]`},
	{schemas.RoleSlider, `input[type="range"], [role="slider"], [data-slider], [class*="slider"], [class*="range"]`},
	{schemas.RoleToggle, `[role="switch"], .toggle, [data-toggle], [aria-checked], [class*="toggle"], [class*="switch"]`},
	{schemas.RoleDatepicker, `input[type="date"], [role="date"], [data-datepicker], input[type="datetime-local"], [class*="datepicker"], [class*="date-picker"]`},
	{schemas.RoleFile, `input[type="file"], [role="upload"], [data-upload], [class*="file-input"], [class*="upload"]`},
	{schemas.RoleInteractive, `[tabindex]:not([tabindex="-1"]), [class*="interactive"], [class*="selectable"], [class*="hoverable"], [class*="focusable"]`},
}

// nonVisualTags never become candidates in the catch-all pass.
var nonVisualTags = map[string]bool{
	"html": true, "head": true, "body": true, "title": true, "meta": true, "link": true, "base": true,
	"script": true, "style": true, "noscript": true, "template": true, "br": true, "hr": true,
}

// inputRole sub-types an <input> by its type attribute.
func inputRole(n *html.Node) schemas.Role {
	switch strings.ToLower(htmlquery.SelectAttr(n, "type")) {
	case "checkbox":
		return schemas.RoleCheckbox
	case "radio":
		return schemas.RoleRadio
	case "submit", "button", "reset", "image":
		return schemas.RoleButton
	default:
		return schemas.RoleInput
	}
}

// inferRole classifies a node by its tag when no table row claimed it.
// generic is the role of anything the rules do not recognize.
func inferRole(n *html.Node, generic schemas.Role) schemas.Role {
	tag := strings.ToLower(n.Data)
	class := htmlquery.SelectAttr(n, "class")
	switch {
	case tag == "button" || strings.EqualFold(htmlquery.SelectAttr(n, "type"), "button") || strings.Contains(class, "btn"):
		return schemas.RoleButton
	case tag == "a" || htmlquery.SelectAttr(n, "href") != "":
		return schemas.RoleLink
	case tag == "input":
		return inputRole(n)
	case tag == "select":
		return schemas.RoleSelect
	case tag == "textarea":
		return schemas.RoleInput
	case tag == "form":
		return schemas.RoleForm
	}
	if generic == schemas.RoleInteractive && (tag == "div" || tag == "span") {
		if class != "" || hasAttr(n, "id") || hasAttr(n, "tabindex") {
			return schemas.RoleClickable
		}
	}
	return generic
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}

func isHiddenInput(n *html.Node) bool {
	return strings.EqualFold(n.Data, "input") && strings.EqualFold(htmlquery.SelectAttr(n, "type"), "hidden")
}

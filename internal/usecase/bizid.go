package usecase

import (
	"strconv"
	"strings"

	"github.com/V4T54L/rumtrack/internal/domain"
)

const maxLabelRunes = 32

// ElementSnapshot is what a capture source reports about a clicked element
// after resolving it to the nearest trackable ancestor.
type ElementSnapshot struct {
	TagName     string            `json:"tagName"`
	ID          string            `json:"id"`
	ClassName   string            `json:"className"`
	TextContent string            `json:"textContent"`
	Value       string            `json:"value"`
	Selector    string            `json:"selector"`
	Attributes  map[string]string `json:"attributes"`
	// SiblingIndex is the element's position among siblings with the same tag
	// and class. Negative when the element has no parent.
	SiblingIndex int `json:"siblingIndex"`
}

// BizID returns the business identifier of a clicked element: its rum-id or
// rum-name attribute, else a name derived from the route, the element and its
// label.
func BizID(el ElementSnapshot, route domain.RouteDescriptor, pathname string) string {
	if id := el.Attributes["rum-id"]; id != "" {
		return id
	}
	if name := el.Attributes["rum-name"]; name != "" {
		return name
	}

	tag := strings.ToLower(el.TagName)
	if tag == "" {
		tag = "element"
	}
	primaryClass := "no-class"
	if classes := strings.Fields(el.ClassName); len(classes) > 0 {
		primaryClass = classes[0]
	}

	label := elementLabel(el)
	if label == "" {
		label = primaryClass
	}
	safeLabel := truncateRunes(strings.Join(strings.Fields(label), "_"), maxLabelRunes)
	if safeLabel == "" {
		safeLabel = "no_label"
	}

	var index string
	if el.SiblingIndex >= 0 {
		index = "[" + strconv.Itoa(el.SiblingIndex) + "]"
	}

	return routeKey(route, pathname) + "|" + tag + "." + primaryClass + index + "|" + safeLabel
}

func elementLabel(el ElementSnapshot) string {
	if text := strings.TrimSpace(el.TextContent); text != "" {
		return text
	}
	for _, attr := range []string{"aria-label", "title", "alt", "placeholder"} {
		if v := el.Attributes[attr]; v != "" {
			return v
		}
	}
	return strings.TrimSpace(el.Value)
}

func routeKey(r domain.RouteDescriptor, pathname string) string {
	switch {
	case r.Name != "":
		return r.Name
	case len(r.Matched) > 0 && r.Matched[len(r.Matched)-1] != "":
		return r.Matched[len(r.Matched)-1]
	case r.Path != "":
		return r.Path
	case pathname != "":
		return pathname
	default:
		return "unknown_route"
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// CSSSelector builds a selector from an element path, innermost last. The walk
// stops at the first element with an id and keeps at most six segments.
func CSSSelector(path []ElementSnapshot) string {
	var parts []string
	for i := len(path) - 1; i >= 0; i-- {
		el := path[i]
		sel := strings.ToLower(el.TagName)
		if el.ID != "" {
			parts = append(parts, sel+"#"+el.ID)
			break
		}
		if classes := strings.Fields(el.ClassName); len(classes) > 0 {
			sel += "." + classes[0]
		}
		parts = append(parts, sel)
		if len(parts) > 5 {
			break
		}
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

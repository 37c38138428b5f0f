package export

import (
	"strings"

	"golang.org/x/net/html"
)

// Rule selects message nodes in a page.
type Rule int

const (
	// Indexable matches regular chat messages: class "message" and "default".
	// Service notices (joins, pins, date separators) are excluded.
	Indexable Rule = iota

	// Contextual matches any "message" node, service notices included.
	Contextual
)

// Selector returns the CSS selector equivalent of the rule.
func (r Rule) Selector() string {
	if r == Contextual {
		return "div.message"
	}
	return "div.message.default"
}

// Match reports whether n is a message node under the rule.
func (r Rule) Match(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode || n.Data != "div" {
		return false
	}
	classes := classList(n)
	if !hasClass(classes, "message") {
		return false
	}
	return r == Contextual || hasClass(classes, "default")
}

func (r Rule) String() string {
	if r == Contextual {
		return "contextual"
	}
	return "indexable"
}

// IsService reports whether n is a service notice message node.
func IsService(n *html.Node) bool {
	return Contextual.Match(n) && hasClass(classList(n), "service")
}

// Attr returns the value of attribute key on n.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func classList(n *html.Node) []string {
	v, _ := Attr(n, "class")
	return strings.Fields(v)
}

func hasClass(classes []string, name string) bool {
	for _, c := range classes {
		if c == name {
			return true
		}
	}
	return false
}

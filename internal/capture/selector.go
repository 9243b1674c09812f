package capture

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Selector is a compiled CSS selector group such as
// `form#login input[type=email], button[aria-label*="@" i]`.
type Selector struct {
	raw   string
	match cascadia.Selector
}

func (s Selector) String() string { return s.raw }

func MustParseSelector(raw string) Selector {
	sel, err := ParseSelector(raw)
	if err != nil {
		panic(err)
	}
	return sel
}

func ParseSelector(raw string) (Selector, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Selector{}, fmt.Errorf("empty selector")
	}
	match, err := cascadia.Compile(raw)
	if err != nil {
		return Selector{}, fmt.Errorf("selector %q: %w", raw, err)
	}
	return Selector{raw: raw, match: match}, nil
}

// Matches reports whether id is selected by sel. Ancestor context is the
// live document, so a detached node only matches selectors about itself.
func (p *Page) Matches(id NodeID, sel Selector) bool {
	if sel.match == nil || !p.IsElement(id) {
		return false
	}
	return sel.match.Match(p.nodes[id].src)
}

// QueryAll returns the elements under root, root included, matching sel in
// document order.
func (p *Page) QueryAll(root NodeID, sel Selector) []NodeID {
	if sel.match == nil || !p.valid(root) {
		return nil
	}
	return p.arenaIDs(sel.match.MatchAll(p.nodes[root].src))
}

// Query returns the first match, or NoNode.
func (p *Page) Query(root NodeID, sel Selector) NodeID {
	if sel.match == nil || !p.valid(root) {
		return NoNode
	}
	if n := sel.match.MatchFirst(p.nodes[root].src); n != nil {
		if id, ok := p.byHTML[n]; ok {
			return id
		}
	}
	return NoNode
}

func (p *Page) arenaIDs(matched []*html.Node) []NodeID {
	out := make([]NodeID, 0, len(matched))
	for _, n := range matched {
		if id, ok := p.byHTML[n]; ok {
			out = append(out, id)
		}
	}
	return out
}

package capture

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"emailtracker/internal/rules"
)

// NodeID is a stable index into a page's node arena.
type NodeID int

// NoNode is returned when a lookup finds nothing.
const NoNode NodeID = -1

type nodeKind int

const (
	documentNode nodeKind = iota
	elementNode
	textNode
)

type node struct {
	kind      nodeKind
	tag       string
	attrs     map[string]string
	text      string
	value     string
	parent    NodeID
	children  []NodeID
	listeners map[string][]*listener

	// parsed node kept in sync with the arena so selectors can run over it
	src *html.Node
}

type listener struct {
	fn      Listener
	removed bool
}

// Listener handles a dispatched event.
type Listener func(ev *Event)

// Event is a DOM-style event. Only click, submit, input and keydown bubble.
type Event struct {
	Type   string
	Target NodeID
	Key    string

	defaultPrevented bool
	stopped          bool
}

func (e *Event) PreventDefault()  { e.defaultPrevented = true }
func (e *Event) StopPropagation() { e.stopped = true }

var bubbling = map[string]bool{"click": true, "submit": true, "input": true, "keydown": true}

// Page is one loaded document: an arena of nodes parsed with x/net/html plus
// the listeners, timers and observers attached to it. A page is driven from a
// single goroutine and holds no locks.
type Page struct {
	url    string
	domain string
	clock  Clock

	nodes  []*node
	byHTML map[*html.Node]NodeID
	body   NodeID

	visible             bool
	closed              bool
	observers           []func(added []NodeID)
	visibilityListeners []func(visible bool)
}

// NewPage parses src as the document loaded from rawURL.
func NewPage(rawURL, src string, clock Clock) (*Page, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse page %s: %w", rawURL, err)
	}

	p := &Page{
		url:     rawURL,
		domain:  rules.NormalizeDomain(rawURL),
		clock:   clock,
		body:    NoNode,
		visible: true,
		byHTML:  map[*html.Node]NodeID{doc: 0},
	}
	p.nodes = append(p.nodes, &node{kind: documentNode, parent: NoNode, src: doc})
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		p.adopt(c, 0)
	}
	p.body = p.first(0, func(id NodeID) bool { return p.nodes[id].tag == "body" })
	if p.body == NoNode {
		p.body = 0
	}
	return p, nil
}

func (p *Page) URL() string    { return p.url }
func (p *Page) Domain() string { return p.domain }
func (p *Page) Clock() Clock   { return p.clock }
func (p *Page) Root() NodeID   { return 0 }
func (p *Page) Body() NodeID   { return p.body }
func (p *Page) Visible() bool  { return p.visible }
func (p *Page) Closed() bool   { return p.closed }
func (p *Page) Now() time.Time { return p.clock.Now() }

func (p *Page) adopt(n *html.Node, parent NodeID) NodeID {
	var nd *node
	switch n.Type {
	case html.ElementNode:
		nd = &node{kind: elementNode, tag: strings.ToLower(n.Data), attrs: make(map[string]string, len(n.Attr))}
		for _, a := range n.Attr {
			nd.attrs[strings.ToLower(a.Key)] = a.Val
		}
		nd.value = nd.attrs["value"]
	case html.TextNode:
		nd = &node{kind: textNode, text: n.Data}
	default:
		return NoNode
	}

	nd.parent = parent
	nd.src = n
	id := NodeID(len(p.nodes))
	p.nodes = append(p.nodes, nd)
	p.byHTML[n] = id
	p.nodes[parent].children = append(p.nodes[parent].children, id)

	if nd.kind == elementNode {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			p.adopt(c, id)
		}
	}
	return id
}

func (p *Page) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(p.nodes)
}

func (p *Page) IsElement(id NodeID) bool {
	return p.valid(id) && p.nodes[id].kind == elementNode
}

func (p *Page) Tag(id NodeID) string {
	if !p.IsElement(id) {
		return ""
	}
	return p.nodes[id].tag
}

func (p *Page) Attr(id NodeID, name string) string {
	if !p.IsElement(id) {
		return ""
	}
	return p.nodes[id].attrs[strings.ToLower(name)]
}

func (p *Page) HasAttr(id NodeID, name string) bool {
	if !p.IsElement(id) {
		return false
	}
	_, ok := p.nodes[id].attrs[strings.ToLower(name)]
	return ok
}

func (p *Page) Parent(id NodeID) NodeID {
	if !p.valid(id) {
		return NoNode
	}
	return p.nodes[id].parent
}

// Value is the current value of a form control.
func (p *Page) Value(id NodeID) string {
	if !p.IsElement(id) {
		return ""
	}
	return p.nodes[id].value
}

// Walk visits root and its descendants in document order until fn returns false.
func (p *Page) Walk(root NodeID, fn func(id NodeID) bool) {
	if !p.valid(root) {
		return
	}
	p.walk(root, fn)
}

func (p *Page) walk(id NodeID, fn func(NodeID) bool) bool {
	if !fn(id) {
		return false
	}
	for _, c := range p.nodes[id].children {
		if !p.walk(c, fn) {
			return false
		}
	}
	return true
}

// Elements lists the elements in the subtree rooted at root, root included.
func (p *Page) Elements(root NodeID) []NodeID {
	var out []NodeID
	p.Walk(root, func(id NodeID) bool {
		if p.nodes[id].kind == elementNode {
			out = append(out, id)
		}
		return true
	})
	return out
}

// TextNodes lists the text nodes under root.
func (p *Page) TextNodes(root NodeID) []NodeID {
	var out []NodeID
	p.Walk(root, func(id NodeID) bool {
		if p.nodes[id].kind == textNode {
			out = append(out, id)
		}
		return true
	})
	return out
}

func (p *Page) first(root NodeID, match func(NodeID) bool) NodeID {
	found := NoNode
	p.Walk(root, func(id NodeID) bool {
		if p.nodes[id].kind == elementNode && match(id) {
			found = id
			return false
		}
		return true
	})
	return found
}

// Text returns the text of a text node, or the concatenated text content of an element.
func (p *Page) Text(id NodeID) string {
	if !p.valid(id) {
		return ""
	}
	if p.nodes[id].kind == textNode {
		return p.nodes[id].text
	}
	var sb strings.Builder
	p.Walk(id, func(c NodeID) bool {
		if p.nodes[c].kind == textNode {
			sb.WriteString(p.nodes[c].text)
		}
		return true
	})
	return sb.String()
}

// Closest returns the nearest ancestor-or-self element with tag.
func (p *Page) Closest(id NodeID, tag string) NodeID {
	for cur := id; p.valid(cur); cur = p.nodes[cur].parent {
		if p.nodes[cur].kind == elementNode && p.nodes[cur].tag == tag {
			return cur
		}
	}
	return NoNode
}

// Contains reports whether id is root or one of its descendants.
func (p *Page) Contains(root, id NodeID) bool {
	for cur := id; p.valid(cur); cur = p.nodes[cur].parent {
		if cur == root {
			return true
		}
	}
	return false
}

var invisibleTags = map[string]bool{
	"head": true, "script": true, "style": true, "template": true, "noscript": true, "title": true,
}

// IsVisible approximates rendering: hidden attributes, inline display:none,
// non-rendered tags and detached nodes are invisible.
func (p *Page) IsVisible(id NodeID) bool {
	if !p.valid(id) {
		return false
	}
	cur := id
	if p.nodes[cur].kind == textNode {
		cur = p.nodes[cur].parent
	}
	for ; p.valid(cur); cur = p.nodes[cur].parent {
		n := p.nodes[cur]
		if n.kind == documentNode {
			return true
		}
		if invisibleTags[n.tag] {
			return false
		}
		if _, hidden := n.attrs["hidden"]; hidden {
			return false
		}
		if n.tag == "input" && strings.EqualFold(n.attrs["type"], "hidden") {
			return false
		}
		style := strings.ReplaceAll(strings.ToLower(n.attrs["style"]), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
	}
	// walked off a detached subtree
	return false
}

// Info extracts the classification view of an element.
func (p *Page) Info(id NodeID) ElementInfo {
	if !p.IsElement(id) {
		return ElementInfo{}
	}
	n := p.nodes[id]
	info := ElementInfo{
		Tag:          n.tag,
		Type:         strings.ToLower(n.attrs["type"]),
		Name:         n.attrs["name"],
		ID:           n.attrs["id"],
		Autocomplete: n.attrs["autocomplete"],
		Role:         n.attrs["role"],
		AriaLabel:    n.attrs["aria-label"],
		Class:        n.attrs["class"],
	}
	// subtree text only matters for clickable candidates
	if n.tag == "button" || n.tag == "a" || strings.EqualFold(n.attrs["role"], "button") {
		info.Text = strings.Join(strings.Fields(p.Text(id)), " ")
	}
	return info
}

// AddEventListener attaches fn and returns a func that detaches it.
func (p *Page) AddEventListener(id NodeID, eventType string, fn Listener) func() {
	if !p.valid(id) {
		return func() {}
	}
	n := p.nodes[id]
	if n.listeners == nil {
		n.listeners = make(map[string][]*listener)
	}
	l := &listener{fn: fn}
	n.listeners[eventType] = append(n.listeners[eventType], l)
	return func() { l.removed = true }
}

// Dispatch delivers ev to its target and, for bubbling types, each ancestor.
// It reports whether the default action may run.
func (p *Page) Dispatch(ev *Event) bool {
	if p.closed || !p.valid(ev.Target) {
		return false
	}
	for cur := ev.Target; p.valid(cur); cur = p.nodes[cur].parent {
		for _, l := range p.nodes[cur].listeners[ev.Type] {
			if !l.removed {
				l.fn(ev)
			}
		}
		if ev.stopped || !bubbling[ev.Type] {
			break
		}
	}
	return !ev.defaultPrevented
}

// Click dispatches a click and runs the browser default: a submit control
// inside a form submits it.
func (p *Page) Click(id NodeID) {
	if !p.Dispatch(&Event{Type: "click", Target: id}) {
		return
	}
	for cur := id; p.IsElement(cur); cur = p.nodes[cur].parent {
		if IsSubmitControl(p.Info(cur)) {
			if form := p.Closest(cur, "form"); form != NoNode {
				p.Submit(form)
			}
			return
		}
	}
}

// Type replaces the value of a control and fires input.
func (p *Page) Type(id NodeID, text string) {
	if !p.IsElement(id) || p.closed {
		return
	}
	p.nodes[id].value = text
	p.Dispatch(&Event{Type: "input", Target: id})
}

func (p *Page) Blur(id NodeID) {
	p.Dispatch(&Event{Type: "blur", Target: id})
}

// PressKey fires keydown. Enter in a form input performs implicit submission:
// the form's first submit control is clicked, or the form submitted directly.
func (p *Page) PressKey(id NodeID, key string) {
	if !p.Dispatch(&Event{Type: "keydown", Target: id, Key: key}) {
		return
	}
	if key != "Enter" || p.Tag(id) != "input" {
		return
	}
	form := p.Closest(id, "form")
	if form == NoNode {
		return
	}
	if btn := p.first(form, func(c NodeID) bool { return IsSubmitControl(p.Info(c)) }); btn != NoNode {
		p.Click(btn)
		return
	}
	p.Submit(form)
}

// Submit fires submit on a form. Navigation is left to the caller.
func (p *Page) Submit(form NodeID) {
	p.Dispatch(&Event{Type: "submit", Target: form})
}

// AppendHTML parses fragment in the context of parent, appends the result and
// notifies observers with the top-level nodes added.
func (p *Page) AppendHTML(parent NodeID, fragment string) ([]NodeID, error) {
	if !p.IsElement(parent) && parent != 0 {
		return nil, fmt.Errorf("append: node %d is not an element", parent)
	}
	tag := "body"
	if parent != 0 {
		tag = p.nodes[parent].tag
	}
	ctxNode := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	parsed, err := html.ParseFragment(strings.NewReader(fragment), ctxNode)
	if err != nil {
		return nil, fmt.Errorf("append: %w", err)
	}

	var added []NodeID
	for _, n := range parsed {
		p.nodes[parent].src.AppendChild(n)
		if id := p.adopt(n, parent); id != NoNode {
			added = append(added, id)
		}
	}
	if len(added) > 0 && !p.closed {
		for _, observe := range p.observers {
			observe(added)
		}
	}
	return added, nil
}

// Remove detaches id from the document.
func (p *Page) Remove(id NodeID) {
	if !p.valid(id) || id == 0 {
		return
	}
	parent := p.nodes[id].parent
	if p.valid(parent) {
		siblings := p.nodes[parent].children
		for i, c := range siblings {
			if c == id {
				p.nodes[parent].children = append(siblings[:i:i], siblings[i+1:]...)
				break
			}
		}
	}
	p.nodes[id].parent = NoNode
	if src := p.nodes[id].src; src != nil && src.Parent != nil {
		src.Parent.RemoveChild(src)
	}
}

// Observe registers fn for subtree additions.
func (p *Page) Observe(fn func(added []NodeID)) {
	p.observers = append(p.observers, fn)
}

func (p *Page) OnVisibilityChange(fn func(visible bool)) {
	p.visibilityListeners = append(p.visibilityListeners, fn)
}

// SetVisible models the tab being hidden or shown.
func (p *Page) SetVisible(visible bool) {
	if p.closed || p.visible == visible {
		return
	}
	p.visible = visible
	for _, fn := range p.visibilityListeners {
		fn(visible)
	}
}

// SetTimeout schedules f on the page clock; it never runs once the page is closed.
func (p *Page) SetTimeout(d time.Duration, f func()) Timer {
	return p.clock.AfterFunc(d, func() {
		if !p.closed {
			f()
		}
	})
}

// Close unloads the page. Pending timers and listeners become inert.
func (p *Page) Close() {
	p.closed = true
	p.observers = nil
	p.visibilityListeners = nil
}

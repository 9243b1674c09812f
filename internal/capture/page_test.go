package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func mustPage(t *testing.T, url, src string, clock Clock) *Page {
	t.Helper()
	p, err := NewPage(url, src, clock)
	require.NoError(t, err)
	return p
}

func mustQuery(t *testing.T, p *Page, sel string) NodeID {
	t.Helper()
	id := p.Query(p.Root(), MustParseSelector(sel))
	require.NotEqual(t, NoNode, id, "no element for %s", sel)
	return id
}

func TestNewPage_Domain(t *testing.T) {
	p := mustPage(t, "https://www.GitHub.com/login?return_to=/", "<p>hi</p>", NewManualClock(t0))
	assert.Equal(t, "github.com", p.Domain())
	assert.Equal(t, "body", p.Tag(p.Body()))
	assert.True(t, p.Visible())
}

func TestPage_EventsBubble(t *testing.T) {
	p := mustPage(t, "https://a.io", `<div id="outer"><button id="b">Go</button></div>`, NewManualClock(t0))
	outer := mustQuery(t, p, "#outer")
	btn := mustQuery(t, p, "#b")

	var seen []string
	p.AddEventListener(btn, "click", func(*Event) { seen = append(seen, "button") })
	p.AddEventListener(outer, "click", func(*Event) { seen = append(seen, "outer") })
	p.AddEventListener(outer, "blur", func(*Event) { seen = append(seen, "outer-blur") })

	p.Click(btn)
	p.Blur(btn)
	assert.Equal(t, []string{"button", "outer"}, seen)
}

func TestPage_RemoveListenerAndStopPropagation(t *testing.T) {
	p := mustPage(t, "https://a.io", `<div id="outer"><button id="b">Go</button></div>`, NewManualClock(t0))
	outer := mustQuery(t, p, "#outer")
	btn := mustQuery(t, p, "#b")

	calls := 0
	remove := p.AddEventListener(btn, "click", func(ev *Event) { calls++; ev.StopPropagation() })
	p.AddEventListener(outer, "click", func(*Event) { t.Fatal("propagation was stopped") })
	p.Click(btn)
	remove()
	p.AddEventListener(btn, "click", func(ev *Event) { ev.StopPropagation() })
	p.Click(btn)
	assert.Equal(t, 1, calls)
}

func TestPage_ClickSubmitControlSubmitsForm(t *testing.T) {
	src := `<form id="f"><input name="email"><button type="button" id="plain">x</button><button id="go">Sign in</button></form>`
	p := mustPage(t, "https://a.io", src, NewManualClock(t0))
	form := mustQuery(t, p, "#f")

	submits := 0
	p.AddEventListener(form, "submit", func(*Event) { submits++ })

	p.Click(mustQuery(t, p, "#plain"))
	assert.Equal(t, 0, submits)
	p.Click(mustQuery(t, p, "#go"))
	assert.Equal(t, 1, submits)

	// a cancelled click runs no default action
	p.AddEventListener(mustQuery(t, p, "#go"), "click", func(ev *Event) { ev.PreventDefault() })
	p.Click(mustQuery(t, p, "#go"))
	assert.Equal(t, 1, submits)
}

func TestPage_EnterSubmits(t *testing.T) {
	src := `<form id="f"><input type="password" id="pw"></form><input id="loose">`
	p := mustPage(t, "https://a.io", src, NewManualClock(t0))
	submits := 0
	p.AddEventListener(mustQuery(t, p, "#f"), "submit", func(*Event) { submits++ })

	p.PressKey(mustQuery(t, p, "#pw"), "a")
	p.PressKey(mustQuery(t, p, "#loose"), "Enter")
	assert.Equal(t, 0, submits)
	p.PressKey(mustQuery(t, p, "#pw"), "Enter")
	assert.Equal(t, 1, submits)
}

func TestPage_TypeSetsValue(t *testing.T) {
	p := mustPage(t, "https://a.io", `<input id="e" value="old">`, NewManualClock(t0))
	e := mustQuery(t, p, "#e")
	assert.Equal(t, "old", p.Value(e))

	var got string
	p.AddEventListener(e, "input", func(ev *Event) { got = p.Value(ev.Target) })
	p.Type(e, "new@example.org")
	assert.Equal(t, "new@example.org", got)
}

func TestPage_Visibility(t *testing.T) {
	src := `<div hidden><span id="a">x</span></div>
<div style="display: none"><span id="b">x</span></div>
<div style="visibility:hidden"><span id="c">x</span></div>
<script>var s = "d@x.io"</script>
<div><span id="e">x</span></div>`
	p := mustPage(t, "https://a.io", src, NewManualClock(t0))
	assert.False(t, p.IsVisible(mustQuery(t, p, "#a")))
	assert.False(t, p.IsVisible(mustQuery(t, p, "#b")))
	assert.False(t, p.IsVisible(mustQuery(t, p, "#c")))
	assert.True(t, p.IsVisible(mustQuery(t, p, "#e")))

	e := mustQuery(t, p, "#e")
	p.Remove(e)
	assert.False(t, p.IsVisible(e))
	assert.Equal(t, NoNode, p.Query(p.Root(), MustParseSelector("#e")))
}

func TestPage_AppendHTMLNotifiesObservers(t *testing.T) {
	p := mustPage(t, "https://a.io", `<ul id="list"></ul>`, NewManualClock(t0))
	var added [][]NodeID
	p.Observe(func(ids []NodeID) { added = append(added, ids) })

	ids, err := p.AppendHTML(mustQuery(t, p, "#list"), `<li>one</li><li>two</li>`)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.Len(t, added, 1)
	assert.Equal(t, ids, added[0])
	assert.Equal(t, "two", p.Text(ids[1]))

	_, err = p.AppendHTML(NodeID(9999), "<p>x</p>")
	assert.Error(t, err)
}

func TestPage_VisibilityListenersAndClose(t *testing.T) {
	clock := NewManualClock(t0)
	p := mustPage(t, "https://a.io", `<p>x</p>`, clock)
	var changes []bool
	p.OnVisibilityChange(func(v bool) { changes = append(changes, v) })

	p.SetVisible(true)
	p.SetVisible(false)
	p.SetVisible(true)
	assert.Equal(t, []bool{false, true}, changes)

	fired := false
	p.SetTimeout(time.Second, func() { fired = true })
	p.Close()
	clock.Advance(2 * time.Second)
	assert.False(t, fired)
	assert.True(t, p.Closed())
}

func TestManualClock_OrderAndStop(t *testing.T) {
	clock := NewManualClock(t0)
	var order []string
	clock.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	clock.AfterFunc(time.Second, func() {
		order = append(order, "a")
		clock.AfterFunc(500*time.Millisecond, func() { order = append(order, "a2") })
	})
	stopped := clock.AfterFunc(1500*time.Millisecond, func() { order = append(order, "never") })
	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	clock.Advance(time.Second)
	assert.Equal(t, []string{"a"}, order)
	clock.Advance(5 * time.Second)
	assert.Equal(t, []string{"a", "a2", "b"}, order)
	assert.Equal(t, t0.Add(6*time.Second), clock.Now())
	assert.Zero(t, clock.Pending())
}

func TestParseSelector(t *testing.T) {
	sel, err := ParseSelector(`  form#login div.row.wide input[type=email][name*="mail" i] `)
	require.NoError(t, err)
	assert.Equal(t, `form#login div.row.wide input[type=email][name*="mail" i]`, sel.String())

	for _, bad := range []string{"", "   ", "#", "div[", "a[b=\"c]"} {
		_, err := ParseSelector(bad)
		assert.Error(t, err, bad)
	}
	assert.Panics(t, func() { MustParseSelector("div[") })
}

func TestPage_QuerySelectors(t *testing.T) {
	src := `<form id="login"><div class="row wide"><input type="email" name="userMAIL"></div></form>
<input type="email" name="other">
<button aria-label="Account alice@x.io">A</button>
<div class="user-profile-card">p</div>`
	p := mustPage(t, "https://a.io", src, NewManualClock(t0))

	nested := p.QueryAll(p.Root(), MustParseSelector(`form#login div.row input[name*="mail" i]`))
	require.Len(t, nested, 1)
	assert.Equal(t, "userMAIL", p.Attr(nested[0], "name"))

	assert.Len(t, p.QueryAll(p.Root(), MustParseSelector("input[type=email]")), 2)
	assert.Len(t, p.QueryAll(p.Root(), MustParseSelector(`button[aria-label*="@"]`)), 1)
	assert.Len(t, p.QueryAll(p.Root(), MustParseSelector("div[class*=profile]")), 1)
	assert.Len(t, p.QueryAll(p.Root(), MustParseSelector("div[class~=row]")), 1)
	assert.Len(t, p.QueryAll(p.Root(), MustParseSelector("[name^=user]")), 1)
	assert.Len(t, p.QueryAll(p.Root(), MustParseSelector("[name$=her]")), 1)
	assert.Empty(t, p.QueryAll(p.Root(), MustParseSelector("section input")))
}

func TestPage_QuerySelectorCombinators(t *testing.T) {
	src := `<form id="login"><div><input name="a"></div><input name="b" type="email"></form>
<input name="c" type="password">`
	p := mustPage(t, "https://a.io", src, NewManualClock(t0))
	names := func(ids []NodeID) []string {
		var out []string
		for _, id := range ids {
			out = append(out, p.Attr(id, "name"))
		}
		return out
	}

	assert.Equal(t, []string{"b"}, names(p.QueryAll(p.Root(), MustParseSelector("form > input"))))
	assert.Equal(t, []string{"a", "c"}, names(p.QueryAll(p.Root(), MustParseSelector("input[name=a], input[name=c]"))))
	assert.Equal(t, []string{"a", "b"}, names(p.QueryAll(p.Root(), MustParseSelector(`input:not([type="password"])`))))

	form := mustQuery(t, p, "#login")
	assert.Equal(t, []string{"a", "b"}, names(p.QueryAll(form, MustParseSelector("input"))))
	assert.True(t, p.Matches(form, MustParseSelector("form")))
	assert.False(t, p.Matches(form, Selector{}))
}

func TestPage_SelectorsFollowDocumentChanges(t *testing.T) {
	p := mustPage(t, "https://a.io", `<ul id="list"><li class="old">x</li></ul>`, NewManualClock(t0))
	list := mustQuery(t, p, "#list")

	ids, err := p.AppendHTML(list, `<li class="new" data-email="bob@x.io">bob</li>`)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, ids[0], p.Query(p.Root(), MustParseSelector("ul#list > li.new")))

	p.Remove(mustQuery(t, p, "li.old"))
	assert.Equal(t, ids, p.QueryAll(p.Root(), MustParseSelector("li")))
}

func TestPage_InfoTextOnlyForClickables(t *testing.T) {
	src := `<div id="wrap"><button id="b"> Sign in   with <b>Google</b></button>
<span id="r" role="button">Continue with Apple</span><a id="l" href="#">Log in with X</a></div>`
	p := mustPage(t, "https://a.io", src, NewManualClock(t0))

	assert.Equal(t, "Sign in with Google", p.Info(mustQuery(t, p, "#b")).Text)
	assert.Equal(t, "Continue with Apple", p.Info(mustQuery(t, p, "#r")).Text)
	assert.Equal(t, "Log in with X", p.Info(mustQuery(t, p, "#l")).Text)
	assert.Empty(t, p.Info(mustQuery(t, p, "#wrap")).Text)
	assert.Equal(t, "div", p.Info(mustQuery(t, p, "#wrap")).Tag)
}

package capture

import (
	"regexp"
	"strings"
)

// DenyList holds generic addresses that are never offered as a prefill.
// An entry matches when it appears anywhere in the lowercased candidate.
type DenyList []string

func DefaultDenyList() DenyList {
	return DenyList{"example@example.com", "noreply@", "support@"}
}

func (d DenyList) Denies(email string) bool {
	email = strings.ToLower(email)
	for _, entry := range d {
		if entry = strings.ToLower(strings.TrimSpace(entry)); entry != "" && strings.Contains(email, entry) {
			return true
		}
	}
	return false
}

// ProfileSelector points at an element likely to display the signed-in
// account. The email is read from the element text, then from Attrs in order.
type ProfileSelector struct {
	Selector Selector
	Attrs    []string
}

var profileAttrs = []string{"data-email", "data-user-email"}

// DefaultProfileSelectors are the common account-badge patterns.
func DefaultProfileSelectors() []ProfileSelector {
	ps := func(sel string, attrs ...string) ProfileSelector {
		return ProfileSelector{Selector: MustParseSelector(sel), Attrs: append(attrs, profileAttrs...)}
	}
	return []ProfileSelector{
		ps("[data-user-email]"),
		ps("[data-email]"),
		ps(".user-email"),
		ps(".email"),
		ps("[aria-label*=email i]", "aria-label"),
		ps("[title*=email i]", "title"),
		ps(`button[aria-label*="@"]`, "aria-label"),
		ps("div[class*=profile]"),
		ps("div[class*=user]"),
		ps("span[class*=email]"),
	}
}

var emailInText = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

// short text nodes only; long paragraphs are rarely account badges
const maxScrapeTextLen = 100

// Scrape looks for the signed-in account's email on a page. Visible short
// text nodes are tried first, then the profile selectors. The first
// candidate not on the deny-list wins; "" when nothing qualifies.
func Scrape(p *Page, deny DenyList, selectors []ProfileSelector) string {
	for _, id := range p.TextNodes(p.Body()) {
		text := strings.TrimSpace(p.Text(id))
		if len(text) >= maxScrapeTextLen || !strings.Contains(text, "@") || !p.IsVisible(id) {
			continue
		}
		if email := firstAccepted(text, deny); email != "" {
			return email
		}
	}

	for _, ps := range selectors {
		for _, id := range p.QueryAll(p.Root(), ps.Selector) {
			candidates := []string{p.Text(id)}
			for _, attr := range ps.Attrs {
				candidates = append(candidates, p.Attr(id, attr))
			}
			for _, c := range candidates {
				if email := firstAccepted(c, deny); email != "" {
					return email
				}
			}
		}
	}
	return ""
}

func firstAccepted(text string, deny DenyList) string {
	for _, m := range emailInText.FindAllString(text, -1) {
		if !deny.Denies(m) {
			return m
		}
	}
	return ""
}

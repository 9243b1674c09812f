package capture

import "strings"

// ElementInfo is the text and attribute view of one element that the
// classification predicates work on.
type ElementInfo struct {
	Tag          string
	Type         string
	Name         string
	ID           string
	Autocomplete string
	Role         string
	AriaLabel    string
	Class        string
	Text         string
}

var (
	authPhrases     = []string{"sign in with", "log in with", "login with", "continue with"}
	authClassTokens = []string{"oauth", "google", "social"}
	identifierHints = []string{"email", "username", "login"}
)

// input types that never hold an identifier
var nonIdentifierTypes = map[string]bool{
	"password": true,
	"hidden":   true,
	"submit":   true,
	"button":   true,
	"reset":    true,
	"image":    true,
	"checkbox": true,
	"radio":    true,
	"file":     true,
}

// IsAuthTrigger reports whether the element looks like a third-party sign-in button.
func IsAuthTrigger(info ElementInfo) bool {
	tag := strings.ToLower(info.Tag)
	if tag != "button" && tag != "a" && !strings.EqualFold(info.Role, "button") {
		return false
	}

	text := strings.ToLower(info.Text)
	label := strings.ToLower(info.AriaLabel)
	for _, phrase := range authPhrases {
		if strings.Contains(text, phrase) || strings.Contains(label, phrase) {
			return true
		}
	}

	class := strings.ToLower(info.Class)
	for _, token := range authClassTokens {
		if strings.Contains(class, token) {
			return true
		}
	}
	return false
}

// IsIdentifierField reports whether an input is likely to hold an email or username.
func IsIdentifierField(info ElementInfo) bool {
	if !strings.EqualFold(info.Tag, "input") {
		return false
	}
	typ := strings.ToLower(info.Type)
	if nonIdentifierTypes[typ] {
		return false
	}
	if typ == "email" {
		return true
	}

	for _, attr := range []string{info.Name, info.ID, info.Autocomplete} {
		attr = strings.ToLower(attr)
		for _, hint := range identifierHints {
			if strings.Contains(attr, hint) {
				return true
			}
		}
	}
	return false
}

// IsSubmitControl reports whether clicking the element submits its form.
func IsSubmitControl(info ElementInfo) bool {
	typ := strings.ToLower(info.Type)
	switch strings.ToLower(info.Tag) {
	case "button":
		return typ == "" || typ == "submit"
	case "input":
		return typ == "submit" || typ == "image"
	}
	return false
}

func IsPasswordField(info ElementInfo) bool {
	return strings.EqualFold(info.Tag, "input") && strings.EqualFold(info.Type, "password")
}

package rules

import (
	"regexp"
	"unicode/utf8"

	"emailtracker/internal/model"
)

const (
	MaxNotesLength = 500
	MaxTags        = 10
)

// Error messages reported by ValidateRecord.
const (
	ErrMsgInvalidDomain   = "Invalid domain format"
	ErrMsgInvalidEmail    = "Invalid email format"
	ErrMsgInvalidProvider = "Invalid email provider"
	ErrMsgNotesTooLong    = "Notes too long (max 500 characters)"
	ErrMsgTooManyTags     = "Too many tags (max 10)"
)

var (
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	domainPattern = regexp.MustCompile(`(?i)^[a-z0-9]+([\-.][a-z0-9]+)*\.[a-z]{2,}$`)
)

// ValidationResult lists every violated rule.
type ValidationResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

// Err converts a failed result into a *model.ValidationError.
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	return &model.ValidationError{Errors: append([]string(nil), r.Errors...)}
}

func IsValidEmail(s string) bool {
	return len(s) >= 5 && len(s) <= 254 && emailPattern.MatchString(s)
}

func IsValidDomain(s string) bool {
	return len(s) >= 4 && len(s) <= 253 && domainPattern.MatchString(s)
}

// LooksLikeEmail is the shape check used on raw page values.
func LooksLikeEmail(s string) bool {
	return s != "" && emailPattern.MatchString(s)
}

// ValidateRecord checks every field rule without stopping at the first failure.
func ValidateRecord(record model.EmailRecord) ValidationResult {
	errs := []string{}

	if !IsValidDomain(record.Domain) {
		errs = append(errs, ErrMsgInvalidDomain)
	}
	if !IsValidEmail(record.Email) {
		errs = append(errs, ErrMsgInvalidEmail)
	}
	if !record.Provider.Valid() {
		errs = append(errs, ErrMsgInvalidProvider)
	}
	if utf8.RuneCountInString(record.Notes) > MaxNotesLength {
		errs = append(errs, ErrMsgNotesTooLong)
	}
	if len(record.Tags) > MaxTags {
		errs = append(errs, ErrMsgTooManyTags)
	}

	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

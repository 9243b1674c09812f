package model

import "time"

// EmailRecord maps a normalized domain to the email used to sign in there.
type EmailRecord struct {
	Domain       string     `json:"domain"`
	Email        string     `json:"email"`
	Provider     Provider   `json:"provider"`
	DateAdded    time.Time  `json:"dateAdded"`
	LastVerified *time.Time `json:"lastVerified,omitempty"`
	LastUsed     *time.Time `json:"lastUsed,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
}

// Clone returns a deep copy so stored records never alias caller memory.
func (r EmailRecord) Clone() EmailRecord {
	out := r
	if r.LastVerified != nil {
		t := *r.LastVerified
		out.LastVerified = &t
	}
	if r.LastUsed != nil {
		t := *r.LastUsed
		out.LastUsed = &t
	}
	if r.Tags != nil {
		out.Tags = append([]string(nil), r.Tags...)
	}
	return out
}

// Normalized returns a copy with every timestamp at stored precision, so a
// saved record reads back equal on every backend.
func (r EmailRecord) Normalized() EmailRecord {
	out := r.Clone()
	out.DateAdded = Timestamp(r.DateAdded)
	if out.LastVerified != nil {
		*out.LastVerified = Timestamp(*out.LastVerified)
	}
	if out.LastUsed != nil {
		*out.LastUsed = Timestamp(*out.LastUsed)
	}
	return out
}

// RecordUpdate carries the mutable fields of an update; nil means unchanged.
type RecordUpdate struct {
	Email    *string    `json:"email,omitempty"`
	Provider *Provider  `json:"provider,omitempty"`
	Notes    *string    `json:"notes,omitempty"`
	Tags     *[]string  `json:"tags,omitempty"`
	LastUsed *time.Time `json:"lastUsed,omitempty"`
}

// DomainStats aggregates the current record set.
type DomainStats struct {
	TotalRecords      int            `json:"totalRecords"`
	UniqueEmails      int            `json:"uniqueEmails"`
	ProviderBreakdown map[string]int `json:"providerBreakdown"`
	OldestRecord      string         `json:"oldestRecord"`
	NewestRecord      string         `json:"newestRecord"`
	MostUsedEmail     string         `json:"mostUsedEmail"`
}

// ExportVersion is written into every export envelope.
const ExportVersion = "1.0.0"

// ExportEnvelope is the versioned export file format.
type ExportEnvelope struct {
	Version     string        `json:"version"`
	ExportDate  time.Time     `json:"exportDate"`
	RecordCount int           `json:"recordCount"`
	Stats       DomainStats   `json:"stats"`
	Records     []EmailRecord `json:"records"`
}

// Timestamp truncates t to the precision records are stored with.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

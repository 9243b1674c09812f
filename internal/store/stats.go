package store

import (
	"context"
	"time"

	"emailtracker/internal/model"
)

// TimestampLayout is RFC 3339 with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Stats aggregates the current record set.
func (s *RecordStore) Stats(ctx context.Context) (model.DomainStats, error) {
	records, err := s.primary.All(ctx)
	if err != nil {
		return model.DomainStats{}, err
	}
	return ComputeStats(records), nil
}

// ComputeStats summarizes records. mostUsedEmail ties go to the email seen first.
func ComputeStats(records []model.EmailRecord) model.DomainStats {
	stats := model.DomainStats{
		TotalRecords:      len(records),
		ProviderBreakdown: make(map[string]int),
	}
	if len(records) == 0 {
		return stats
	}

	counts := make(map[string]int)
	var order []string
	oldest, newest := records[0].DateAdded, records[0].DateAdded

	for _, rec := range records {
		if _, seen := counts[rec.Email]; !seen {
			order = append(order, rec.Email)
		}
		counts[rec.Email]++
		stats.ProviderBreakdown[string(rec.Provider)]++

		if rec.DateAdded.Before(oldest) {
			oldest = rec.DateAdded
		}
		if rec.DateAdded.After(newest) {
			newest = rec.DateAdded
		}
	}

	best := 0
	for _, email := range order {
		if counts[email] > best {
			best = counts[email]
			stats.MostUsedEmail = email
		}
	}

	stats.UniqueEmails = len(counts)
	stats.OldestRecord = formatTimestamp(oldest)
	stats.NewestRecord = formatTimestamp(newest)
	return stats
}

func formatTimestamp(t time.Time) string {
	return model.Timestamp(t).Format(TimestampLayout)
}

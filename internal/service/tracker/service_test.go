package tracker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"emailtracker/internal/model"
	"emailtracker/internal/repository"
	"emailtracker/internal/store"
)

type publishedEvent struct {
	routingKey string
	payload    any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{routingKey, payload})
	return p.err
}

func (p *fakePublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.routingKey)
	}
	return out
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newTestService(t *testing.T) (*Service, *fakePublisher, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)}
	pub := &fakePublisher{}
	recordStore := store.NewRecordStore(repository.NewMemoryRecordRepository(), repository.NewMemoryBackupStore(), nil)
	svc := NewService(recordStore, nil, WithPublisher(pub), WithClock(clock.Now))
	return svc, pub, clock
}

func TestSaveEmail_NormalizesAndInfersProvider(t *testing.T) {
	ctx := context.Background()
	svc, pub, clock := newTestService(t)

	saved, err := svc.SaveEmail(ctx, "https://www.GitHub.com/login", "User@GMAIL.com", "", "")
	require.NoError(t, err)
	assert.Equal(t, "github.com", saved.Domain)
	assert.Equal(t, "user@gmail.com", saved.Email)
	assert.Equal(t, model.ProviderGoogle, saved.Provider)

	got, err := svc.GetEmail(ctx, "github.com")
	require.NoError(t, err)
	assert.Equal(t, "user@gmail.com", got.Email)
	assert.Equal(t, model.ProviderGoogle, got.Provider)
	assert.True(t, got.DateAdded.Equal(clock.now))
	assert.Equal(t, []string{model.RoutingKeyRecordSaved}, pub.keys())
}

func TestSaveEmail_TrimsNotes(t *testing.T) {
	svc, _, _ := newTestService(t)
	saved, err := svc.SaveEmail(context.Background(), "example.org", "a@b.io", model.ProviderCustom, "  side project  ")
	require.NoError(t, err)
	assert.Equal(t, "side project", saved.Notes)
}

func TestSaveEmail_AggregatesValidationErrors(t *testing.T) {
	svc, pub, _ := newTestService(t)

	_, err := svc.SaveEmail(context.Background(), "x", "bad", "Unknown", strings.Repeat("n", 501))
	require.Error(t, err)

	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{
		"Invalid domain format",
		"Invalid email format",
		"Invalid email provider",
		"Notes too long (max 500 characters)",
	}, ve.Errors)
	assert.Equal(t, "Invalid domain format, Invalid email format, Invalid email provider, Notes too long (max 500 characters)", err.Error())
	assert.Empty(t, pub.keys())
}

func TestSaveEmail_UpsertIsLastWriteWins(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	_, err := svc.SaveEmail(ctx, "github.com", "first@gmail.com", "", "")
	require.NoError(t, err)
	_, err = svc.SaveEmail(ctx, "WWW.github.com", "second@outlook.com", "", "")
	require.NoError(t, err)

	all, err := svc.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "second@outlook.com", all[0].Email)
	assert.Equal(t, model.ProviderOutlook, all[0].Provider)
}

func TestSaveEmail_PublishFailureIsSwallowed(t *testing.T) {
	svc, pub, _ := newTestService(t)
	pub.err = errors.New("broker down")

	_, err := svc.SaveEmail(context.Background(), "github.com", "user@gmail.com", "", "")
	assert.NoError(t, err)
}

func TestUpdateEmail(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)
	_, err := svc.SaveEmail(ctx, "github.com", "user@gmail.com", "", "")
	require.NoError(t, err)

	clock.now = clock.now.Add(time.Hour)
	email := "  New@Proton.me "
	provider := model.ProviderProtonMail
	tags := []string{"code"}
	updated, err := svc.UpdateEmail(ctx, "https://github.com", model.RecordUpdate{
		Email:    &email,
		Provider: &provider,
		Tags:     &tags,
	})
	require.NoError(t, err)
	assert.Equal(t, "new@proton.me", updated.Email)
	assert.Equal(t, model.ProviderProtonMail, updated.Provider)
	assert.Equal(t, []string{"code"}, updated.Tags)
	require.NotNil(t, updated.LastVerified)
	assert.True(t, updated.LastVerified.Equal(clock.now))

	stored, err := svc.GetEmail(ctx, "github.com")
	require.NoError(t, err)
	assert.Equal(t, *updated, *stored)
}

func TestUpdateEmail_Missing(t *testing.T) {
	svc, _, _ := newTestService(t)
	email := "a@gmail.com"
	_, err := svc.UpdateEmail(context.Background(), "nowhere.com", model.RecordUpdate{Email: &email})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUpdateEmail_RevalidatesTags(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	_, err := svc.SaveEmail(ctx, "github.com", "user@gmail.com", "", "")
	require.NoError(t, err)

	tags := make([]string, 11)
	_, err = svc.UpdateEmail(ctx, "github.com", model.RecordUpdate{Tags: &tags})
	require.Error(t, err)
	assert.Equal(t, "Too many tags (max 10)", err.Error())
}

func TestDeleteAndHasEmail(t *testing.T) {
	ctx := context.Background()
	svc, pub, _ := newTestService(t)
	_, err := svc.SaveEmail(ctx, "github.com", "user@gmail.com", "", "")
	require.NoError(t, err)

	has, err := svc.HasEmail(ctx, "https://www.github.com/settings")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, svc.DeleteEmail(ctx, "GitHub.com"))
	has, err = svc.HasEmail(ctx, "github.com")
	require.NoError(t, err)
	assert.False(t, has)
	assert.Equal(t, []string{model.RoutingKeyRecordSaved, model.RoutingKeyRecordDeleted}, pub.keys())
}

func TestSearchRecords(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	_, err := svc.SaveEmail(ctx, "github.com", "user@gmail.com", "", "")
	require.NoError(t, err)
	_, err = svc.SaveEmail(ctx, "news.ycombinator.com", "me@proton.me", "", "Straße account")
	require.NoError(t, err)
	_, err = svc.SaveEmail(ctx, "bank.example", "me@corp.io", "", "")
	require.NoError(t, err)

	cases := []struct {
		query string
		want  []string
	}{
		{"", []string{"bank.example", "github.com", "news.ycombinator.com"}},
		{"GITHUB", []string{"github.com"}},
		{"proton", []string{"news.ycombinator.com"}},
		{"STRASSE", []string{"news.ycombinator.com"}},
		{"custom", []string{"bank.example"}},
		{"nothing-matches", []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			got, err := svc.SearchRecords(ctx, tc.query)
			require.NoError(t, err)
			domains := []string{}
			for _, rec := range got {
				domains = append(domains, rec.Domain)
			}
			assert.Equal(t, tc.want, domains)
		})
	}
}

func TestFindDomainsByEmail(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	for _, domain := range []string{"b.com", "a.com", "c.com"} {
		_, err := svc.SaveEmail(ctx, domain, "same@gmail.com", "", "")
		require.NoError(t, err)
	}
	_, err := svc.SaveEmail(ctx, "d.com", "other@gmail.com", "", "")
	require.NoError(t, err)

	domains, err := svc.FindDomainsByEmail(ctx, " SAME@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.com", "b.com", "c.com"}, domains)
}

func TestMarkAsUsed(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)
	_, err := svc.SaveEmail(ctx, "github.com", "user@gmail.com", "", "")
	require.NoError(t, err)

	clock.now = clock.now.Add(2 * time.Hour)
	require.NoError(t, svc.MarkAsUsed(ctx, "www.github.com"))
	rec, err := svc.GetEmail(ctx, "github.com")
	require.NoError(t, err)
	require.NotNil(t, rec.LastUsed)
	assert.True(t, rec.LastUsed.Equal(clock.now))

	require.NoError(t, svc.MarkAsUsed(ctx, "missing.com"))
	has, err := svc.HasEmail(ctx, "missing.com")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestExportImportAndClear(t *testing.T) {
	ctx := context.Background()
	svc, pub, _ := newTestService(t)
	_, err := svc.SaveEmail(ctx, "github.com", "user@gmail.com", "", "")
	require.NoError(t, err)
	_, err = svc.SaveEmail(ctx, "gitlab.com", "user@gmail.com", "", "")
	require.NoError(t, err)

	exported, err := svc.ExportData(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.ClearAll(ctx))
	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalRecords)

	n, err := svc.ImportData(ctx, exported)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats, err = svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalRecords)
	assert.Equal(t, 1, stats.UniqueEmails)
	assert.Equal(t, "user@gmail.com", stats.MostUsedEmail)
	assert.Contains(t, pub.keys(), model.RoutingKeyRecordsImported)

	_, err = svc.ImportData(ctx, `{"nope":true}`)
	assert.ErrorIs(t, err, model.ErrInvalidFormat)
}

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) attribute.Value {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value
		}
	}
	return attribute.Value{}
}

func TestWritesAreTraced(t *testing.T) {
	ctx := context.Background()
	rec := recordSpans(t)
	svc, _, _ := newTestService(t)

	_, err := svc.SaveEmail(ctx, "www.GitHub.com", "user@gmail.com", "", "")
	require.NoError(t, err)
	_, err = svc.SaveEmail(ctx, "x", "bad", "", "")
	require.Error(t, err)
	_, err = svc.UpdateEmail(ctx, "missing.io", model.RecordUpdate{})
	require.Error(t, err)
	exported, err := svc.ExportData(ctx)
	require.NoError(t, err)
	_, err = svc.ImportData(ctx, exported)
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 4)
	var names []string
	for _, s := range spans {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"tracker.SaveEmail", "tracker.SaveEmail", "tracker.UpdateEmail", "tracker.ImportData"}, names)

	assert.Equal(t, "github.com", spanAttr(spans[0], "tracker.domain").AsString())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "missing.io", spanAttr(spans[2], "tracker.domain").AsString())
	assert.Equal(t, codes.Error, spans[2].Status().Code)
	assert.Equal(t, int64(1), spanAttr(spans[3], "tracker.imported").AsInt64())
}

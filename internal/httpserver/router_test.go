package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"emailtracker/internal/auth"
	"emailtracker/internal/handler"
	"emailtracker/internal/messaging"
	"emailtracker/internal/model"
	"emailtracker/internal/repository"
	"emailtracker/internal/service/tracker"
	"emailtracker/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeBroker struct{ connected bool }

func (b fakeBroker) IsConnected() bool { return b.connected }

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("db down") }

type apiFixture struct {
	router   *Router
	tracker  *tracker.Service
	sessions *auth.Service
}

func newAPIFixture(t *testing.T, sessions *auth.Service) *apiFixture {
	t.Helper()
	logger := zap.NewNop()
	recordStore := store.NewRecordStore(repository.NewMemoryRecordRepository(), repository.NewMemoryBackupStore(), logger)
	svc := tracker.NewService(recordStore, logger)
	if sessions == nil {
		sessions = auth.NewService("", "", "test-secret", time.Hour)
	}
	dispatcher := messaging.NewTrackerDispatcher(svc, messaging.NewLogPopupOpener(logger), logger)
	router := NewRouter(
		handler.NewSessionHandler(sessions, logger),
		handler.NewMessageHandler(dispatcher, nil, logger),
		handler.NewRecordHandler(svc, logger),
		sessions,
		svc,
		nil,
	)
	return &apiFixture{router: router, tracker: svc, sessions: sessions}
}

func (f *apiFixture) token(t *testing.T, key string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/sessions", "", `{"clientKey":"`+key+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var session auth.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	return session.Token
}

func (f *apiFixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.Engine.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReadiness(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))

	rec = f.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadiness_Degraded(t *testing.T) {
	logger := zap.NewNop()
	sessions := auth.NewService("", "", "s", time.Hour)
	svc := tracker.NewService(store.NewRecordStore(repository.NewMemoryRecordRepository(), nil, logger), logger)
	dispatcher := messaging.NewTrackerDispatcher(svc, nil, logger)
	build := func(p Pinger, b BrokerStatus) *Router {
		return NewRouter(handler.NewSessionHandler(sessions, logger), handler.NewMessageHandler(dispatcher, nil, logger),
			handler.NewRecordHandler(svc, logger), sessions, p, b)
	}

	rec := httptest.NewRecorder()
	build(failingPinger{}, nil).Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "store_not_ready")

	rec = httptest.NewRecorder()
	build(svc, fakeBroker{connected: false}).Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "mq_not_ready")
}

func TestTraceIDPropagated(t *testing.T) {
	f := newAPIFixture(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Trace-ID", "trace-123")
	rec := httptest.NewRecorder()
	f.router.Engine.ServeHTTP(rec, req)
	assert.Equal(t, "trace-123", rec.Header().Get("X-Trace-ID"))
}

func TestMessages_RequireToken(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/messages", "", `{"type":"OPEN_POPUP"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/messages", "not-a-jwt", `{"type":"OPEN_POPUP"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMessages_SaveThenCheck(t *testing.T) {
	f := newAPIFixture(t, nil)
	token := f.token(t, "")

	rec := f.do(t, http.MethodPost, "/api/messages", token,
		`{"type":"SAVE_EMAIL","data":{"domain":"www.GitHub.com","email":"Alice@Gmail.com","provider":"Google"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/messages", token, `{"type":"CHECK_EMAIL_EXISTS","domain":"github.com"}`)
	assert.JSONEq(t, `{"exists":true}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/messages", token, `{"type":"CHECK_EMAIL_EXISTS","domain":"gitlab.com"}`)
	assert.JSONEq(t, `{"exists":false}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/messages", token, `{"type":"PING"}`)
	assert.JSONEq(t, `{"success":false,"error":"unknown message type: PING"}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/messages", token, `{"type":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessages_HTTPClient(t *testing.T) {
	f := newAPIFixture(t, nil)
	srv := httptest.NewServer(f.router.Engine)
	defer srv.Close()

	ctx := context.Background()
	session, err := messaging.OpenSession(ctx, srv.Client(), srv.URL, "")
	require.NoError(t, err)

	client := messaging.NewHTTPClient(srv.URL, session.Token, time.Second)
	req, err := messaging.NewSaveEmailRequest(messaging.SaveEmailData{Domain: "github.com", Email: "alice@gmail.com"})
	require.NoError(t, err)
	resp, err := client.Send(ctx, req)
	require.NoError(t, err)
	assert.True(t, resp.Succeeded())

	rec, err := f.tracker.GetEmail(ctx, "github.com")
	require.NoError(t, err)
	assert.Equal(t, model.ProviderGoogle, rec.Provider, "provider inferred from the address")
}

func TestMessages_Websocket(t *testing.T) {
	f := newAPIFixture(t, nil)
	srv := httptest.NewServer(f.router.Engine)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	session, err := messaging.OpenSession(ctx, srv.Client(), srv.URL, "")
	require.NoError(t, err)

	_, err = messaging.DialWS(ctx, srv.URL, "")
	assert.Error(t, err, "upgrade without token is rejected")

	ws, err := messaging.DialWS(ctx, srv.URL, session.Token)
	require.NoError(t, err)
	defer ws.Close()

	req, err := messaging.NewSaveEmailRequest(messaging.SaveEmailData{Domain: "github.com", Email: "alice@gmail.com", Provider: "Google"})
	require.NoError(t, err)
	resp, err := ws.Send(ctx, req)
	require.NoError(t, err)
	assert.True(t, resp.Succeeded())
	assert.NotEmpty(t, resp.ID)

	resp, err = ws.Send(ctx, messaging.NewCheckEmailExistsRequest("github.com"))
	require.NoError(t, err)
	assert.True(t, resp.RecordExists())
}

func TestRecords_CRUD(t *testing.T) {
	f := newAPIFixture(t, nil)
	token := f.token(t, "")

	rec := f.do(t, http.MethodPut, "/api/records/github.com", token, `{"email":"alice@gmail.com","notes":" work "}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var saved model.EmailRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Equal(t, model.ProviderGoogle, saved.Provider)
	assert.Equal(t, "work", saved.Notes)

	rec = f.do(t, http.MethodGet, "/api/records/github.com", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.EmailRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Nil(t, got.LastUsed)

	rec = f.do(t, http.MethodGet, "/api/records/github.com?touch=true", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.NotNil(t, got.LastUsed)

	rec = f.do(t, http.MethodPatch, "/api/records/github.com", token, `{"email":"alice@outlook.com","provider":"Outlook"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "alice@outlook.com", got.Email)
	assert.NotNil(t, got.LastVerified)

	rec = f.do(t, http.MethodGet, "/api/records?q=OUTLOOK", token, "")
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = f.do(t, http.MethodGet, "/api/records?email=Alice@Outlook.com", token, "")
	assert.JSONEq(t, `{"domains":["github.com"]}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/records/github.com/used", token, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/records/github.com", token, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/records/github.com", token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecords_ErrorMapping(t *testing.T) {
	f := newAPIFixture(t, nil)
	token := f.token(t, "")

	rec := f.do(t, http.MethodPut, "/api/records/x", token, `{"email":"bad","provider":"Nope"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Errors []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Errors, 3)

	rec = f.do(t, http.MethodPatch, "/api/records/missing.io", token, `{"notes":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/import", token, `{"records":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid format")
}

func TestRecords_ExportImportStats(t *testing.T) {
	f := newAPIFixture(t, nil)
	token := f.token(t, "")
	ctx := context.Background()
	_, err := f.tracker.SaveEmail(ctx, "github.com", "alice@gmail.com", model.ProviderGoogle, "")
	require.NoError(t, err)
	_, err = f.tracker.SaveEmail(ctx, "gitlab.com", "alice@gmail.com", model.ProviderGoogle, "")
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/export", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "email-tracker-export-")
	exported := rec.Body.String()

	rec = f.do(t, http.MethodDelete, "/api/records", token, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/import", token, exported)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"imported":2}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/stats", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats model.DomainStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.TotalRecords)
	assert.Equal(t, 1, stats.UniqueEmails)
	assert.Equal(t, "alice@gmail.com", stats.MostUsedEmail)
}

func TestRecords_PageRoleIsReadOnly(t *testing.T) {
	pageHash, err := auth.HashKey("page-key")
	require.NoError(t, err)
	adminHash, err := auth.HashKey("admin-key")
	require.NoError(t, err)
	f := newAPIFixture(t, auth.NewService(pageHash, adminHash, "test-secret", time.Hour))

	rec := f.do(t, http.MethodPost, "/api/sessions", "", `{"clientKey":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	page := f.token(t, "page-key")
	rec = f.do(t, http.MethodGet, "/api/records", page, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPut, "/api/records/github.com", page, `{"email":"alice@gmail.com"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/records", page, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := f.token(t, "admin-key")
	rec = f.do(t, http.MethodDelete, "/api/records", admin, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emailtracker/pkg/rbac"
)

func TestOpenSession_Roles(t *testing.T) {
	pageHash, err := HashKey("page-key")
	require.NoError(t, err)
	adminHash, err := HashKey("admin-key")
	require.NoError(t, err)
	svc := NewService(pageHash, adminHash, "secret", time.Hour)

	session, err := svc.OpenSession("page-key")
	require.NoError(t, err)
	assert.Equal(t, rbac.RolePage, session.Role)
	assert.NotEmpty(t, session.SessionID)

	claims, err := svc.Parse(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.SessionID, claims.SessionID)
	assert.Equal(t, rbac.RolePage, claims.Role)

	session, err = svc.OpenSession("admin-key")
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAdmin, session.Role)

	_, err = svc.OpenSession("wrong")
	assert.ErrorIs(t, err, ErrInvalidClientKey)
	_, err = svc.OpenSession("")
	assert.ErrorIs(t, err, ErrInvalidClientKey)
}

func TestOpenSession_OpenModeWithoutHashes(t *testing.T) {
	svc := NewService("", "", "secret", time.Hour)
	session, err := svc.OpenSession("")
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAdmin, session.Role)
}

func TestParseToken_Rejects(t *testing.T) {
	token, _, err := GenerateToken("sid", rbac.RolePage, "secret", time.Now(), time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(token, "other-secret")
	assert.Error(t, err)

	expired, _, err := GenerateToken("sid", rbac.RolePage, "secret", time.Now().Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(expired, "secret")
	assert.Error(t, err)
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/ws?token=from-query", nil)
	assert.Equal(t, "from-query", ExtractToken(r))

	r.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", ExtractToken(r))

	r.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", ExtractToken(r))
}

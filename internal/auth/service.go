package auth

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"emailtracker/pkg/rbac"
)

var ErrInvalidClientKey = errors.New("invalid client key")

// Session is returned to a page client when it connects.
type Session struct {
	Token     string    `json:"token"`
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Service struct {
	clientKeyHash string
	adminKeyHash  string
	jwtSecret     string
	ttl           time.Duration
	now           func() time.Time
}

// NewService builds the session service. With no key hashes configured every
// key is accepted with the admin role (local development).
func NewService(clientKeyHash, adminKeyHash, jwtSecret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		clientKeyHash: clientKeyHash,
		adminKeyHash:  adminKeyHash,
		jwtSecret:     jwtSecret,
		ttl:           ttl,
		now:           time.Now,
	}
}

// OpenSession checks the key and issues a token for a fresh session id.
func (s *Service) OpenSession(clientKey string) (*Session, error) {
	role, err := s.roleFor(clientKey)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	token, expiresAt, err := GenerateToken(sessionID, role, s.jwtSecret, s.now(), s.ttl)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, SessionID: sessionID, Role: role, ExpiresAt: expiresAt}, nil
}

func (s *Service) Parse(token string) (*Claims, error) {
	claims, err := ParseToken(token, s.jwtSecret)
	if err != nil {
		return nil, err
	}
	if !rbac.ValidRole(claims.Role) {
		return nil, errors.New("token has unknown role")
	}
	return claims, nil
}

func (s *Service) roleFor(clientKey string) (string, error) {
	if s.clientKeyHash == "" && s.adminKeyHash == "" {
		return rbac.RoleAdmin, nil
	}
	if clientKey == "" {
		return "", ErrInvalidClientKey
	}
	if CheckKey(clientKey, s.adminKeyHash) {
		return rbac.RoleAdmin, nil
	}
	if CheckKey(clientKey, s.clientKeyHash) {
		return rbac.RolePage, nil
	}
	return "", ErrInvalidClientKey
}

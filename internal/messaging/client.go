package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"emailtracker/pkg/trace"
)

// Client sends page messages to the coordination server.
type Client interface {
	Send(ctx context.Context, req Request) (Response, error)
	Close() error
}

type SessionRequest struct {
	ClientKey string `json:"clientKey"`
}

type SessionResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// OpenSession exchanges the client key for a bearer token.
func OpenSession(ctx context.Context, httpClient *http.Client, baseURL, clientKey string) (*SessionResponse, error) {
	body, err := json.Marshal(SessionRequest{ClientKey: clientKey})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/api/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("open session: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var session SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

// HTTPClient posts each message to /api/messages.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Send(ctx context.Context, msg Request) (Response, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return Response{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/messages", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if traceID := trace.FromContext(ctx); traceID != "" {
		req.Header.Set(trace.HeaderName, traceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("send %s: server returned %d", msg.Type, resp.StatusCode)
	}
	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("decode %s response: %w", msg.Type, err)
	}
	return out, nil
}

func (c *HTTPClient) Close() error { return nil }

// WSClient keeps one websocket open and correlates replies by request id.
type WSClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// DialWS connects to /api/ws. The token travels in the Authorization header.
func DialWS(ctx context.Context, baseURL, token string) (*WSClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/api/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	opts := &websocket.DialOptions{HTTPHeader: http.Header{}}
	if token != "" {
		opts.HTTPHeader.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.Dial(ctx, u.String(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", u.String(), err)
	}
	return &WSClient{conn: conn}, nil
}

func (c *WSClient) Send(ctx context.Context, msg Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if err := wsjson.Write(ctx, c.conn, msg); err != nil {
		return Response{}, fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}
	for {
		var resp Response
		if err := wsjson.Read(ctx, c.conn, &resp); err != nil {
			return Response{}, fmt.Errorf("failed to read %s reply: %w", msg.Type, err)
		}
		// replies addressed to other ids are skipped
		if resp.ID == msg.ID {
			return resp, nil
		}
	}
}

func (c *WSClient) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// LocalClient dispatches in-process, for tools that embed the tracker.
type LocalClient struct {
	dispatcher *Dispatcher
}

func NewLocalClient(d *Dispatcher) *LocalClient {
	return &LocalClient{dispatcher: d}
}

func (c *LocalClient) Send(ctx context.Context, msg Request) (Response, error) {
	return c.dispatcher.Dispatch(ctx, msg), nil
}

func (c *LocalClient) Close() error { return nil }

package capture

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"emailtracker/internal/config"
	"emailtracker/internal/messaging"
	"emailtracker/pkg/circuitbreaker"
	"emailtracker/pkg/metrics"
)

// Messenger is the page side of the messaging boundary. Calls go through a
// circuit breaker so a dead server costs one timeout, not one per page.
type Messenger struct {
	client    messaging.Client
	breaker   *circuitbreaker.CircuitBreaker
	transport string
	logger    *zap.Logger
}

func NewMessenger(client messaging.Client, transport string, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *Messenger {
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Messenger{client: client, breaker: breaker, transport: transport, logger: logger}
}

// DialMessenger opens a session with the coordination server and connects
// over the configured transport.
func DialMessenger(ctx context.Context, cfg config.ClientConfig, logger *zap.Logger) (*Messenger, error) {
	session, err := messaging.OpenSession(ctx, &http.Client{Timeout: cfg.Timeout}, cfg.ServerURL, cfg.ClientKey)
	if err != nil {
		return nil, err
	}

	switch cfg.Transport {
	case "", "http":
		client := messaging.NewHTTPClient(cfg.ServerURL, session.Token, cfg.Timeout)
		return NewMessenger(client, "http", nil, logger), nil
	case "ws":
		client, err := messaging.DialWS(ctx, cfg.ServerURL, session.Token)
		if err != nil {
			return nil, err
		}
		return NewMessenger(client, "ws", nil, logger), nil
	default:
		return nil, fmt.Errorf("unknown client transport %q", cfg.Transport)
	}
}

func (m *Messenger) send(ctx context.Context, req messaging.Request) (messaging.Response, error) {
	var resp messaging.Response
	err := m.breaker.Execute(func() error {
		var err error
		resp, err = m.client.Send(ctx, req)
		return err
	})
	return resp, err
}

// CheckEmailExists returns false together with the error when the channel
// fails; callers treat that as "not stored".
func (m *Messenger) CheckEmailExists(ctx context.Context, domain string) (bool, error) {
	resp, err := m.send(ctx, messaging.NewCheckEmailExistsRequest(domain))
	if err != nil {
		metrics.IncrementFailOpen(m.transport)
		m.logger.Warn("Existence check failed open",
			zap.String("domain", domain),
			zap.String("transport", m.transport),
			zap.Error(err),
		)
		return false, err
	}
	return resp.RecordExists(), nil
}

func (m *Messenger) SaveEmail(ctx context.Context, data messaging.SaveEmailData) error {
	req, err := messaging.NewSaveEmailRequest(data)
	if err != nil {
		return err
	}
	resp, err := m.send(ctx, req)
	if err != nil {
		return err
	}
	if !resp.Succeeded() {
		return errors.New(resp.Error)
	}
	return nil
}

func (m *Messenger) OpenPopup(ctx context.Context) error {
	resp, err := m.send(ctx, messaging.NewOpenPopupRequest())
	if err != nil {
		return err
	}
	if !resp.Succeeded() {
		return errors.New(resp.Error)
	}
	return nil
}

func (m *Messenger) Close() error {
	return m.client.Close()
}

package messaging

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"go.uber.org/zap"

	"emailtracker/internal/model"
)

// Tracker is the part of the tracker service the message handlers need.
type Tracker interface {
	SaveEmail(ctx context.Context, domain, email string, provider model.Provider, notes string) (*model.EmailRecord, error)
	HasEmail(ctx context.Context, domain string) (bool, error)
}

// PopupOpener surfaces the record list UI.
type PopupOpener interface {
	OpenPopup(ctx context.Context) error
}

// LogPopupOpener records popup requests; the coordination process has no UI of its own.
type LogPopupOpener struct {
	logger *zap.Logger
	count  atomic.Int64
}

func NewLogPopupOpener(logger *zap.Logger) *LogPopupOpener {
	return &LogPopupOpener{logger: logger}
}

func (p *LogPopupOpener) OpenPopup(context.Context) error {
	n := p.count.Add(1)
	if p.logger != nil {
		p.logger.Info("Popup requested", zap.Int64("total", n))
	}
	return nil
}

func (p *LogPopupOpener) Requests() int64 {
	return p.count.Load()
}

// NewTrackerDispatcher wires the three page message types to tracker.
func NewTrackerDispatcher(tracker Tracker, popup PopupOpener, logger *zap.Logger) *Dispatcher {
	d := NewDispatcher(logger)
	h := &handlers{tracker: tracker, popup: popup, logger: d.logger}
	d.Register(TypeSaveEmail, h.saveEmail)
	d.Register(TypeCheckEmailExists, h.checkEmailExists)
	d.Register(TypeOpenPopup, h.openPopup)
	return d
}

type handlers struct {
	tracker Tracker
	popup   PopupOpener
	logger  *zap.Logger
}

func (h *handlers) saveEmail(ctx context.Context, req Request) Response {
	var data SaveEmailData
	if len(req.Data) == 0 {
		return Fail("missing data")
	}
	if err := json.Unmarshal(req.Data, &data); err != nil {
		return Fail("invalid data: " + err.Error())
	}

	if _, err := h.tracker.SaveEmail(ctx, data.Domain, data.Email, model.Provider(data.Provider), data.Notes); err != nil {
		h.logger.Warn("SAVE_EMAIL failed",
			zap.String("domain", data.Domain),
			zap.Error(err),
		)
		return Fail(err.Error())
	}
	return OK()
}

func (h *handlers) checkEmailExists(ctx context.Context, req Request) Response {
	domain := req.Domain
	if domain == "" && len(req.Data) > 0 {
		var data struct {
			Domain string `json:"domain"`
		}
		_ = json.Unmarshal(req.Data, &data)
		domain = data.Domain
	}

	exists, err := h.tracker.HasEmail(ctx, domain)
	if err != nil {
		h.logger.Error("CHECK_EMAIL_EXISTS failed",
			zap.String("domain", domain),
			zap.Error(err),
		)
		return ExistsResponse(false)
	}
	return ExistsResponse(exists)
}

func (h *handlers) openPopup(ctx context.Context, _ Request) Response {
	if h.popup == nil {
		return OK()
	}
	if err := h.popup.OpenPopup(ctx); err != nil {
		return Fail(err.Error())
	}
	return OK()
}

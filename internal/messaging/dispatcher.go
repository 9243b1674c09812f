package messaging

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"emailtracker/pkg/metrics"
)

type HandlerFunc func(ctx context.Context, req Request) Response

// Dispatcher routes requests by message type.
type Dispatcher struct {
	routes map[MessageType]HandlerFunc
	logger *zap.Logger
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		routes: make(map[MessageType]HandlerFunc),
		logger: logger,
	}
}

func (d *Dispatcher) Register(t MessageType, h HandlerFunc) {
	d.routes[t] = h
}

// Dispatch never returns an error; every failure becomes a response.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("Message handler panic recovered",
				zap.String("type", string(req.Type)),
				zap.Any("panic", rec),
			)
			resp = Fail(fmt.Sprintf("internal error handling %s", req.Type))
		}
		resp.ID = req.ID
		status := "ok"
		if resp.Success != nil && !*resp.Success {
			status = "error"
		}
		metrics.RecordMessage(string(req.Type), status)
	}()

	h, ok := d.routes[req.Type]
	if !ok {
		d.logger.Warn("No handler for message", zap.String("type", string(req.Type)))
		return Fail(unknownType(req.Type))
	}
	return h(ctx, req)
}

package consume

import (
	"context"
	"log/slog"
)

// Mux routes envelopes to handlers by event type. Types nobody registered
// are dropped so schema evolution cannot wedge a partition.
type Mux struct {
	handlers map[string]Handler
	logger   *slog.Logger
}

func NewMux(logger *slog.Logger) *Mux {
	return &Mux{handlers: make(map[string]Handler), logger: logger}
}

func (m *Mux) Register(eventType string, h Handler) *Mux {
	m.handlers[eventType] = h
	return m
}

func (m *Mux) Handle(ctx context.Context, env Envelope) (Verdict, error) {
	h, ok := m.handlers[env.Type]
	if !ok {
		if m.logger != nil {
			m.logger.Warn("dropping unrecognized event type", "type", env.Type, "event_id", env.EventID)
		}
		return Drop, ErrUnknownEventType
	}
	return h.Handle(ctx, env)
}

var _ Handler = (*Mux)(nil)

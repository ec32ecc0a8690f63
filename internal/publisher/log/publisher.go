// Package log "publishes" digests by writing them to the structured log. It
// serves local runs where no mail relay is subscribed.
package log

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/award-digest/internal/digest"
)

// Publisher logs each payload.
type Publisher struct {
	logger *zap.Logger
	seq    atomic.Int64
}

// New returns a Publisher writing to logger.
func New(logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{logger: logger.Named("notify")}
}

// Publish logs the payload summary and returns a local sequence ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	id := fmt.Sprintf("log-%d", p.seq.Add(1))
	fields := []zap.Field{zap.String("topic", topic), zap.String("message_id", id)}
	if d, ok := payload.(digest.Payload); ok {
		fields = append(fields,
			zap.String("subject", d.Subject),
			zap.String("recipient", d.Recipient),
			zap.Int("count", d.Count),
			zap.Float64("total", d.Total),
			zap.Int("body_bytes", len(d.Body)),
		)
	} else {
		fields = append(fields, zap.Any("payload", payload))
	}
	p.logger.Info("digest ready for delivery", fields...)
	return id, nil
}

package eventstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// NatsPublisher wraps a Store and additionally publishes every appended
// event to NATS, subject "pkgrelease.events.{eventType}", so operators can
// subscribe to task/step progress without polling the store. Append always
// persists first and publishes best-effort second; a publish failure is
// logged, not returned.
type NatsPublisher struct {
	Store
	nc           *nats.Conn
	subjectPrefix string
}

// NewNatsPublisher wraps store, publishing to nc under subjectPrefix
// (default "pkgrelease.events" when empty).
func NewNatsPublisher(store Store, nc *nats.Conn, subjectPrefix string) *NatsPublisher {
	if subjectPrefix == "" {
		subjectPrefix = "pkgrelease.events"
	}
	return &NatsPublisher{Store: store, nc: nc, subjectPrefix: subjectPrefix}
}

// Append persists the event through the wrapped Store, then best-effort
// publishes it to NATS. A publish failure does not fail the Append.
func (p *NatsPublisher) Append(ctx context.Context, taskID, eventType string, payload []byte, metadata map[string]string) error {
	if err := p.Store.Append(ctx, taskID, eventType, payload, metadata); err != nil {
		return err
	}
	subject := fmt.Sprintf("%s.%s", p.subjectPrefix, eventType)
	if err := p.nc.Publish(subject, payload); err != nil {
		slog.Warn("publish event to nats failed", "task_id", taskID, "subject", subject, "error", err)
	}
	return nil
}

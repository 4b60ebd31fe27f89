package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSGateway publishes lifecycle events to a JetStream subject so the
// community platform's bot and web processes can render them. One subject
// per recipient under a shared prefix.
type NATSGateway struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	prefix  string
	logger  *zap.Logger
}

const notifyStreamName = "MATCH_EVENTS"

func NewNATSGateway(natsURL, subjectPrefix string, logger *zap.Logger) (*NATSGateway, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err := js.StreamInfo(notifyStreamName); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     notifyStreamName,
			Subjects: []string{subjectPrefix + ".>"},
			Storage:  nats.FileStorage,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create stream: %w", err)
		}
	}

	return &NATSGateway{
		nc:     nc,
		js:     js,
		prefix: subjectPrefix,
		logger: logger,
	}, nil
}

func (g *NATSGateway) Notify(_ context.Context, recipientID string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		g.logger.Error("Failed to marshal notification",
			zap.String("recipient", recipientID),
			zap.String("type", event.Type),
			zap.Error(err))
		return
	}

	subject := fmt.Sprintf("%s.%s", g.prefix, recipientID)
	if _, err := g.js.PublishAsync(subject, data); err != nil {
		g.logger.Warn("Failed to publish notification",
			zap.String("subject", subject),
			zap.String("type", event.Type),
			zap.Error(err))
	}
}

func (g *NATSGateway) Close() {
	g.nc.Close()
}

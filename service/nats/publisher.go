package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fundlift/fundlift/service/metrics"
)

// Publisher defines the interface for publishing project events to NATS.
type Publisher interface {
	// PublishProjectEvent publishes a single project event. Contract
	// events go to SubjectProjects, notices to SubjectNotices.
	PublishProjectEvent(ctx context.Context, event *ProjectEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// CorePublisher publishes project events over core NATS pub/sub.
type CorePublisher struct {
	nc      *nats.Conn
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewPublisher connects to NATS and returns a CorePublisher.
// If m is nil, no metrics are recorded.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*CorePublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("fundlift-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("NATS publisher initialized", "url", natsURL)

	return &CorePublisher{
		nc:      nc,
		metrics: m,
		logger:  logger,
	}, nil
}

// PublishProjectEvent publishes the event to its subject.
func (p *CorePublisher) PublishProjectEvent(ctx context.Context, event *ProjectEvent) error {
	if event.PublishedAt.IsZero() {
		event.PublishedAt = time.Now().UTC()
	}

	subject := SubjectProjects
	if event.Kind == KindNotice {
		subject = SubjectNotices
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal project event: %w", err)
	}

	err = p.nc.Publish(subject, data)
	status := "success"
	if err != nil {
		status = "error"
	}
	if p.metrics != nil {
		p.metrics.RecordNATSPublish(subject, status)
	}
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	p.logger.DebugContext(ctx, "published project event",
		"subject", subject,
		"kind", event.Kind,
		"project_id", event.ProjectID,
	)
	return nil
}

// Close drains and closes the NATS connection.
func (p *CorePublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}

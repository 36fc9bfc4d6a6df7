package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fundlift/fundlift/service/metrics"
	natspkg "github.com/fundlift/fundlift/service/nats"
)

// SSEBridge relays project events from NATS to Server-Sent Events
// connections. Events are transient: a client that connects late simply
// starts from the next event, and GET /api/v1/projects fills in the rest.
type SSEBridge struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewSSEBridge connects to NATS for SSE relaying.
func NewSSEBridge(natsURL string, logger *slog.Logger) (*SSEBridge, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("fundlift-sse-bridge"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("SSE bridge initialized", "nats_url", natsURL)

	return &SSEBridge{
		nc:     nc,
		logger: logger,
	}, nil
}

// Close closes the NATS connection.
func (b *SSEBridge) Close() error {
	if b.nc != nil {
		b.nc.Close()
		b.logger.Info("SSE bridge closed")
	}
	return nil
}

// handleStreamProjects streams project events and workflow notices to the
// client over SSE.
// GET /api/v1/stream/projects
func handleStreamProjects(bridge *SSEBridge, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		flusher.Flush()

		logger.DebugContext(r.Context(), "SSE client connected",
			"remote_addr", r.RemoteAddr,
		)
		if m != nil {
			m.SSEConnectionOpened()
			defer m.SSEConnectionClosed()
		}

		msgChan := make(chan *nats.Msg, 16)
		sub, err := bridge.nc.ChanSubscribe(natspkg.SubjectWildcard, msgChan)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to subscribe for SSE relay", "error", err)
			fmt.Fprintf(w, "event: error\ndata: {\"error\": \"failed to subscribe\"}\n\n")
			flusher.Flush()
			return
		}
		defer sub.Unsubscribe()

		// Send initial connection event
		fmt.Fprintf(w, "event: connected\ndata: {\"subject\":\"%s\"}\n\n", natspkg.SubjectWildcard)
		flusher.Flush()

		// Keepalive comments prevent proxies from timing the stream out.
		keepalive := time.NewTicker(10 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flusher.Flush()

			case msg := <-msgChan:
				var event natspkg.ProjectEvent
				if err := json.Unmarshal(msg.Data, &event); err != nil {
					logger.WarnContext(r.Context(), "failed to unmarshal project event", "error", err)
					continue
				}

				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, string(msg.Data))
				flusher.Flush()

				if m != nil {
					m.RecordSSEEvent(event.Kind)
				}
				logger.DebugContext(r.Context(), "sent project event",
					"kind", event.Kind,
					"project_id", event.ProjectID,
				)

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "SSE client disconnected",
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}

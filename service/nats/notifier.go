package nats

import (
	"context"
	"log/slog"

	"github.com/fundlift/fundlift/service/workflow"
)

// NoticeNotifier publishes workflow outcomes as notice events, so SSE
// clients and stream consumers see them alongside contract events.
type NoticeNotifier struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewNoticeNotifier creates a workflow notifier backed by the publisher.
func NewNoticeNotifier(publisher Publisher, logger *slog.Logger) *NoticeNotifier {
	return &NoticeNotifier{publisher: publisher, logger: logger}
}

// Notify publishes the notice. Publish failures are logged and dropped;
// a notice is advisory and the workflow outcome already stands.
func (n *NoticeNotifier) Notify(ctx context.Context, notice workflow.Notice) {
	err := n.publisher.PublishProjectEvent(ctx, &ProjectEvent{
		Kind:    KindNotice,
		Intent:  string(notice.Intent),
		Outcome: notice.Outcome,
		Message: notice.Message,
		TxHash:  notice.TxHash,
	})
	if err != nil {
		n.logger.WarnContext(ctx, "failed to publish workflow notice",
			"intent", string(notice.Intent),
			"error", err,
		)
	}
}

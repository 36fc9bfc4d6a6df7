// Package events polls the chain for contract logs and turns them into
// published project events. The watcher is the push half of the refresh
// strategy: a log observed on chain triggers a snapshot refresh and a
// NATS event, so views update even for transactions this client did not
// submit.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fundlift/fundlift/service/chain"
	"github.com/fundlift/fundlift/service/metrics"
	"github.com/fundlift/fundlift/service/nats"
)

// LogSource is the chain surface the watcher polls.
type LogSource interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Decoder turns raw logs back into contract events.
type Decoder interface {
	Address() common.Address
	EventTopics() (projectCreated, contributionMade common.Hash)
	UnpackProjectCreated(log types.Log) (*chain.ProjectCreatedEvent, error)
	UnpackContributionMade(log types.Log) (*chain.ContributionMadeEvent, error)
}

// Refresher replaces the project snapshot after observed activity.
type Refresher interface {
	Refresh(ctx context.Context) ([]chain.Project, error)
}

// Watcher polls for contract logs on a fixed interval.
type Watcher struct {
	source    LogSource
	decoder   Decoder
	projects  Refresher
	publisher nats.Publisher
	interval  time.Duration
	decimals  uint8
	metrics   *metrics.Metrics
	logger    *slog.Logger

	lastBlock uint64
}

// NewWatcher creates a watcher. decimals is the native currency's decimal
// precision, used to format event amounts. If m is nil, no metrics are
// recorded; if publisher is nil, events only trigger refreshes.
func NewWatcher(source LogSource, decoder Decoder, projects Refresher, publisher nats.Publisher, interval time.Duration, decimals uint8, m *metrics.Metrics, logger *slog.Logger) *Watcher {
	return &Watcher{
		source:    source,
		decoder:   decoder,
		projects:  projects,
		publisher: publisher,
		interval:  interval,
		decimals:  decimals,
		metrics:   m,
		logger:    logger,
	}
}

// Run polls until ctx is canceled. Poll failures are logged and retried
// on the next tick; the cursor does not advance past unprocessed blocks.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "event watcher started",
		"contract", w.decoder.Address().Hex(),
		"interval", w.interval.String(),
	)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "event watcher stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := w.Poll(ctx); err != nil {
				w.logger.WarnContext(ctx, "event poll failed", "error", err)
			}
		}
	}
}

// Poll fetches logs newer than the cursor and processes them. Exported so
// a caller can force an immediate poll alongside the Run loop.
func (w *Watcher) Poll(ctx context.Context) error {
	createdTopic, contributionTopic := w.decoder.EventTopics()
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(w.lastBlock + 1),
		Addresses: []common.Address{w.decoder.Address()},
		Topics:    [][]common.Hash{{createdTopic, contributionTopic}},
	}

	logs, err := w.source.FilterLogs(ctx, query)
	if err != nil {
		return fmt.Errorf("filter logs: %w", err)
	}
	if len(logs) == 0 {
		return nil
	}

	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		switch lg.Topics[0] {
		case createdTopic:
			w.handleProjectCreated(ctx, lg)
		case contributionTopic:
			w.handleContributionMade(ctx, lg)
		}
		if lg.BlockNumber > w.lastBlock {
			w.lastBlock = lg.BlockNumber
		}
	}

	// One refresh per poll batch regardless of how many logs arrived.
	if _, err := w.projects.Refresh(ctx); err != nil {
		w.logger.WarnContext(ctx, "refresh after contract events failed", "error", err)
		return nil
	}
	w.publish(ctx, &nats.ProjectEvent{Kind: nats.KindSnapshotUpdated})
	return nil
}

func (w *Watcher) handleProjectCreated(ctx context.Context, lg types.Log) {
	ev, err := w.decoder.UnpackProjectCreated(lg)
	if err != nil {
		w.logger.WarnContext(ctx, "failed to decode ProjectCreated log",
			"block", lg.BlockNumber,
			"tx", lg.TxHash.Hex(),
			"error", err,
		)
		return
	}
	if w.metrics != nil {
		w.metrics.RecordContractEvent("project_created")
	}
	w.logger.InfoContext(ctx, "observed ProjectCreated",
		"project_id", ev.ProjectId.Uint64(),
		"title", ev.Title,
		"creator", ev.Creator.Hex(),
	)
	w.publish(ctx, &nats.ProjectEvent{
		Kind:       nats.KindProjectCreated,
		ProjectID:  ev.ProjectId.Uint64(),
		Title:      ev.Title,
		Creator:    ev.Creator.Hex(),
		GoalAmount: chain.FormatAmount(ev.GoalAmount, w.decimals),
		Deadline:   ev.Deadline.Uint64(),
		TxHash:     lg.TxHash.Hex(),
	})
}

func (w *Watcher) handleContributionMade(ctx context.Context, lg types.Log) {
	ev, err := w.decoder.UnpackContributionMade(lg)
	if err != nil {
		w.logger.WarnContext(ctx, "failed to decode ContributionMade log",
			"block", lg.BlockNumber,
			"tx", lg.TxHash.Hex(),
			"error", err,
		)
		return
	}
	if w.metrics != nil {
		w.metrics.RecordContractEvent("contribution_made")
	}
	w.logger.InfoContext(ctx, "observed ContributionMade",
		"project_id", ev.ProjectId.Uint64(),
		"contributor", ev.Contributor.Hex(),
	)
	w.publish(ctx, &nats.ProjectEvent{
		Kind:        nats.KindContributionMade,
		ProjectID:   ev.ProjectId.Uint64(),
		Contributor: ev.Contributor.Hex(),
		Amount:      chain.FormatAmount(ev.Amount, w.decimals),
		TxHash:      lg.TxHash.Hex(),
	})
}

func (w *Watcher) publish(ctx context.Context, event *nats.ProjectEvent) {
	if w.publisher == nil {
		return
	}
	if err := w.publisher.PublishProjectEvent(ctx, event); err != nil {
		w.logger.WarnContext(ctx, "failed to publish project event",
			"kind", event.Kind,
			"error", err,
		)
	}
}

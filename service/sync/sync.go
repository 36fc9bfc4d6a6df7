// Package sync keeps the in-memory project snapshot consistent with the
// contract. The snapshot is a cache with a replace-on-success,
// retain-on-failure policy: every refresh overwrites the whole set from
// the contract's canonical read, a failed read leaves the previous
// snapshot intact, and the client never patches individual fields.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fundlift/fundlift/service/chain"
	"github.com/fundlift/fundlift/service/metrics"
)

// Reader is the read-only contract surface the synchronizer consumes.
type Reader interface {
	GetAllProjects(ctx context.Context) ([]chain.Project, error)
}

// Synchronizer owns the project snapshot. Safe for concurrent use:
// overlapping Refresh calls are coalesced into one contract read, and
// completions are generation-stamped so a slow stale read can never
// overwrite a newer snapshot.
type Synchronizer struct {
	reader  Reader
	metrics *metrics.Metrics
	logger  *slog.Logger

	group singleflight.Group
	reads atomic.Uint64

	mu         stdsync.Mutex
	snapshot   []chain.Project
	applied    uint64 // generation of the snapshot currently applied
	refreshed  time.Time
	hasRefresh bool
}

// New creates a Synchronizer. If m is nil, no metrics are recorded.
func New(reader Reader, m *metrics.Metrics, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		reader:  reader,
		metrics: m,
		logger:  logger,
	}
}

// Refresh replaces the snapshot with a fresh full read of the project
// set. Concurrent callers share a single in-flight read. On failure the
// previous snapshot is retained and the error reported.
func (s *Synchronizer) Refresh(ctx context.Context) ([]chain.Project, error) {
	result, err, shared := s.group.Do("refresh", func() (interface{}, error) {
		return s.refresh(ctx)
	})
	if shared {
		s.logger.DebugContext(ctx, "refresh coalesced with in-flight read")
	}
	if err != nil {
		return nil, err
	}
	return result.([]chain.Project), nil
}

func (s *Synchronizer) refresh(ctx context.Context) ([]chain.Project, error) {
	generation := s.reads.Add(1)
	start := time.Now()

	projects, err := s.reader.GetAllProjects(ctx)
	duration := time.Since(start).Seconds()

	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordRefresh("error", duration, 0)
		}
		s.logger.WarnContext(ctx, "project refresh failed, retaining previous snapshot",
			"error", err,
		)
		return nil, fmt.Errorf("project refresh failed: %w", err)
	}

	s.mu.Lock()
	// Last write wins: apply only if no newer read has landed already.
	if generation > s.applied {
		s.snapshot = projects
		s.applied = generation
		s.refreshed = time.Now()
		s.hasRefresh = true
	}
	current := s.snapshot
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordRefresh("success", duration, len(current))
	}
	s.logger.DebugContext(ctx, "project snapshot refreshed",
		"count", len(projects),
		"generation", generation,
	)
	return current, nil
}

// Snapshot returns the current project set. The returned slice is a copy;
// callers may not mutate project fields (they are shared with other
// readers until the next refresh replaces them).
func (s *Synchronizer) Snapshot() []chain.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chain.Project, len(s.snapshot))
	copy(out, s.snapshot)
	return out
}

// Project returns the project with the given id from the current
// snapshot, if present.
func (s *Synchronizer) Project(id uint64) (chain.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.snapshot {
		if p.Id != nil && p.Id.Uint64() == id {
			return p, true
		}
	}
	return chain.Project{}, false
}

// LastRefreshed reports when the snapshot was last replaced, and whether
// any refresh has succeeded yet.
func (s *Synchronizer) LastRefreshed() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshed, s.hasRefresh
}

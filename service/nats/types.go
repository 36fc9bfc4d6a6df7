package nats

import (
	"time"
)

// Subjects project events are published on. Events are transient refresh
// triggers, not durable records: the chain itself is the journal, so the
// publisher uses core NATS rather than a retained stream.
const (
	// SubjectProjects carries contract-originated events (project
	// created, contribution made) and snapshot refresh markers.
	SubjectProjects = "projects.events"

	// SubjectNotices carries workflow outcome notifications destined
	// for connected UI clients.
	SubjectNotices = "projects.notices"

	// SubjectWildcard subscribes to everything above.
	SubjectWildcard = "projects.>"
)

// Event kinds.
const (
	KindProjectCreated   = "project_created"
	KindContributionMade = "contribution_made"
	KindSnapshotUpdated  = "snapshot_updated"
	KindNotice           = "notice"
)

// ProjectEvent is a project-related event published to NATS and relayed
// to SSE clients.
type ProjectEvent struct {
	Kind string `json:"kind"`

	// Contract event fields (project_created / contribution_made).
	ProjectID   uint64 `json:"project_id,omitempty"`
	Title       string `json:"title,omitempty"`
	Creator     string `json:"creator,omitempty"`
	Contributor string `json:"contributor,omitempty"`
	// Amount and GoalAmount are decimal currency strings.
	Amount     string `json:"amount,omitempty"`
	GoalAmount string `json:"goal_amount,omitempty"`
	Deadline   uint64 `json:"deadline,omitempty"`
	TxHash     string `json:"tx_hash,omitempty"`

	// Notice fields (kind == notice).
	Intent  string `json:"intent,omitempty"`
	Outcome string `json:"outcome,omitempty"` // "success" or "failure"
	Message string `json:"message,omitempty"`

	PublishedAt time.Time `json:"published_at"`
}

package model

import "time"

const (
	EventIssueSubmitted    = "issue.submitted"
	EventIssueAssigned     = "issue.assigned"
	EventSolutionProposed  = "solution.proposed"
	EventSolutionRevised   = "solution.revised"
	EventSolutionWithdrawn = "solution.withdrawn"
	EventIssueAcknowledged = "issue.acknowledged"
	EventIssueEdited       = "issue.edited"
	EventIssueDeleted      = "issue.deleted"
)

// LifecycleEvent is published after a lifecycle operation commits.
type LifecycleEvent struct {
	EventType  string    `json:"event_type"`
	IssueID    int64     `json:"issue_id"`
	Status     Status    `json:"status,omitempty"`
	ActorRole  Role      `json:"actor_role"`
	ActorID    int64     `json:"actor_id"`
	Bucket     string    `json:"bucket,omitempty"`
	Prefix     string    `json:"prefix,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

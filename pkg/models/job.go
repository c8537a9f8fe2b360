// Package models defines the record types shared by every component of
// the collector core: jobs, changes, and the three entity classes
// (communities, builders, properties) plus their child collections
// (spec.md §3). These are plain structs — traversals between them are
// queries issued by pkg/entitystore and pkg/changeledger, never
// in-memory object-graph walks (spec.md §9 redesign flag).
package models

import "time"

// EntityType is the closed set of entity classes the core ingests.
type EntityType string

const (
	EntityCommunity EntityType = "community"
	EntityBuilder   EntityType = "builder"
	EntityProperty  EntityType = "property"
)

// JobType is the closed set of collection job kinds.
type JobType string

const (
	JobDiscovery JobType = "discovery"
	JobUpdate    JobType = "update"
	JobInventory JobType = "inventory"
	JobBackfill  JobType = "backfill"
)

// JobStatus is a job's position in the state machine described in
// spec.md §3.3.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusRunning    JobStatus = "running"
	JobStatusCancelling JobStatus = "cancelling"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether s is a state the job never leaves.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// SearchFilters carries the structured scoping metadata a job was
// enqueued with (spec.md §3.3): which community a builder/property job
// belongs to, and which community-builder cards a builder discovery job
// should back-link on approval (spec.md §4.G.2).
type SearchFilters struct {
	CommunityName          string   `json:"community_name,omitempty"`
	CommunityBuilderCardIDs []string `json:"community_builder_card_ids,omitempty"`
}

// Job is a persistent unit of collection work (spec.md §3.3).
type Job struct {
	ID                int64
	JobID             string
	EntityType        EntityType
	JobType           JobType
	EntityID          *string
	ParentEntityType  *EntityType
	ParentEntityID    *string
	Status            JobStatus
	Priority          int
	Attempts          int
	MaxAttempts       int
	SearchQuery       string
	SearchFilters     SearchFilters
	ItemsFound        int
	ChangesDetected   int
	NewEntitiesFound  int
	ChangesApplied    int
	CreatedAt         time.Time
	StartedAt         *time.Time
	CompletedAt       *time.Time
	NextRunAt         time.Time
	ErrorMessage      *string
	InitiatedBy       *string
}

// StatusHistoryEntry is one row of the job audit trail (spec.md §4.E.6).
type StatusHistoryEntry struct {
	ID         int64
	JobID      string
	FromStatus *JobStatus
	ToStatus   JobStatus
	Reason     string
	CreatedAt  time.Time
}

// JobSpec is the caller-supplied description of a job to enqueue
// (spec.md §6.1 enqueue_job).
type JobSpec struct {
	EntityType       EntityType
	JobType          JobType
	EntityID         *string
	ParentEntityType *EntityType
	ParentEntityID   *string
	Priority         int
	SearchQuery      string
	SearchFilters    SearchFilters
	MaxAttempts      *int
	InitiatedBy      string
}

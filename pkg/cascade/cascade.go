// Package cascade is Component G (spec.md §4.G): the post-approval
// propagation that runs once per committed change — linking previously
// unparented jobs to a newly-created community, back-linking builder
// display cards, and enqueuing coverage-backfill jobs. It never recurses
// past the one level a single commit can trigger; any further follow-up
// proceeds through normal job execution.
package cascade

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jordigilh/realestate-collector/pkg/entitystore"
	"github.com/jordigilh/realestate-collector/pkg/models"
	"github.com/jordigilh/realestate-collector/pkg/shared/logging"
)

// JobStore is the job-queue slice the resolver needs. *orchestrator.JobStore
// satisfies this.
type JobStore interface {
	LinkPendingChildren(ctx context.Context, communityName, communityID string) (int, error)
	HasActiveChildJob(ctx context.Context, parentEntityID string, entityType models.EntityType, jobType models.JobType) (bool, error)
	Enqueue(ctx context.Context, spec models.JobSpec) (string, error)
}

// EntityReader is the read-side slice of pkg/entitystore.Store the
// resolver needs to look up the community name and builder row ID an
// approved change only gives it the public ID for.
type EntityReader interface {
	ReadCommunity(ctx context.Context, id string, includes []entitystore.Include) (*models.Community, error)
	ReadBuilder(ctx context.Context, id string) (*models.Builder, error)
}

// CardLinker is the narrow write surface spec.md §4.G.2 needs.
type CardLinker interface {
	LinkBuilderCard(ctx context.Context, sourceCardID string, builderRowID int64) error
}

// Resolver is Component G.
type Resolver struct {
	jobs   JobStore
	reader EntityReader
	cards  CardLinker
	log    *logrus.Logger
}

// New builds a Resolver.
func New(jobs JobStore, reader EntityReader, cards CardLinker, log *logrus.Logger) *Resolver {
	if log == nil {
		log = logrus.New()
	}
	return &Resolver{jobs: jobs, reader: reader, cards: cards, log: log}
}

// OnApplied runs the cascade rules for one approved change. It satisfies
// both pkg/collector.Cascader and pkg/review.Cascader.
func (r *Resolver) OnApplied(ctx context.Context, job *models.Job, change *models.Change, entityID string) error {
	if change.ChangeType != models.ChangeCreate {
		return nil
	}
	switch change.EntityType {
	case models.EntityCommunity:
		return r.onCommunityCreated(ctx, job, entityID)
	case models.EntityBuilder:
		return r.onBuilderCreated(ctx, job, entityID)
	default:
		return nil
	}
}

// onCommunityCreated implements rules 1 and 3: unblock any job that was
// waiting on this community by name, then backfill builder-discovery
// coverage if nothing is already covering it.
func (r *Resolver) onCommunityCreated(ctx context.Context, job *models.Job, communityID string) error {
	community, err := r.reader.ReadCommunity(ctx, communityID, nil)
	if err != nil {
		return err
	}

	linked, err := r.jobs.LinkPendingChildren(ctx, community.Name, communityID)
	if err != nil {
		return err
	}
	if linked > 0 {
		r.log.WithFields(logging.JobFields("cascade_link_children", job.JobID).Count(linked).ToLogrus()).
			Info("linked pending jobs to newly created community")
	}

	hasBuilderJob, err := r.jobs.HasActiveChildJob(ctx, communityID, models.EntityBuilder, models.JobDiscovery)
	if err != nil {
		return err
	}
	if hasBuilderJob {
		return nil
	}

	priority := job.Priority - 1
	if priority < 1 {
		priority = 1
	}
	parentType := models.EntityCommunity
	_, err = r.jobs.Enqueue(ctx, models.JobSpec{
		EntityType:       models.EntityBuilder,
		JobType:          models.JobDiscovery,
		ParentEntityType: &parentType,
		ParentEntityID:   &communityID,
		Priority:         priority,
		SearchQuery:      fmt.Sprintf("builders in %s, %s", community.Name, community.City),
		InitiatedBy:      "cascade",
	})
	return err
}

// onBuilderCreated implements rule 2: back-link every community builder
// card the originating job named to the builder just approved.
func (r *Resolver) onBuilderCreated(ctx context.Context, job *models.Job, builderID string) error {
	if len(job.SearchFilters.CommunityBuilderCardIDs) == 0 {
		return nil
	}
	builder, err := r.reader.ReadBuilder(ctx, builderID)
	if err != nil {
		return err
	}
	for _, sourceCardID := range job.SearchFilters.CommunityBuilderCardIDs {
		if err := r.cards.LinkBuilderCard(ctx, sourceCardID, builder.ID); err != nil {
			return err
		}
	}
	return nil
}

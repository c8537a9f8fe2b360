package coreapi

import (
	"context"
	"fmt"

	"github.com/jordigilh/realestate-collector/pkg/corekinds"
	"github.com/jordigilh/realestate-collector/pkg/models"
)

// CoverageScope is the closed set of relations coverage_report/backfill
// can be scoped to (spec.md §6.1, glossary "Coverage backfill").
type CoverageScope string

const (
	// ScopeCommunityBuilders scopes to communities with no builder row:
	// the same population pkg/cascade's rule 3 backfills one at a time.
	ScopeCommunityBuilders CoverageScope = "community_builders"
	// ScopeBuilderCards scopes to community_builders display cards never
	// matched to a builder profile: the same population pkg/cascade's
	// rule 2 resolves one at a time on builder approval.
	ScopeBuilderCards CoverageScope = "builder_cards"
)

// CoverageReport is coverage_report's result: how many entities in scope
// are missing the relation, plus the unlinked IDs themselves (capped —
// see UnlinkedIDsTruncated).
type CoverageReport struct {
	Scope                CoverageScope
	TotalEntities        int
	GapCount             int
	UnlinkedIDs          []string
	UnlinkedIDsTruncated bool
}

const maxReportedUnlinkedIDs = 200

// CoverageReport implements spec.md §6.1 coverage_report.
func (f *Facade) CoverageReport(ctx context.Context, scope CoverageScope) (*CoverageReport, error) {
	switch scope {
	case ScopeCommunityBuilders:
		total, err := f.coverage.CommunityCount(ctx)
		if err != nil {
			return nil, err
		}
		missing, err := f.coverage.CommunitiesMissingBuilders(ctx)
		if err != nil {
			return nil, err
		}
		report := &CoverageReport{Scope: scope, TotalEntities: total, GapCount: len(missing), UnlinkedIDs: missing}
		if len(report.UnlinkedIDs) > maxReportedUnlinkedIDs {
			report.UnlinkedIDs = report.UnlinkedIDs[:maxReportedUnlinkedIDs]
			report.UnlinkedIDsTruncated = true
		}
		return report, nil

	case ScopeBuilderCards:
		count, err := f.coverage.UnlinkedBuilderCardCount(ctx)
		if err != nil {
			return nil, err
		}
		return &CoverageReport{Scope: scope, GapCount: count}, nil

	default:
		return nil, corekinds.PayloadInvalidErr("unknown coverage scope: " + string(scope))
	}
}

// BackfillResult is backfill's result: either the jobs actually enqueued,
// or (when dry_run) the preview of what would have been.
type BackfillResult struct {
	DryRun      bool
	JobsCreated int
	JobIDs      []string
}

// Backfill implements spec.md §6.1 backfill: for scope=community_builders,
// enqueues a builder.discovery job (deduped against any already-active
// one, same check as pkg/cascade's rule 3) for every community with no
// builder row, at priority. dryRun previews the count without enqueuing.
func (f *Facade) Backfill(ctx context.Context, scope CoverageScope, priority int, dryRun bool) (*BackfillResult, error) {
	if scope != ScopeCommunityBuilders {
		return nil, corekinds.PayloadInvalidErr("backfill does not support scope: " + string(scope))
	}
	if priority < 1 {
		priority = 1
	}

	communityIDs, err := f.coverage.CommunitiesMissingBuilders(ctx)
	if err != nil {
		return nil, err
	}

	result := &BackfillResult{DryRun: dryRun}
	for _, communityID := range communityIDs {
		communityID := communityID
		active, err := f.jobs.HasActiveChildJob(ctx, communityID, models.EntityBuilder, models.JobDiscovery)
		if err != nil {
			return nil, err
		}
		if active {
			continue
		}
		result.JobsCreated++
		if dryRun {
			continue
		}
		parentType := models.EntityCommunity
		jobID, err := f.jobs.EnqueueJob(ctx, models.JobSpec{
			EntityType:       models.EntityBuilder,
			JobType:          models.JobDiscovery,
			ParentEntityType: &parentType,
			ParentEntityID:   &communityID,
			Priority:         priority,
			SearchQuery:      fmt.Sprintf("builders for community %s", communityID),
			InitiatedBy:      "backfill",
		})
		if err != nil {
			return nil, err
		}
		result.JobIDs = append(result.JobIDs, jobID)
	}
	return result, nil
}

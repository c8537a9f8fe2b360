package entitystore

import (
	"context"

	apperrors "github.com/jordigilh/realestate-collector/internal/errors"
)

// CommunitiesMissingBuilders returns the public IDs of active communities
// that have no builder row at all (spec.md §6.1 coverage_report /
// backfill, scope=community_builders): the same population pkg/cascade's rule 3
// backfills one at a time, exposed here as a bulk read for the operator
// command surface.
func (s *Store) CommunitiesMissingBuilders(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.community_id FROM communities c
		WHERE c.deleted = false
		  AND NOT EXISTS (SELECT 1 FROM builders b WHERE b.community_id = c.id)`)
	if err != nil {
		return nil, apperrors.NewDatabaseError("communities_missing_builders", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.NewDatabaseError("communities_missing_builders scan", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UnlinkedBuilderCardCount reports how many community_builders display
// cards have never been matched to a builder profile (spec.md §6.1
// coverage_report, scope=builder_cards) — the same partial index
// (community_builders_unlinked_idx) pkg/cascade's rule 2 resolves one at a
// time via LinkBuilderCard.
func (s *Store) UnlinkedBuilderCardCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM community_builders WHERE builder_profile_id IS NULL`).Scan(&count)
	if err != nil {
		return 0, apperrors.NewDatabaseError("unlinked_builder_card_count", err)
	}
	return count, nil
}

// CommunityCount returns the number of active communities, the
// denominator for a community-scoped coverage report.
func (s *Store) CommunityCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM communities WHERE deleted = false`).Scan(&count)
	if err != nil {
		return 0, apperrors.NewDatabaseError("community_count", err)
	}
	return count, nil
}

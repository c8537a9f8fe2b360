// Package entitystore is Component A (spec.md §4.A): the canonical
// tables for communities, builders, properties and their child rows.
// It exposes idempotent upsert and soft-delete to the collector pipeline
// (D), the review engine (F), and the cascade resolver (G).
package entitystore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	apperrors "github.com/jordigilh/realestate-collector/internal/errors"
	"github.com/jordigilh/realestate-collector/pkg/dedupe"
	"github.com/jordigilh/realestate-collector/pkg/ids"
	"github.com/jordigilh/realestate-collector/pkg/models"
)

// Store is the entity store's single entry point, backed by a sqlx
// handle over the pgx stdlib driver (internal/database.OpenSQLX). All
// mutations run inside transactions; reads use the pool directly since
// Postgres MVCC gives consistent snapshots to concurrent readers
// without additional locking (spec.md §6.3).
type Store struct {
	db  *sqlx.DB
	log *zap.Logger
}

// New builds a Store over db, logging with log (or a no-op logger if nil).
func New(db *sqlx.DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log}
}

// FindByFingerprint returns the public IDs of active entityType rows
// whose materialized fingerprint equals fingerprint (spec.md §4.A).
// Zero results means NEW, exactly one means EXISTING, two or more means
// AMBIGUOUS — the caller (pkg/dedupe.Detector) makes that classification.
func (s *Store) FindByFingerprint(ctx context.Context, entityType, fingerprint string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id FROM entity_fingerprints
		WHERE entity_type = $1 AND fingerprint = $2`, entityType, fingerprint)
	if err != nil {
		return nil, apperrors.NewDatabaseError("find_by_fingerprint", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.NewDatabaseError("find_by_fingerprint scan", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("find_by_fingerprint", err)
	}
	return ids, nil
}

// recordFingerprint upserts the materialized fingerprint row for
// (entityType, entityID) inside tx.
func recordFingerprint(ctx context.Context, tx *sqlx.Tx, entityType, entityID, fingerprint string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO entity_fingerprints (entity_type, entity_id, fingerprint)
		VALUES ($1, $2, $3)
		ON CONFLICT (entity_type, fingerprint) DO UPDATE SET entity_id = EXCLUDED.entity_id`,
		entityType, entityID, fingerprint)
	return err
}

// UpsertCommunity inserts a new community (id == nil) or updates the row
// at id, maintaining its fingerprint row and child collections inside one
// transaction (spec.md §4.A upsert, "replaces by (parent_id, natural_key)"
// for children).
func (s *Store) UpsertCommunity(ctx context.Context, id *string, c *models.Community) (string, error) {
	var publicID string
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		fingerprint := dedupe.Fingerprint(c.Name, c.City, c.State)

		if id == nil {
			publicID = ids.New(ids.PrefixCommunity)
			err := tx.QueryRowContext(ctx, `
				INSERT INTO communities
					(community_id, name, city, state, postal_code, owner_user_id,
					 verified, follower_count, home_count, resident_count, price_min, price_max)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
				RETURNING id`,
				publicID, c.Name, c.City, c.State, c.PostalCode, c.OwnerUserID,
				c.Verified, c.FollowerCount, c.HomeCount, c.ResidentCount, c.PriceMin, c.PriceMax,
			).Scan(&c.ID)
			if err != nil {
				return fmt.Errorf("insert community: %w", err)
			}
		} else {
			publicID = *id
			err := tx.QueryRowContext(ctx, `
				UPDATE communities SET
					name=$1, city=$2, state=$3, postal_code=$4, owner_user_id=$5,
					verified=$6, follower_count=$7, home_count=$8, resident_count=$9,
					price_min=$10, price_max=$11, updated_at=now()
				WHERE community_id=$12 AND deleted=false
				RETURNING id`,
				c.Name, c.City, c.State, c.PostalCode, c.OwnerUserID,
				c.Verified, c.FollowerCount, c.HomeCount, c.ResidentCount,
				c.PriceMin, c.PriceMax, publicID,
			).Scan(&c.ID)
			if err != nil {
				return fmt.Errorf("update community: %w", err)
			}
		}

		if err := recordFingerprint(ctx, tx, string(models.EntityCommunity), publicID, fingerprint); err != nil {
			return fmt.Errorf("record fingerprint: %w", err)
		}
		if err := upsertCommunityAmenities(ctx, tx, c.ID, c.Amenities); err != nil {
			return fmt.Errorf("upsert amenities: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", apperrors.NewDatabaseError("upsert_community", err)
	}
	return publicID, nil
}

// upsertCommunityAmenities replaces amenities by (community_id, name), the
// natural key for this child table (spec.md §4.A).
func upsertCommunityAmenities(ctx context.Context, tx *sqlx.Tx, communityRowID int64, amenities []models.CommunityAmenity) error {
	for _, a := range amenities {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO community_amenities (community_id, name, category)
			VALUES ($1, $2, $3)
			ON CONFLICT (community_id, name) DO UPDATE SET category = EXCLUDED.category`,
			communityRowID, a.Name, a.Category)
		if err != nil {
			return err
		}
	}
	return nil
}

// UpsertBuilder inserts or updates a builder row, maintaining its
// fingerprint (spec.md §4.A).
func (s *Store) UpsertBuilder(ctx context.Context, id *string, b *models.Builder) (string, error) {
	var publicID string
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		fingerprint := dedupe.Fingerprint(b.Name, b.City, b.State)

		if id == nil {
			publicID = ids.New(ids.PrefixBuilder)
			err := tx.QueryRowContext(ctx, `
				INSERT INTO builders
					(builder_id, name, community_id, contact_email, contact_phone,
					 address1, city, state, postal_code, verified, rating, specialties, owner_user_id)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
				RETURNING id`,
				publicID, b.Name, b.CommunityID, b.ContactEmail, b.ContactPhone,
				b.Address1, b.City, b.State, b.PostalCode, b.Verified, b.Rating,
				pq.Array(b.Specialties), b.OwnerUserID,
			).Scan(&b.ID)
			if err != nil {
				return fmt.Errorf("insert builder: %w", err)
			}
		} else {
			publicID = *id
			_, err := tx.ExecContext(ctx, `
				UPDATE builders SET
					name=$1, community_id=$2, contact_email=$3, contact_phone=$4,
					address1=$5, city=$6, state=$7, postal_code=$8, verified=$9,
					rating=$10, specialties=$11, updated_at=now()
				WHERE builder_id=$12 AND deleted=false`,
				b.Name, b.CommunityID, b.ContactEmail, b.ContactPhone,
				b.Address1, b.City, b.State, b.PostalCode, b.Verified,
				b.Rating, pq.Array(b.Specialties), publicID,
			)
			if err != nil {
				return fmt.Errorf("update builder: %w", err)
			}
		}

		return recordFingerprint(ctx, tx, string(models.EntityBuilder), publicID, fingerprint)
	})
	if err != nil {
		return "", apperrors.NewDatabaseError("upsert_builder", err)
	}
	return publicID, nil
}

// UpsertProperty inserts or updates a property row, maintaining its
// fingerprint (spec.md §4.A).
func (s *Store) UpsertProperty(ctx context.Context, id *string, builderRowID, communityRowID int64, p *models.Property) (string, error) {
	var publicID string
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		fingerprint := dedupe.Fingerprint(p.Address1, p.PostalCode)

		if id == nil {
			publicID = ids.New(ids.PrefixProperty)
			err := tx.QueryRowContext(ctx, `
				INSERT INTO properties
					(property_id, builder_id, community_id, address1, postal_code,
					 price, bedrooms, bathrooms, square_feet, status)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
				RETURNING id`,
				publicID, builderRowID, communityRowID, p.Address1, p.PostalCode,
				p.Price, p.Bedrooms, p.Bathrooms, p.SquareFeet, p.Status,
			).Scan(&p.ID)
			if err != nil {
				return fmt.Errorf("insert property: %w", err)
			}
		} else {
			publicID = *id
			_, err := tx.ExecContext(ctx, `
				UPDATE properties SET
					price=$1, bedrooms=$2, bathrooms=$3, square_feet=$4, status=$5, updated_at=now()
				WHERE property_id=$6 AND deleted=false`,
				p.Price, p.Bedrooms, p.Bathrooms, p.SquareFeet, p.Status, publicID,
			)
			if err != nil {
				return fmt.Errorf("update property: %w", err)
			}
		}

		return recordFingerprint(ctx, tx, string(models.EntityProperty), publicID, fingerprint)
	})
	if err != nil {
		return "", apperrors.NewDatabaseError("upsert_property", err)
	}
	return publicID, nil
}

// SoftDelete marks entityType row id deleted without removing it, per
// spec.md §3.5 (entities are destroyed only via a soft-delete flag).
func (s *Store) SoftDelete(ctx context.Context, entityType models.EntityType, id string) error {
	table, column, err := tableFor(entityType)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET deleted=true, updated_at=now() WHERE %s=$1`, table, column), id)
	if err != nil {
		return apperrors.NewDatabaseError("soft_delete", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewDatabaseError("soft_delete", err)
	}
	if rows == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("%s %s", entityType, id))
	}
	return nil
}

// LinkBuilderCard implements spec.md §4.G.2: back-link an unlinked
// community_builders display card to the builder row just approved, by
// the card's source_card_id (the scraping-time external identifier
// carried in the originating job's search_filters).
func (s *Store) LinkBuilderCard(ctx context.Context, sourceCardID string, builderRowID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE community_builders SET builder_profile_id = $1
		WHERE source_card_id = $2 AND builder_profile_id IS NULL`,
		builderRowID, sourceCardID)
	if err != nil {
		return apperrors.NewDatabaseError("link_builder_card", err)
	}
	return nil
}

func tableFor(entityType models.EntityType) (table, column string, err error) {
	switch entityType {
	case models.EntityCommunity:
		return "communities", "community_id", nil
	case models.EntityBuilder:
		return "builders", "builder_id", nil
	case models.EntityProperty:
		return "properties", "property_id", nil
	default:
		return "", "", apperrors.NewValidationError("unknown entity type: " + string(entityType))
	}
}

// withTx runs fn inside a transaction, committing on success and rolling
// back (logging the rollback error, if any) on failure.
func (s *Store) withTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error("rollback failed", zap.Error(rbErr), zap.NamedError("cause", err))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

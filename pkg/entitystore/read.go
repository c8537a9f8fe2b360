package entitystore

import (
	"context"

	apperrors "github.com/jordigilh/realestate-collector/internal/errors"
	"github.com/jordigilh/realestate-collector/pkg/models"
	"github.com/lib/pq"
)

// Include names a child collection read(...) should fetch alongside the
// parent row (spec.md §4.A: "child collections are fetched on demand
// through read(..., includes=[...])").
type Include string

const (
	IncludeAmenities    Include = "amenities"
	IncludeEvents       Include = "events"
	IncludeAwards       Include = "awards"
	IncludeAdminContact Include = "admin_contacts"
	IncludeBuilderCards Include = "builder_cards"
	IncludeHomePlans    Include = "home_plans"
)

func has(includes []Include, want Include) bool {
	for _, i := range includes {
		if i == want {
			return true
		}
	}
	return false
}

// ReadCommunity fetches the community at id, filling only the child
// collections named in includes.
func (s *Store) ReadCommunity(ctx context.Context, id string, includes []Include) (*models.Community, error) {
	c := &models.Community{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, community_id, name, city, state, postal_code, owner_user_id,
		       verified, follower_count, home_count, resident_count, price_min, price_max,
		       deleted, created_at, updated_at
		FROM communities WHERE community_id = $1`, id,
	).Scan(&c.ID, &c.CommunityID, &c.Name, &c.City, &c.State, &c.PostalCode, &c.OwnerUserID,
		&c.Verified, &c.FollowerCount, &c.HomeCount, &c.ResidentCount, &c.PriceMin, &c.PriceMax,
		&c.Deleted, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, apperrors.NewNotFoundError("community " + id)
	}

	if has(includes, IncludeAmenities) {
		rows, err := s.db.QueryContext(ctx, `SELECT id, community_id, name, category FROM community_amenities WHERE community_id = $1`, c.ID)
		if err != nil {
			return nil, apperrors.NewDatabaseError("read community amenities", err)
		}
		defer rows.Close()
		for rows.Next() {
			var a models.CommunityAmenity
			if err := rows.Scan(&a.ID, &a.CommunityID, &a.Name, &a.Category); err != nil {
				return nil, apperrors.NewDatabaseError("scan community amenity", err)
			}
			c.Amenities = append(c.Amenities, a)
		}
		if err := rows.Err(); err != nil {
			return nil, apperrors.NewDatabaseError("read community amenities", err)
		}
	}

	if has(includes, IncludeBuilderCards) {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, community_id, builder_profile_id, display_name, COALESCE(source_card_id, '')
			FROM community_builders WHERE community_id = $1`, c.ID)
		if err != nil {
			return nil, apperrors.NewDatabaseError("read builder cards", err)
		}
		defer rows.Close()
		for rows.Next() {
			var card models.CommunityBuilderCard
			if err := rows.Scan(&card.ID, &card.CommunityID, &card.BuilderProfileID, &card.DisplayName, &card.SourceCardID); err != nil {
				return nil, apperrors.NewDatabaseError("scan builder card", err)
			}
			c.BuilderCards = append(c.BuilderCards, card)
		}
		if err := rows.Err(); err != nil {
			return nil, apperrors.NewDatabaseError("read builder cards", err)
		}
	}

	return c, nil
}

// ReadBuilder fetches the builder at id.
func (s *Store) ReadBuilder(ctx context.Context, id string) (*models.Builder, error) {
	b := &models.Builder{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, builder_id, name, community_id, contact_email, contact_phone,
		       address1, city, state, postal_code, verified, rating, specialties,
		       owner_user_id, deleted, created_at, updated_at
		FROM builders WHERE builder_id = $1`, id,
	).Scan(&b.ID, &b.BuilderID, &b.Name, &b.CommunityID, &b.ContactEmail, &b.ContactPhone,
		&b.Address1, &b.City, &b.State, &b.PostalCode, &b.Verified, &b.Rating, pq.Array(&b.Specialties),
		&b.OwnerUserID, &b.Deleted, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, apperrors.NewNotFoundError("builder " + id)
	}
	return b, nil
}

// ReadProperty fetches the property at id, optionally with home plans.
func (s *Store) ReadProperty(ctx context.Context, id string, includes []Include) (*models.Property, error) {
	p := &models.Property{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, property_id, builder_id, community_id, address1, postal_code,
		       price, bedrooms, bathrooms, square_feet, status, deleted, created_at, updated_at
		FROM properties WHERE property_id = $1`, id,
	).Scan(&p.ID, &p.PropertyID, &p.BuilderID, &p.CommunityID, &p.Address1, &p.PostalCode,
		&p.Price, &p.Bedrooms, &p.Bathrooms, &p.SquareFeet, &p.Status, &p.Deleted, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, apperrors.NewNotFoundError("property " + id)
	}

	if has(includes, IncludeHomePlans) {
		rows, err := s.db.QueryContext(ctx, `SELECT id, property_id, plan_name, square_feet, base_price FROM home_plans WHERE property_id = $1`, p.ID)
		if err != nil {
			return nil, apperrors.NewDatabaseError("read home plans", err)
		}
		defer rows.Close()
		for rows.Next() {
			var hp models.HomePlan
			if err := rows.Scan(&hp.ID, &hp.PropertyID, &hp.PlanName, &hp.SquareFeet, &hp.BasePrice); err != nil {
				return nil, apperrors.NewDatabaseError("scan home plan", err)
			}
			p.HomePlans = append(p.HomePlans, hp)
		}
		if err := rows.Err(); err != nil {
			return nil, apperrors.NewDatabaseError("read home plans", err)
		}
	}

	return p, nil
}

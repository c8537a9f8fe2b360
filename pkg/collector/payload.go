package collector

import "github.com/jordigilh/realestate-collector/pkg/models"

// communityCandidate is the entity-specific shape of one element of the
// "communities" array in the LLM contract (spec.md §6.2).
type communityCandidate struct {
	Name          string   `json:"name" validate:"required"`
	City          string   `json:"city" validate:"required"`
	State         string   `json:"state" validate:"required,len=2"`
	PostalCode    string   `json:"postal_code"`
	FollowerCount int      `json:"follower_count"`
	HomeCount     int      `json:"home_count"`
	ResidentCount int      `json:"resident_count"`
	PriceMin      *float64 `json:"price_min"`
	PriceMax      *float64 `json:"price_max"`
	Confidence    float32  `json:"confidence" validate:"required,min=0,max=1"`
	SourceURL     string   `json:"source_url" validate:"required,url"`
}

func (c communityCandidate) toCommunity() *models.Community {
	return &models.Community{
		Name:          c.Name,
		City:          c.City,
		State:         c.State,
		PostalCode:    c.PostalCode,
		FollowerCount: c.FollowerCount,
		HomeCount:     c.HomeCount,
		ResidentCount: c.ResidentCount,
		PriceMin:      c.PriceMin,
		PriceMax:      c.PriceMax,
	}
}

type communityPayload struct {
	Communities []communityCandidate `json:"communities" validate:"required,min=1,dive"`
}

// builderCandidate is one element of the "builders" array.
type builderCandidate struct {
	Name         string   `json:"name" validate:"required"`
	City         string   `json:"city" validate:"required"`
	State        string   `json:"state" validate:"required,len=2"`
	PostalCode   string   `json:"postal_code"`
	ContactEmail string   `json:"contact_email" validate:"omitempty,email"`
	ContactPhone string   `json:"contact_phone"`
	Address1     string   `json:"address1"`
	Rating       *float32 `json:"rating" validate:"omitempty,min=0,max=5"`
	Specialties  []string `json:"specialties"`
	Confidence   float32  `json:"confidence" validate:"required,min=0,max=1"`
	SourceURL    string   `json:"source_url" validate:"required,url"`
}

func (b builderCandidate) toBuilder() *models.Builder {
	return &models.Builder{
		Name:         b.Name,
		City:         b.City,
		State:        b.State,
		PostalCode:   b.PostalCode,
		ContactEmail: b.ContactEmail,
		ContactPhone: b.ContactPhone,
		Address1:     b.Address1,
		Rating:       b.Rating,
		Specialties:  b.Specialties,
	}
}

type builderPayload struct {
	Builders []builderCandidate `json:"builders" validate:"required,min=1,dive"`
}

// propertyCandidate is one element of the "properties" array.
type propertyCandidate struct {
	Address1   string                `json:"address1" validate:"required"`
	PostalCode string                `json:"postal_code" validate:"required"`
	Price      float64               `json:"price" validate:"gte=0"`
	Bedrooms   int                   `json:"bedrooms" validate:"gte=0"`
	Bathrooms  float32               `json:"bathrooms" validate:"gte=0"`
	SquareFeet *int                  `json:"square_feet"`
	Status     models.PropertyStatus `json:"status" validate:"required,oneof=available pending sold under_contract"`
	Confidence float32               `json:"confidence" validate:"required,min=0,max=1"`
	SourceURL  string                `json:"source_url" validate:"required,url"`
}

func (p propertyCandidate) toProperty() *models.Property {
	return &models.Property{
		Address1:   p.Address1,
		PostalCode: p.PostalCode,
		Price:      p.Price,
		Bedrooms:   p.Bedrooms,
		Bathrooms:  p.Bathrooms,
		SquareFeet: p.SquareFeet,
		Status:     p.Status,
	}
}

type propertyPayload struct {
	Properties []propertyCandidate `json:"properties" validate:"required,min=1,dive"`
}

// candidate is the entity-type-agnostic shape the rest of the pipeline
// (duplicate detection, diffing, auto-approval) works with, after
// validateSchema has normalized whichever envelope the LLM returned.
type candidate struct {
	entityType models.EntityType
	community  *models.Community
	builder    *models.Builder
	property   *models.Property
	confidence float32
	sourceURL  string
}

// fingerprintParts returns the natural-key fields fed to
// dedupe.Fingerprint, matching the per-entity-type convention used by
// pkg/entitystore's upsert path (name|city|state for communities and
// builders, address1|postal_code for properties).
func (c candidate) fingerprintParts() []string {
	switch c.entityType {
	case models.EntityCommunity:
		return []string{c.community.Name, c.community.City, c.community.State}
	case models.EntityBuilder:
		return []string{c.builder.Name, c.builder.City, c.builder.State}
	default:
		return []string{c.property.Address1, c.property.PostalCode}
	}
}

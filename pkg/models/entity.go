package models

import "time"

// Community is a master-planned neighborhood (spec.md §3.2).
type Community struct {
	ID            int64
	CommunityID   string
	Name          string
	City          string
	State         string
	PostalCode    string
	OwnerUserID   *string
	Verified      bool
	FollowerCount int
	HomeCount     int
	ResidentCount int
	PriceMin      *float64
	PriceMax      *float64
	Deleted       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Amenities          []CommunityAmenity
	Events             []CommunityEvent
	Awards             []CommunityAward
	AdminContacts      []CommunityAdminContact
	BuilderCards       []CommunityBuilderCard
	DiscussionTopics   []CommunityDiscussionTopic
	DevelopmentPhases  []CommunityDevelopmentPhase
}

// FingerprintKey returns the natural-key fields joined as name|city|state,
// unnormalized; pkg/dedupe.Fingerprint lowercases and normalizes each part
// itself before hashing (spec.md §4.A fingerprint rule).
func (c *Community) FingerprintKey() string {
	return c.Name + "|" + c.City + "|" + c.State
}

type CommunityAmenity struct {
	ID          int64
	CommunityID int64
	Name        string
	Category    string
}

type CommunityEvent struct {
	ID          int64
	CommunityID int64
	Title       string
	StartsAt    *time.Time
	Description string
}

type CommunityAward struct {
	ID          int64
	CommunityID int64
	Title       string
	AwardedYear int
	Issuer      string
}

type CommunityAdminContact struct {
	ID          int64
	CommunityID int64
	Name        string
	Role        string
	Email       string
	Phone       string
}

// CommunityBuilderCard is a display row on a community profile; it may be
// unlinked (BuilderProfileID nil) until the cascade resolver back-links it
// to a full Builder row (spec.md §4.G.2).
type CommunityBuilderCard struct {
	ID               int64
	CardID           string
	CommunityID      int64
	BuilderProfileID *int64
	DisplayName      string
	SourceCardID     string
}

type CommunityDiscussionTopic struct {
	ID          int64
	CommunityID int64
	Title       string
}

type CommunityDevelopmentPhase struct {
	ID           int64
	CommunityID  int64
	PhaseName    string
	Status       string
	PlannedUnits int
}

// Builder is a home-building company, optionally scoped to one community
// (spec.md §3.2). A multi-location brand appears as one row per location
// sharing a logical name.
type Builder struct {
	ID            int64
	BuilderID     string
	Name          string
	CommunityID   *int64
	ContactEmail  string
	ContactPhone  string
	Address1      string
	City          string
	State         string
	PostalCode    string
	Verified      bool
	Rating        *float32
	Specialties   []string
	OwnerUserID   *string
	Deleted       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (b *Builder) FingerprintKey() string {
	return b.Name + "|" + b.City + "|" + b.State
}

// Property is an individual listing (spec.md §3.2).
type Property struct {
	ID          int64
	PropertyID  string
	BuilderID   int64
	CommunityID int64
	Address1    string
	PostalCode  string
	Price       float64
	Bedrooms    int
	Bathrooms   float32
	SquareFeet  *int
	Status      PropertyStatus
	Deleted     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time

	HomePlans []HomePlan
}

func (p *Property) FingerprintKey() string {
	return p.Address1 + "|" + p.PostalCode
}

// PropertyStatus is the closed set of listing states (spec.md §3.2).
type PropertyStatus string

const (
	PropertyAvailable     PropertyStatus = "available"
	PropertyPending       PropertyStatus = "pending"
	PropertySold          PropertyStatus = "sold"
	PropertyUnderContract PropertyStatus = "under_contract"
)

type HomePlan struct {
	ID         int64
	PropertyID int64
	PlanName   string
	SquareFeet *int
	BasePrice  *float64
}

package collector

import (
	"github.com/jordigilh/realestate-collector/pkg/dedupe"
	"github.com/jordigilh/realestate-collector/pkg/models"
)

// computeDiff implements spec.md §4.D step 4's `diff ← compute_diff(hint,
// candidate)`. A NEW or AMBIGUOUS hint always yields a non-empty diff (the
// candidate itself, proposed as a create); an EXISTING hint diffs the
// candidate's mutable fields against the current row and is empty when
// nothing changed.
func computeDiff(hint dedupe.Hint, c candidate, existing interface{}) (models.ChangeType, map[string]models.FieldDiff, bool) {
	if hint.Kind != dedupe.KindExisting {
		return models.ChangeCreate, nil, false
	}

	var diffs map[string]models.FieldDiff
	switch c.entityType {
	case models.EntityCommunity:
		diffs = diffCommunity(existing.(*models.Community), c.community)
	case models.EntityBuilder:
		diffs = diffBuilder(existing.(*models.Builder), c.builder)
	default:
		diffs = diffProperty(existing.(*models.Property), c.property)
	}
	return models.ChangeUpdate, diffs, len(diffs) == 0
}

func diffCommunity(existing, proposed *models.Community) map[string]models.FieldDiff {
	diffs := map[string]models.FieldDiff{}
	if existing.PostalCode != proposed.PostalCode {
		diffs["postal_code"] = models.FieldDiff{From: existing.PostalCode, To: proposed.PostalCode}
	}
	if existing.FollowerCount != proposed.FollowerCount {
		diffs["follower_count"] = models.FieldDiff{From: existing.FollowerCount, To: proposed.FollowerCount}
	}
	if existing.HomeCount != proposed.HomeCount {
		diffs["home_count"] = models.FieldDiff{From: existing.HomeCount, To: proposed.HomeCount}
	}
	if existing.ResidentCount != proposed.ResidentCount {
		diffs["resident_count"] = models.FieldDiff{From: existing.ResidentCount, To: proposed.ResidentCount}
	}
	if !float64PtrEqual(existing.PriceMin, proposed.PriceMin) {
		diffs["price_min"] = models.FieldDiff{From: existing.PriceMin, To: proposed.PriceMin}
	}
	if !float64PtrEqual(existing.PriceMax, proposed.PriceMax) {
		diffs["price_max"] = models.FieldDiff{From: existing.PriceMax, To: proposed.PriceMax}
	}
	return diffs
}

func diffBuilder(existing, proposed *models.Builder) map[string]models.FieldDiff {
	diffs := map[string]models.FieldDiff{}
	if existing.ContactEmail != proposed.ContactEmail {
		diffs["contact_email"] = models.FieldDiff{From: existing.ContactEmail, To: proposed.ContactEmail}
	}
	if existing.ContactPhone != proposed.ContactPhone {
		diffs["contact_phone"] = models.FieldDiff{From: existing.ContactPhone, To: proposed.ContactPhone}
	}
	if existing.Address1 != proposed.Address1 {
		diffs["address1"] = models.FieldDiff{From: existing.Address1, To: proposed.Address1}
	}
	if !float32PtrEqual(existing.Rating, proposed.Rating) {
		diffs["rating"] = models.FieldDiff{From: existing.Rating, To: proposed.Rating}
	}
	if !stringSliceEqual(existing.Specialties, proposed.Specialties) {
		diffs["specialties"] = models.FieldDiff{From: existing.Specialties, To: proposed.Specialties}
	}
	return diffs
}

func diffProperty(existing, proposed *models.Property) map[string]models.FieldDiff {
	diffs := map[string]models.FieldDiff{}
	if existing.Price != proposed.Price {
		diffs["price"] = models.FieldDiff{From: existing.Price, To: proposed.Price}
	}
	if existing.Bedrooms != proposed.Bedrooms {
		diffs["bedrooms"] = models.FieldDiff{From: existing.Bedrooms, To: proposed.Bedrooms}
	}
	if existing.Bathrooms != proposed.Bathrooms {
		diffs["bathrooms"] = models.FieldDiff{From: existing.Bathrooms, To: proposed.Bathrooms}
	}
	if !intPtrEqual(existing.SquareFeet, proposed.SquareFeet) {
		diffs["square_feet"] = models.FieldDiff{From: existing.SquareFeet, To: proposed.SquareFeet}
	}
	if existing.Status != proposed.Status {
		diffs["status"] = models.FieldDiff{From: existing.Status, To: proposed.Status}
	}
	return diffs
}

func float64PtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func float32PtrEqual(a, b *float32) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

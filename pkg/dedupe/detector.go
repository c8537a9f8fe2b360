package dedupe

import "context"

// FingerprintLookup is the entity-store operation the detector depends on:
// given an entity type and fingerprint, return the active rows that match.
// Fingerprint match always dominates fuzzy name overlap, and ties within a
// fingerprint match are impossible by the uniqueness invariant (spec.md
// §4.C) — so a lookup by fingerprint alone is the entire detector.
type FingerprintLookup func(ctx context.Context, entityType string, fingerprint string) ([]string, error)

// Detector classifies candidate records as NEW, EXISTING, or AMBIGUOUS.
type Detector struct {
	lookup FingerprintLookup
}

// NewDetector builds a Detector backed by lookup, typically
// entitystore.Store.FindByFingerprint.
func NewDetector(lookup FingerprintLookup) *Detector {
	return &Detector{lookup: lookup}
}

// Hint is the classifier's verdict: Kind plus the matched or ambiguous IDs.
type Hint struct {
	Kind       Kind
	ExistingID string
	Candidates []string
}

// Kind is the closed set of duplicate-detector verdicts (spec.md §4.C).
type Kind string

const (
	KindNew       Kind = "NEW"
	KindExisting  Kind = "EXISTING"
	KindAmbiguous Kind = "AMBIGUOUS"
)

// Classify looks up fingerprint among entityType's active rows and
// returns NEW (no match), EXISTING (exactly one match), or AMBIGUOUS (two
// or more matches, which the reviewer must disambiguate).
func (d *Detector) Classify(ctx context.Context, entityType, fingerprint string) (Hint, error) {
	ids, err := d.lookup(ctx, entityType, fingerprint)
	if err != nil {
		return Hint{}, err
	}
	switch len(ids) {
	case 0:
		return Hint{Kind: KindNew}, nil
	case 1:
		return Hint{Kind: KindExisting, ExistingID: ids[0]}, nil
	default:
		return Hint{Kind: KindAmbiguous, Candidates: ids}, nil
	}
}

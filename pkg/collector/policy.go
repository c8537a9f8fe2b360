package collector

import (
	"github.com/jordigilh/realestate-collector/pkg/dedupe"
	"github.com/jordigilh/realestate-collector/pkg/models"
)

// Policy is the auto-approval rule set (spec.md §4.D, §6.4
// auto_approve_min_confidence / auto_approve_entity_types).
type Policy struct {
	MinConfidence float32
	EntityTypes   map[models.EntityType]bool
}

// DefaultPolicy matches spec.md §6.4's documented defaults.
func DefaultPolicy() Policy {
	return Policy{
		MinConfidence: 0.85,
		EntityTypes: map[models.EntityType]bool{
			models.EntityCommunity: true,
			models.EntityBuilder:   true,
		},
	}
}

// autoApprove reports whether a change meets every auto-approval
// condition in spec.md §4.D: a create, confidence at or above the
// threshold, a NEW duplicate hint, and an entity type the policy allows
// (properties are always reviewed regardless of policy configuration).
func (p Policy) autoApprove(changeType models.ChangeType, hint dedupe.Hint, confidence float32, entityType models.EntityType) bool {
	if changeType != models.ChangeCreate {
		return false
	}
	if entityType == models.EntityProperty {
		return false
	}
	if hint.Kind != dedupe.KindNew {
		return false
	}
	if confidence < p.MinConfidence {
		return false
	}
	return p.EntityTypes[entityType]
}

package collector

import (
	"encoding/json"

	"github.com/jordigilh/realestate-collector/pkg/models"
)

// marshalCandidate snapshots a candidate's entity-specific fields as the
// change's proposed_entity_data (spec.md §3.4). A marshal failure here
// would mean a programmer error in one of the three candidate structs, so
// it is swallowed to an empty object rather than surfaced as a pipeline
// failure.
func marshalCandidate(c candidate) json.RawMessage {
	var v interface{}
	switch c.entityType {
	case models.EntityCommunity:
		v = c.community
	case models.EntityBuilder:
		v = c.builder
	default:
		v = c.property
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

// marshalExisting snapshots the current entity-store row as the change's
// existing_entity_data at diff time (spec.md §3.4), used later by the
// review engine to detect a stale apply.
func marshalExisting(existing interface{}) json.RawMessage {
	if existing == nil {
		return nil
	}
	raw, err := json.Marshal(existing)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

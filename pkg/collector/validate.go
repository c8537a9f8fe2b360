package collector

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"github.com/jordigilh/realestate-collector/pkg/corekinds"
	"github.com/jordigilh/realestate-collector/pkg/models"
)

var schemaValidator = validator.New()

// validateSchema implements spec.md §4.D step 3: parse payload against
// the entity-specific envelope and reject a non-conforming response as
// PayloadInvalid (malformed JSON, missing required fields, empty array).
func validateSchema(entityType models.EntityType, payload string) ([]candidate, error) {
	switch entityType {
	case models.EntityCommunity:
		var env communityPayload
		if err := json.Unmarshal([]byte(payload), &env); err != nil {
			return nil, corekinds.PayloadInvalidErr("malformed JSON payload: " + err.Error())
		}
		if err := schemaValidator.Struct(env); err != nil {
			return nil, corekinds.PayloadInvalidErr("schema validation failed: " + err.Error())
		}
		out := make([]candidate, 0, len(env.Communities))
		for _, c := range env.Communities {
			out = append(out, candidate{entityType: entityType, community: c.toCommunity(), confidence: c.Confidence, sourceURL: c.SourceURL})
		}
		return out, nil

	case models.EntityBuilder:
		var env builderPayload
		if err := json.Unmarshal([]byte(payload), &env); err != nil {
			return nil, corekinds.PayloadInvalidErr("malformed JSON payload: " + err.Error())
		}
		if err := schemaValidator.Struct(env); err != nil {
			return nil, corekinds.PayloadInvalidErr("schema validation failed: " + err.Error())
		}
		out := make([]candidate, 0, len(env.Builders))
		for _, b := range env.Builders {
			out = append(out, candidate{entityType: entityType, builder: b.toBuilder(), confidence: b.Confidence, sourceURL: b.SourceURL})
		}
		return out, nil

	case models.EntityProperty:
		var env propertyPayload
		if err := json.Unmarshal([]byte(payload), &env); err != nil {
			return nil, corekinds.PayloadInvalidErr("malformed JSON payload: " + err.Error())
		}
		if err := schemaValidator.Struct(env); err != nil {
			return nil, corekinds.PayloadInvalidErr("schema validation failed: " + err.Error())
		}
		out := make([]candidate, 0, len(env.Properties))
		for _, p := range env.Properties {
			out = append(out, candidate{entityType: entityType, property: p.toProperty(), confidence: p.Confidence, sourceURL: p.SourceURL})
		}
		return out, nil

	default:
		return nil, corekinds.PayloadInvalidErr("unknown entity type: " + string(entityType))
	}
}

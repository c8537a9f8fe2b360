package review

import (
	"context"
	"encoding/json"

	"github.com/jordigilh/realestate-collector/pkg/corekinds"
	"github.com/jordigilh/realestate-collector/pkg/models"
)

// applyChange materializes an approved change into the entity store
// (spec.md §4.F apply_change) and returns the public entity ID it wrote.
func (e *Engine) applyChange(ctx context.Context, c *models.Change) (string, error) {
	switch c.ChangeType {
	case models.ChangeCreate:
		return e.applyCreate(ctx, c)
	case models.ChangeUpdate:
		return e.applyUpdate(ctx, c)
	case models.ChangeDelete:
		return e.applyDelete(ctx, c)
	default:
		return "", corekinds.PayloadInvalidErr("unknown change type: "+string(c.ChangeType))
	}
}

// applyCreate handles the three duplicate-hint outcomes spec.md §4.F
// assigns to a create proposal: NEW inserts, EXISTING downgrades to an
// update against the matched row, AMBIGUOUS refuses until a human
// resolves which candidate it is.
func (e *Engine) applyCreate(ctx context.Context, c *models.Change) (string, error) {
	switch c.DuplicateHint.Kind {
	case models.DuplicateAmbiguous:
		return "", corekinds.ConflictErr("ambiguous duplicate; choose a match before approving")
	case models.DuplicateExisting:
		c.ChangeType = models.ChangeUpdate
		existingID := c.DuplicateHint.ExistingID
		c.EntityID = &existingID
		return e.applyUpdate(ctx, c)
	default:
		return e.insertEntity(ctx, c)
	}
}

func (e *Engine) insertEntity(ctx context.Context, c *models.Change) (string, error) {
	switch c.EntityType {
	case models.EntityCommunity:
		var community models.Community
		if err := json.Unmarshal(c.ProposedEntityData, &community); err != nil {
			return "", corekinds.PayloadInvalidErr("unmarshal proposed community: " + err.Error())
		}
		return e.writer.UpsertCommunity(ctx, nil, &community)

	case models.EntityBuilder:
		var builder models.Builder
		if err := json.Unmarshal(c.ProposedEntityData, &builder); err != nil {
			return "", corekinds.PayloadInvalidErr("unmarshal proposed builder: " + err.Error())
		}
		return e.writer.UpsertBuilder(ctx, nil, &builder)

	case models.EntityProperty:
		builderRowID, communityRowID, err := e.propertyParentIDs(ctx, c)
		if err != nil {
			return "", err
		}
		var property models.Property
		if err := json.Unmarshal(c.ProposedEntityData, &property); err != nil {
			return "", corekinds.PayloadInvalidErr("unmarshal proposed property: " + err.Error())
		}
		return e.writer.UpsertProperty(ctx, nil, builderRowID, communityRowID, &property)

	default:
		return "", corekinds.PayloadInvalidErr("unknown entity type: "+string(c.EntityType))
	}
}

// propertyParentIDs resolves the internal builder/community row IDs a
// new property is scoped under. A property job is always a child of a
// builder job (the job's parent_entity_type/parent_entity_id point at the
// builder the property listing belongs to); the builder row itself
// already carries the community link, so no separate community job
// parentage is needed.
func (e *Engine) propertyParentIDs(ctx context.Context, c *models.Change) (builderRowID, communityRowID int64, err error) {
	job, err := e.jobs.GetJob(ctx, c.JobID)
	if err != nil {
		return 0, 0, err
	}
	if job.ParentEntityType == nil || *job.ParentEntityType != models.EntityBuilder || job.ParentEntityID == nil {
		return 0, 0, corekinds.PayloadInvalidErr("property change has no parent builder to scope it under")
	}
	builder, err := e.reader.ReadBuilder(ctx, *job.ParentEntityID)
	if err != nil {
		return 0, 0, err
	}
	if builder.CommunityID == nil {
		return 0, 0, corekinds.PayloadInvalidErr("parent builder is not scoped to a community")
	}
	return builder.ID, *builder.CommunityID, nil
}

// applyUpdate re-reads the current row and rejects a stale apply (spec.md
// §4.F: a row that has drifted on an identity/price field since the diff
// was taken must not be silently overwritten) before writing the proposed
// data. Additive child collections (amenities, etc.) merge automatically
// through the entity store's own ON CONFLICT upsert, so no manual
// field-by-field merge is needed here.
func (e *Engine) applyUpdate(ctx context.Context, c *models.Change) (string, error) {
	if c.EntityID == nil {
		return "", corekinds.PayloadInvalidErr("update change has no entity_id")
	}
	id := *c.EntityID

	switch c.EntityType {
	case models.EntityCommunity:
		current, err := e.reader.ReadCommunity(ctx, id, nil)
		if err != nil {
			return "", err
		}
		if stale := communityDrifted(current, c.ExistingEntityData); stale {
			return "", corekinds.StaleErr("community has changed since this proposal was diffed")
		}
		var proposed models.Community
		if err := json.Unmarshal(c.ProposedEntityData, &proposed); err != nil {
			return "", corekinds.PayloadInvalidErr("unmarshal proposed community: " + err.Error())
		}
		return e.writer.UpsertCommunity(ctx, &id, &proposed)

	case models.EntityBuilder:
		current, err := e.reader.ReadBuilder(ctx, id)
		if err != nil {
			return "", err
		}
		if stale := builderDrifted(current, c.ExistingEntityData); stale {
			return "", corekinds.StaleErr("builder has changed since this proposal was diffed")
		}
		var proposed models.Builder
		if err := json.Unmarshal(c.ProposedEntityData, &proposed); err != nil {
			return "", corekinds.PayloadInvalidErr("unmarshal proposed builder: " + err.Error())
		}
		return e.writer.UpsertBuilder(ctx, &id, &proposed)

	case models.EntityProperty:
		current, err := e.reader.ReadProperty(ctx, id, nil)
		if err != nil {
			return "", err
		}
		if stale := propertyDrifted(current, c.ExistingEntityData); stale {
			return "", corekinds.StaleErr("property has changed since this proposal was diffed")
		}
		var proposed models.Property
		if err := json.Unmarshal(c.ProposedEntityData, &proposed); err != nil {
			return "", corekinds.PayloadInvalidErr("unmarshal proposed property: " + err.Error())
		}
		return e.writer.UpsertProperty(ctx, &id, current.BuilderID, current.CommunityID, &proposed)

	default:
		return "", corekinds.PayloadInvalidErr("unknown entity type: "+string(c.EntityType))
	}
}

func (e *Engine) applyDelete(ctx context.Context, c *models.Change) (string, error) {
	if c.EntityID == nil {
		return "", corekinds.PayloadInvalidErr("delete change has no entity_id")
	}
	id := *c.EntityID
	if err := e.writer.SoftDelete(ctx, c.EntityType, id); err != nil {
		return "", err
	}
	return id, nil
}

// communityDrifted reports whether current diverges from the diff-time
// snapshot on any identity or price field (spec.md §4.F staleness check).
func communityDrifted(current *models.Community, snapshot json.RawMessage) bool {
	if len(snapshot) == 0 {
		return false
	}
	var was models.Community
	if err := json.Unmarshal(snapshot, &was); err != nil {
		return false
	}
	return current.Name != was.Name ||
		current.City != was.City ||
		current.State != was.State ||
		current.PostalCode != was.PostalCode ||
		floatPtrDiffers(current.PriceMin, was.PriceMin) ||
		floatPtrDiffers(current.PriceMax, was.PriceMax)
}

func builderDrifted(current *models.Builder, snapshot json.RawMessage) bool {
	if len(snapshot) == 0 {
		return false
	}
	var was models.Builder
	if err := json.Unmarshal(snapshot, &was); err != nil {
		return false
	}
	return current.Name != was.Name ||
		current.City != was.City ||
		current.State != was.State ||
		current.Address1 != was.Address1 ||
		float32PtrDiffers(current.Rating, was.Rating)
}

func propertyDrifted(current *models.Property, snapshot json.RawMessage) bool {
	if len(snapshot) == 0 {
		return false
	}
	var was models.Property
	if err := json.Unmarshal(snapshot, &was); err != nil {
		return false
	}
	return current.Address1 != was.Address1 ||
		current.PostalCode != was.PostalCode ||
		current.Price != was.Price
}

func floatPtrDiffers(a, b *float64) bool {
	if (a == nil) != (b == nil) {
		return true
	}
	return a != nil && *a != *b
}

func float32PtrDiffers(a, b *float32) bool {
	if (a == nil) != (b == nil) {
		return true
	}
	return a != nil && *a != *b
}

package review_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/realestate-collector/pkg/entitystore"
	"github.com/jordigilh/realestate-collector/pkg/models"
	"github.com/jordigilh/realestate-collector/pkg/review"
)

type fakeChangeStore struct {
	mu      sync.Mutex
	changes map[string]*models.Change
	bulkFn  func(ctx context.Context, ids []string, status models.ChangeStatus, by string, notes *string) (*models.BulkReviewResult, error)
}

func newFakeChangeStore(changes ...*models.Change) *fakeChangeStore {
	m := map[string]*models.Change{}
	for _, c := range changes {
		m[c.ChangeID] = c
	}
	return &fakeChangeStore{changes: m}
}

func (f *fakeChangeStore) GetByID(ctx context.Context, changeID string) (*models.Change, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.changes[changeID]
	if !ok {
		return nil, apperrorsNotFound(changeID)
	}
	clone := *c
	return &clone, nil
}

func (f *fakeChangeStore) UpdateStatus(ctx context.Context, changeID string, status models.ChangeStatus, reviewedBy string, notes *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.changes[changeID]
	if !ok {
		return apperrorsNotFound(changeID)
	}
	c.Status = status
	c.ReviewedBy = &reviewedBy
	return nil
}

func (f *fakeChangeStore) UpdateStatusBulk(ctx context.Context, ids []string, status models.ChangeStatus, by string, notes *string) (*models.BulkReviewResult, error) {
	if f.bulkFn != nil {
		return f.bulkFn(ctx, ids, status, by, notes)
	}
	result := &models.BulkReviewResult{}
	for _, id := range ids {
		if err := f.UpdateStatus(ctx, id, status, by, notes); err != nil {
			result.Failed++
			result.Details = append(result.Details, models.BulkReviewOutcome{ChangeID: id, Status: models.ChangeStatusFailed, Error: err.Error()})
			continue
		}
		result.Approved++
		result.Details = append(result.Details, models.BulkReviewOutcome{ChangeID: id, Status: status})
	}
	return result, nil
}

func (f *fakeChangeStore) Stats(ctx context.Context) (models.ChangeStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stats models.ChangeStats
	for _, c := range f.changes {
		switch c.Status {
		case models.ChangeStatusPending:
			stats.Pending++
		case models.ChangeStatusApproved:
			stats.Approved++
		case models.ChangeStatusRejected:
			stats.Rejected++
		}
	}
	return stats, nil
}

type notFoundErr struct{ msg string }

func (e notFoundErr) Error() string { return e.msg }

func apperrorsNotFound(id string) error { return notFoundErr{"not found: " + id} }

type fakeEntityStore struct {
	mu         sync.Mutex
	communities map[string]*models.Community
	builders    map[string]*models.Builder
	properties  map[string]*models.Property
	nextRowID   int64
}

func newFakeEntityStore() *fakeEntityStore {
	return &fakeEntityStore{
		communities: map[string]*models.Community{},
		builders:    map[string]*models.Builder{},
		properties:  map[string]*models.Property{},
	}
}

func (f *fakeEntityStore) ReadCommunity(ctx context.Context, id string, includes []entitystore.Include) (*models.Community, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.communities[id]
	if !ok {
		return nil, apperrorsNotFound(id)
	}
	clone := *c
	return &clone, nil
}

func (f *fakeEntityStore) ReadBuilder(ctx context.Context, id string) (*models.Builder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.builders[id]
	if !ok {
		return nil, apperrorsNotFound(id)
	}
	clone := *b
	return &clone, nil
}

func (f *fakeEntityStore) ReadProperty(ctx context.Context, id string, includes []entitystore.Include) (*models.Property, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.properties[id]
	if !ok {
		return nil, apperrorsNotFound(id)
	}
	clone := *p
	return &clone, nil
}

func (f *fakeEntityStore) UpsertCommunity(ctx context.Context, id *string, c *models.Community) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == nil {
		f.nextRowID++
		c.ID = f.nextRowID
		c.CommunityID = fmt.Sprintf("COMM-%d", f.nextRowID)
		f.communities[c.CommunityID] = c
		return c.CommunityID, nil
	}
	existing := f.communities[*id]
	c.ID = existing.ID
	c.CommunityID = *id
	f.communities[*id] = c
	return *id, nil
}

func (f *fakeEntityStore) UpsertBuilder(ctx context.Context, id *string, b *models.Builder) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == nil {
		f.nextRowID++
		b.ID = f.nextRowID
		b.BuilderID = fmt.Sprintf("BLD-%d", f.nextRowID)
		f.builders[b.BuilderID] = b
		return b.BuilderID, nil
	}
	existing := f.builders[*id]
	b.ID = existing.ID
	b.BuilderID = *id
	f.builders[*id] = b
	return *id, nil
}

func (f *fakeEntityStore) UpsertProperty(ctx context.Context, id *string, builderRowID, communityRowID int64, p *models.Property) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.BuilderID = builderRowID
	p.CommunityID = communityRowID
	if id == nil {
		f.nextRowID++
		p.ID = f.nextRowID
		p.PropertyID = fmt.Sprintf("PROP-%d", f.nextRowID)
		f.properties[p.PropertyID] = p
		return p.PropertyID, nil
	}
	existing := f.properties[*id]
	p.ID = existing.ID
	p.PropertyID = *id
	f.properties[*id] = p
	return *id, nil
}

func (f *fakeEntityStore) SoftDelete(ctx context.Context, entityType models.EntityType, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch entityType {
	case models.EntityCommunity:
		if c, ok := f.communities[id]; ok {
			c.Deleted = true
		}
	case models.EntityBuilder:
		if b, ok := f.builders[id]; ok {
			b.Deleted = true
		}
	case models.EntityProperty:
		if p, ok := f.properties[id]; ok {
			p.Deleted = true
		}
	}
	return nil
}

type fakeJobs struct {
	jobs map[string]*models.Job
}

func (f *fakeJobs) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, apperrorsNotFound(jobID)
	}
	return j, nil
}

type fakeCascader struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeCascader) OnApplied(ctx context.Context, job *models.Job, change *models.Change, entityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, entityID)
	return nil
}

func marshal(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	Expect(err).ToNot(HaveOccurred())
	return raw
}

var _ = Describe("Engine", func() {
	var (
		ctx      context.Context
		changes  *fakeChangeStore
		entities *fakeEntityStore
		jobs     *fakeJobs
		cascade  *fakeCascader
		engine   *review.Engine
	)

	BeforeEach(func() {
		ctx = context.Background()
		entities = newFakeEntityStore()
		jobs = &fakeJobs{jobs: map[string]*models.Job{
			"JOB-1": {JobID: "JOB-1", EntityType: models.EntityCommunity},
		}}
		cascade = &fakeCascader{}
	})

	newEngine := func(cs *fakeChangeStore) *review.Engine {
		changes = cs
		return review.New(changes, entities, entities, jobs, cascade, nil)
	}

	Context("approving a new community (no duplicate hint)", func() {
		It("inserts the community and flips status to approved", func() {
			change := &models.Change{
				ChangeID:           "CHG-1",
				JobID:              "JOB-1",
				EntityType:         models.EntityCommunity,
				ChangeType:         models.ChangeCreate,
				ProposedEntityData: marshal(&models.Community{Name: "The Highlands", City: "Austin", State: "TX"}),
				DuplicateHint:      models.DuplicateHint{Kind: models.DuplicateNew},
				Status:             models.ChangeStatusPending,
			}
			engine = newEngine(newFakeChangeStore(change))

			result, err := engine.ReviewOne(ctx, "CHG-1", models.DecisionApprove, "reviewer@example.com", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Status).To(Equal(models.ChangeStatusApproved))
			Expect(result.EntityID).ToNot(BeNil())
			Expect(entities.communities).To(HaveLen(1))
			Expect(cascade.calls).To(HaveLen(1))
		})
	})

	Context("approving a create with an EXISTING duplicate hint", func() {
		It("downgrades to an update against the matched row", func() {
			entities.communities["COMM-9"] = &models.Community{ID: 9, CommunityID: "COMM-9", Name: "The Highlands", City: "Austin", State: "TX"}
			change := &models.Change{
				ChangeID:           "CHG-2",
				JobID:              "JOB-1",
				EntityType:         models.EntityCommunity,
				ChangeType:         models.ChangeCreate,
				ProposedEntityData: marshal(&models.Community{Name: "The Highlands", City: "Austin", State: "TX", FollowerCount: 40}),
				ExistingEntityData: marshal(&models.Community{Name: "The Highlands", City: "Austin", State: "TX"}),
				DuplicateHint:      models.DuplicateHint{Kind: models.DuplicateExisting, ExistingID: "COMM-9"},
				Status:             models.ChangeStatusPending,
			}
			engine = newEngine(newFakeChangeStore(change))

			result, err := engine.ReviewOne(ctx, "CHG-2", models.DecisionApprove, "reviewer", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(*result.EntityID).To(Equal("COMM-9"))
			Expect(entities.communities["COMM-9"].FollowerCount).To(Equal(40))
		})
	})

	Context("approving a create with an AMBIGUOUS duplicate hint", func() {
		It("refuses with a conflict instead of guessing", func() {
			change := &models.Change{
				ChangeID:           "CHG-3",
				JobID:              "JOB-1",
				EntityType:         models.EntityCommunity,
				ChangeType:         models.ChangeCreate,
				ProposedEntityData: marshal(&models.Community{Name: "The Highlands"}),
				DuplicateHint:      models.DuplicateHint{Kind: models.DuplicateAmbiguous, Candidates: []string{"COMM-1", "COMM-2"}},
				Status:             models.ChangeStatusPending,
			}
			engine = newEngine(newFakeChangeStore(change))

			_, err := engine.ReviewOne(ctx, "CHG-3", models.DecisionApprove, "reviewer", nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("approving an update whose snapshot has gone stale", func() {
		It("rejects the apply without writing", func() {
			entities.communities["COMM-9"] = &models.Community{ID: 9, CommunityID: "COMM-9", Name: "The Highlands Renamed", City: "Austin", State: "TX"}
			entityID := "COMM-9"
			change := &models.Change{
				ChangeID:           "CHG-4",
				JobID:              "JOB-1",
				EntityType:         models.EntityCommunity,
				ChangeType:         models.ChangeUpdate,
				EntityID:           &entityID,
				ProposedEntityData: marshal(&models.Community{Name: "The Highlands", City: "Austin", State: "TX", FollowerCount: 99}),
				ExistingEntityData: marshal(&models.Community{Name: "The Highlands", City: "Austin", State: "TX"}),
				DuplicateHint:      models.DuplicateHint{Kind: models.DuplicateExisting, ExistingID: "COMM-9"},
				Status:             models.ChangeStatusPending,
			}
			engine = newEngine(newFakeChangeStore(change))

			_, err := engine.ReviewOne(ctx, "CHG-4", models.DecisionApprove, "reviewer", nil)
			Expect(err).To(HaveOccurred())
			Expect(entities.communities["COMM-9"].FollowerCount).To(Equal(0))
		})
	})

	Context("rejecting a change", func() {
		It("flips status without touching the entity store", func() {
			change := &models.Change{
				ChangeID:           "CHG-5",
				JobID:              "JOB-1",
				EntityType:         models.EntityCommunity,
				ChangeType:         models.ChangeCreate,
				ProposedEntityData: marshal(&models.Community{Name: "The Highlands"}),
				DuplicateHint:      models.DuplicateHint{Kind: models.DuplicateNew},
				Status:             models.ChangeStatusPending,
			}
			engine = newEngine(newFakeChangeStore(change))

			result, err := engine.ReviewOne(ctx, "CHG-5", models.DecisionReject, "reviewer", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Status).To(Equal(models.ChangeStatusRejected))
			Expect(entities.communities).To(BeEmpty())
		})
	})

	Context("reviewing a change that is already terminal", func() {
		It("refuses a second review", func() {
			change := &models.Change{
				ChangeID: "CHG-6",
				JobID:    "JOB-1",
				Status:   models.ChangeStatusApproved,
			}
			engine = newEngine(newFakeChangeStore(change))

			_, err := engine.ReviewOne(ctx, "CHG-6", models.DecisionApprove, "reviewer", nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("bulk review", func() {
		It("delegates rejects to the ledger's bulk status flip", func() {
			c1 := &models.Change{ChangeID: "CHG-7", JobID: "JOB-1", Status: models.ChangeStatusPending}
			c2 := &models.Change{ChangeID: "CHG-8", JobID: "JOB-1", Status: models.ChangeStatusPending}
			engine = newEngine(newFakeChangeStore(c1, c2))

			result, err := engine.ReviewBulk(ctx, []string{"CHG-7", "CHG-8"}, models.DecisionReject, "reviewer", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Approved).To(Equal(2))
		})

		It("reports per-change failures without aborting the batch on approve", func() {
			good := &models.Change{
				ChangeID:           "CHG-9",
				JobID:              "JOB-1",
				EntityType:         models.EntityCommunity,
				ChangeType:         models.ChangeCreate,
				ProposedEntityData: marshal(&models.Community{Name: "Good"}),
				DuplicateHint:      models.DuplicateHint{Kind: models.DuplicateNew},
				Status:             models.ChangeStatusPending,
			}
			ambiguous := &models.Change{
				ChangeID:           "CHG-10",
				JobID:              "JOB-1",
				EntityType:         models.EntityCommunity,
				ChangeType:         models.ChangeCreate,
				ProposedEntityData: marshal(&models.Community{Name: "Ambiguous"}),
				DuplicateHint:      models.DuplicateHint{Kind: models.DuplicateAmbiguous, Candidates: []string{"COMM-1", "COMM-2"}},
				Status:             models.ChangeStatusPending,
			}
			engine = newEngine(newFakeChangeStore(good, ambiguous))

			result, err := engine.ReviewBulk(ctx, []string{"CHG-9", "CHG-10"}, models.DecisionApprove, "reviewer", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Approved).To(Equal(1))
			Expect(result.Failed).To(Equal(1))
		})
	})

	Context("stats", func() {
		It("passes through to the ledger", func() {
			c1 := &models.Change{ChangeID: "CHG-11", JobID: "JOB-1", Status: models.ChangeStatusPending}
			engine = newEngine(newFakeChangeStore(c1))

			stats, err := engine.Stats(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(stats.Pending).To(Equal(1))
		})
	})
})

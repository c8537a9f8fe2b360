package cascade_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/realestate-collector/pkg/cascade"
	"github.com/jordigilh/realestate-collector/pkg/entitystore"
	"github.com/jordigilh/realestate-collector/pkg/models"
)

type fakeJobStore struct {
	linkedName, linkedID string
	linkCalls            int
	hasActive             bool
	enqueued              []models.JobSpec
}

func (f *fakeJobStore) LinkPendingChildren(ctx context.Context, communityName, communityID string) (int, error) {
	f.linkCalls++
	f.linkedName, f.linkedID = communityName, communityID
	return f.linkCalls, nil
}

func (f *fakeJobStore) HasActiveChildJob(ctx context.Context, parentEntityID string, entityType models.EntityType, jobType models.JobType) (bool, error) {
	return f.hasActive, nil
}

func (f *fakeJobStore) Enqueue(ctx context.Context, spec models.JobSpec) (string, error) {
	f.enqueued = append(f.enqueued, spec)
	return "JOB-new", nil
}

type fakeReader struct {
	communities map[string]*models.Community
	builders    map[string]*models.Builder
}

func (f *fakeReader) ReadCommunity(ctx context.Context, id string, includes []entitystore.Include) (*models.Community, error) {
	return f.communities[id], nil
}

func (f *fakeReader) ReadBuilder(ctx context.Context, id string) (*models.Builder, error) {
	return f.builders[id], nil
}

type fakeCardLinker struct {
	linked map[string]int64
}

func (f *fakeCardLinker) LinkBuilderCard(ctx context.Context, sourceCardID string, builderRowID int64) error {
	if f.linked == nil {
		f.linked = map[string]int64{}
	}
	f.linked[sourceCardID] = builderRowID
	return nil
}

var _ = Describe("Resolver", func() {
	var (
		ctx     context.Context
		jobs    *fakeJobStore
		reader  *fakeReader
		cards   *fakeCardLinker
		resolver *cascade.Resolver
	)

	BeforeEach(func() {
		ctx = context.Background()
		jobs = &fakeJobStore{}
		reader = &fakeReader{
			communities: map[string]*models.Community{
				"COMM-1": {ID: 1, CommunityID: "COMM-1", Name: "The Highlands", City: "Austin"},
			},
			builders: map[string]*models.Builder{
				"BLD-1": {ID: 7, BuilderID: "BLD-1", Name: "Acme Homes"},
			},
		}
		cards = &fakeCardLinker{}
		resolver = cascade.New(jobs, reader, cards, nil)
	})

	It("ignores changes that aren't creates", func() {
		change := &models.Change{ChangeType: models.ChangeUpdate, EntityType: models.EntityCommunity}
		err := resolver.OnApplied(ctx, &models.Job{JobID: "JOB-1"}, change, "COMM-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(jobs.linkCalls).To(Equal(0))
	})

	Context("a community is created", func() {
		It("links pending children and backfills builder discovery when nothing covers it", func() {
			jobs.hasActive = false
			change := &models.Change{ChangeType: models.ChangeCreate, EntityType: models.EntityCommunity}
			job := &models.Job{JobID: "JOB-1", Priority: 5}

			err := resolver.OnApplied(ctx, job, change, "COMM-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(jobs.linkedName).To(Equal("The Highlands"))
			Expect(jobs.linkedID).To(Equal("COMM-1"))
			Expect(jobs.enqueued).To(HaveLen(1))
			Expect(jobs.enqueued[0].EntityType).To(Equal(models.EntityBuilder))
			Expect(jobs.enqueued[0].JobType).To(Equal(models.JobDiscovery))
			Expect(jobs.enqueued[0].Priority).To(Equal(4))
			Expect(*jobs.enqueued[0].ParentEntityID).To(Equal("COMM-1"))
		})

		It("floors the backfill priority at 1", func() {
			jobs.hasActive = false
			change := &models.Change{ChangeType: models.ChangeCreate, EntityType: models.EntityCommunity}
			job := &models.Job{JobID: "JOB-1", Priority: 1}

			err := resolver.OnApplied(ctx, job, change, "COMM-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(jobs.enqueued[0].Priority).To(Equal(1))
		})

		It("skips the backfill when a builder-discovery job is already active", func() {
			jobs.hasActive = true
			change := &models.Change{ChangeType: models.ChangeCreate, EntityType: models.EntityCommunity}
			job := &models.Job{JobID: "JOB-1", Priority: 5}

			err := resolver.OnApplied(ctx, job, change, "COMM-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(jobs.enqueued).To(BeEmpty())
		})
	})

	Context("a builder is created", func() {
		It("back-links every community builder card the job named", func() {
			change := &models.Change{ChangeType: models.ChangeCreate, EntityType: models.EntityBuilder}
			job := &models.Job{
				JobID: "JOB-2",
				SearchFilters: models.SearchFilters{
					CommunityBuilderCardIDs: []string{"CARD-A", "CARD-B"},
				},
			}

			err := resolver.OnApplied(ctx, job, change, "BLD-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(cards.linked).To(HaveKeyWithValue("CARD-A", int64(7)))
			Expect(cards.linked).To(HaveKeyWithValue("CARD-B", int64(7)))
		})

		It("does nothing when the job named no cards", func() {
			change := &models.Change{ChangeType: models.ChangeCreate, EntityType: models.EntityBuilder}
			job := &models.Job{JobID: "JOB-3"}

			err := resolver.OnApplied(ctx, job, change, "BLD-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(cards.linked).To(BeEmpty())
		})
	})
})

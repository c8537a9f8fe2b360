package orchestrator_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/realestate-collector/pkg/collector"
	"github.com/jordigilh/realestate-collector/pkg/corekinds"
	"github.com/jordigilh/realestate-collector/pkg/models"
	"github.com/jordigilh/realestate-collector/pkg/orchestrator"
)

type completeCall struct {
	jobID                                                     string
	itemsFound, changesDetected, newEntitiesFound, changesApplied int
}

type rescheduleCall struct {
	jobID  string
	reason string
}

type failCall struct {
	jobID  string
	reason string
}

type fakeStore struct {
	mu         sync.Mutex
	queue      []*models.Job
	completed  []completeCall
	rescheduled []rescheduleCall
	failed     []failCall
}

func (s *fakeStore) Lease(ctx context.Context) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, nil
	}
	job := s.queue[0]
	s.queue = s.queue[1:]
	return job, nil
}

func (s *fakeStore) CompleteSuccess(ctx context.Context, jobID string, itemsFound, changesDetected, newEntitiesFound, changesApplied int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, completeCall{jobID, itemsFound, changesDetected, newEntitiesFound, changesApplied})
	return nil
}

func (s *fakeStore) Reschedule(ctx context.Context, jobID string, nextRunAt time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rescheduled = append(s.rescheduled, rescheduleCall{jobID, reason})
	return nil
}

func (s *fakeStore) Fail(ctx context.Context, jobID string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, failCall{jobID, reason})
	return nil
}

func (s *fakeStore) snapshot() (completed []completeCall, rescheduled []rescheduleCall, failed []failCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]completeCall{}, s.completed...), append([]rescheduleCall{}, s.rescheduled...), append([]failCall{}, s.failed...)
}

type fakeExecutor struct {
	collect func(ctx context.Context, job *models.Job) (collector.Result, error)
}

func (f fakeExecutor) Collect(ctx context.Context, job *models.Job) (collector.Result, error) {
	return f.collect(ctx, job)
}

func testConfig() orchestrator.Config {
	return orchestrator.Config{
		WorkerCount:  1,
		PollInterval: 5 * time.Millisecond,
		JobDeadline:  time.Second,
		BackoffBase:  time.Millisecond,
		BackoffCap:   time.Second,
	}
}

var _ = Describe("Pool", func() {
	var job *models.Job

	BeforeEach(func() {
		job = &models.Job{JobID: "JOB-0001-AAAAAA", EntityType: models.EntityCommunity, JobType: models.JobDiscovery, Attempts: 1, MaxAttempts: 3}
	})

	It("completes a job that succeeds", func() {
		store := &fakeStore{queue: []*models.Job{job}}
		exec := fakeExecutor{collect: func(ctx context.Context, j *models.Job) (collector.Result, error) {
			return collector.Result{ItemsFound: 1, ChangesDetected: 1}, nil
		}}
		pool := orchestrator.NewPool(store, exec, testConfig(), nil)

		ctx, cancel := context.WithCancel(context.Background())
		go func() { _ = pool.Run(ctx) }()
		defer cancel()

		Eventually(func() []completeCall {
			completed, _, _ := store.snapshot()
			return completed
		}, time.Second).Should(HaveLen(1))

		completed, rescheduled, failed := store.snapshot()
		Expect(completed[0].jobID).To(Equal("JOB-0001-AAAAAA"))
		Expect(rescheduled).To(BeEmpty())
		Expect(failed).To(BeEmpty())
	})

	It("reschedules a job that fails transiently with attempts remaining", func() {
		store := &fakeStore{queue: []*models.Job{job}}
		exec := fakeExecutor{collect: func(ctx context.Context, j *models.Job) (collector.Result, error) {
			return collector.Result{}, corekinds.TransientErr(errors.New("timeout"), "llm call failed")
		}}
		pool := orchestrator.NewPool(store, exec, testConfig(), nil)

		ctx, cancel := context.WithCancel(context.Background())
		go func() { _ = pool.Run(ctx) }()
		defer cancel()

		Eventually(func() []rescheduleCall {
			_, rescheduled, _ := store.snapshot()
			return rescheduled
		}, time.Second).Should(HaveLen(1))

		completed, _, failed := store.snapshot()
		Expect(completed).To(BeEmpty())
		Expect(failed).To(BeEmpty())
	})

	It("fails a job outright once retries are exhausted", func() {
		job.Attempts = 3
		job.MaxAttempts = 3
		store := &fakeStore{queue: []*models.Job{job}}
		exec := fakeExecutor{collect: func(ctx context.Context, j *models.Job) (collector.Result, error) {
			return collector.Result{}, corekinds.TransientErr(errors.New("timeout"), "llm call failed")
		}}
		pool := orchestrator.NewPool(store, exec, testConfig(), nil)

		ctx, cancel := context.WithCancel(context.Background())
		go func() { _ = pool.Run(ctx) }()
		defer cancel()

		Eventually(func() []failCall {
			_, _, failed := store.snapshot()
			return failed
		}, time.Second).Should(HaveLen(1))

		completed, rescheduled, _ := store.snapshot()
		Expect(completed).To(BeEmpty())
		Expect(rescheduled).To(BeEmpty())
	})

	It("fails a job immediately on a Fatal error regardless of attempts remaining", func() {
		store := &fakeStore{queue: []*models.Job{job}}
		exec := fakeExecutor{collect: func(ctx context.Context, j *models.Job) (collector.Result, error) {
			return collector.Result{}, corekinds.FatalErr(errors.New("bad spec"), "cannot render prompt")
		}}
		pool := orchestrator.NewPool(store, exec, testConfig(), nil)

		ctx, cancel := context.WithCancel(context.Background())
		go func() { _ = pool.Run(ctx) }()
		defer cancel()

		Eventually(func() []failCall {
			_, _, failed := store.snapshot()
			return failed
		}, time.Second).Should(HaveLen(1))

		_, rescheduled, _ := store.snapshot()
		Expect(rescheduled).To(BeEmpty())
	})

	It("fails a cancelled job without rescheduling it", func() {
		started := make(chan struct{})
		store := &fakeStore{queue: []*models.Job{job}}
		exec := fakeExecutor{collect: func(ctx context.Context, j *models.Job) (collector.Result, error) {
			close(started)
			<-ctx.Done()
			return collector.Result{}, ctx.Err()
		}}
		pool := orchestrator.NewPool(store, exec, testConfig(), nil)

		ctx, cancel := context.WithCancel(context.Background())
		go func() { _ = pool.Run(ctx) }()
		defer cancel()

		Eventually(started, time.Second).Should(BeClosed())
		Expect(pool.CancelRunning("JOB-0001-AAAAAA")).To(BeTrue())

		Eventually(func() []failCall {
			_, _, failed := store.snapshot()
			return failed
		}, time.Second).Should(HaveLen(1))

		completed, rescheduled, failed := store.snapshot()
		Expect(completed).To(BeEmpty())
		Expect(rescheduled).To(BeEmpty())
		Expect(failed[0].reason).To(Equal("cancelled"))
	})

	It("reports CancelRunning false for a job it is not executing", func() {
		store := &fakeStore{}
		exec := fakeExecutor{collect: func(ctx context.Context, j *models.Job) (collector.Result, error) {
			return collector.Result{}, nil
		}}
		pool := orchestrator.NewPool(store, exec, testConfig(), nil)
		Expect(pool.CancelRunning("JOB-NOPE-000000")).To(BeFalse())
	})
})

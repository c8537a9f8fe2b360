package changeledger_test

import (
	"context"
	"encoding/json"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/jordigilh/realestate-collector/pkg/changeledger"
	"github.com/jordigilh/realestate-collector/pkg/models"
)

var _ = Describe("Ledger", func() {
	var (
		ctx    context.Context
		ledger *changeledger.Ledger
		db     *sqlx.DB
		mock   sqlmock.Sqlmock
	)

	BeforeEach(func() {
		ctx = context.Background()

		mockDB, mockSQL, err := sqlmock.New()
		Expect(err).ToNot(HaveOccurred())

		db = sqlx.NewDb(mockDB, "sqlmock")
		mock = mockSQL

		ledger = changeledger.New(db, zap.NewNop())
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	Describe("Append", func() {
		It("inserts a new change proposal and assigns a public ID", func() {
			change := &models.Change{
				JobID:               "JOB-1699564234-A1B2C3",
				EntityType:          models.EntityCommunity,
				ChangeType:          models.ChangeCreate,
				ProposedEntityData:  json.RawMessage(`{"name":"The Highlands"}`),
				DuplicateHint:       models.DuplicateHint{Kind: models.DuplicateNew},
				Status:              models.ChangeStatusPending,
				Confidence:          0.92,
				SourceURLs:          []string{"https://example.com/listing"},
			}

			mock.ExpectExec(`INSERT INTO changes`).WillReturnResult(sqlmock.NewResult(1, 1))

			id, err := ledger.Append(ctx, change)
			Expect(err).ToNot(HaveOccurred())
			Expect(id).ToNot(BeEmpty())
			Expect(change.ChangeID).To(Equal(id))
		})

		It("wraps a database error", func() {
			change := &models.Change{
				JobID:              "JOB-1",
				EntityType:         models.EntityBuilder,
				ChangeType:         models.ChangeCreate,
				ProposedEntityData: json.RawMessage(`{}`),
				DuplicateHint:      models.DuplicateHint{Kind: models.DuplicateNew},
				Status:             models.ChangeStatusPending,
			}
			mock.ExpectExec(`INSERT INTO changes`).WillReturnError(sqlmock.ErrCancelled)

			_, err := ledger.Append(ctx, change)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Stats", func() {
		It("aggregates counts per status", func() {
			mock.ExpectQuery(`SELECT status, count\(\*\) FROM changes GROUP BY status`).
				WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
					AddRow("pending", 3).
					AddRow("approved", 5).
					AddRow("auto_approved", 2))

			stats, err := ledger.Stats(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(stats.Pending).To(Equal(3))
			Expect(stats.Approved).To(Equal(5))
			Expect(stats.AutoApproved).To(Equal(2))
			Expect(stats.Rejected).To(Equal(0))
		})
	})

	Describe("GetByID", func() {
		It("returns a change by its public ID", func() {
			rows := sqlmock.NewRows([]string{
				"change_id", "job_id", "entity_type", "entity_id", "change_type",
				"proposed_entity_data", "existing_entity_data", "field_diffs",
				"duplicate_hint", "duplicate_candidates", "status", "confidence",
				"source_urls", "reviewed_by", "reviewed_at", "review_notes", "created_at",
			}).AddRow(
				"CHG-1", "JOB-1", "community", nil, "create",
				[]byte(`{"name":"The Highlands"}`), nil, []byte(`{}`),
				"NEW", []byte(`[]`), "pending", 0.92,
				pq.StringArray{"https://example.com"}, nil, nil, nil, time.Now(),
			)
			mock.ExpectQuery(`SELECT change_id, job_id, entity_type, entity_id, change_type`).
				WithArgs("CHG-1").WillReturnRows(rows)

			change, err := ledger.GetByID(ctx, "CHG-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(change.ChangeID).To(Equal("CHG-1"))
			Expect(change.DuplicateHint.Kind).To(Equal(models.DuplicateNew))
		})

		It("returns not-found for a missing change", func() {
			rows := sqlmock.NewRows([]string{
				"change_id", "job_id", "entity_type", "entity_id", "change_type",
				"proposed_entity_data", "existing_entity_data", "field_diffs",
				"duplicate_hint", "duplicate_candidates", "status", "confidence",
				"source_urls", "reviewed_by", "reviewed_at", "review_notes", "created_at",
			})
			mock.ExpectQuery(`SELECT change_id, job_id, entity_type, entity_id, change_type`).
				WithArgs("CHG-missing").WillReturnRows(rows)

			_, err := ledger.GetByID(ctx, "CHG-missing")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("UpdateStatus", func() {
		It("flips a single change's status", func() {
			notes := "looks correct"
			mock.ExpectExec(`UPDATE changes SET status=\$1`).
				WithArgs(models.ChangeStatusApproved, "reviewer@example.com", &notes, "CHG-1").
				WillReturnResult(sqlmock.NewResult(0, 1))

			err := ledger.UpdateStatus(ctx, "CHG-1", models.ChangeStatusApproved, "reviewer@example.com", &notes)
			Expect(err).ToNot(HaveOccurred())
		})

		It("returns not-found when the change doesn't exist", func() {
			mock.ExpectExec(`UPDATE changes SET status=\$1`).
				WillReturnResult(sqlmock.NewResult(0, 0))

			err := ledger.UpdateStatus(ctx, "CHG-missing", models.ChangeStatusRejected, "reviewer", nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("UpdateStatusBulk", func() {
		It("commits the remainder when one change fails to apply (partial success)", func() {
			mock.ExpectBegin()

			mock.ExpectExec("SAVEPOINT change_0").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec(`UPDATE changes SET status=\$1`).
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectExec("RELEASE SAVEPOINT change_0").WillReturnResult(sqlmock.NewResult(0, 0))

			mock.ExpectExec("SAVEPOINT change_1").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec(`UPDATE changes SET status=\$1`).
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec("ROLLBACK TO SAVEPOINT change_1").WillReturnResult(sqlmock.NewResult(0, 0))

			mock.ExpectCommit()

			result, err := ledger.UpdateStatusBulk(ctx, []string{"CHG-1", "CHG-2"}, models.ChangeStatusApproved, "reviewer", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Approved).To(Equal(1))
			Expect(result.Failed).To(Equal(1))
			Expect(result.Details).To(HaveLen(2))
		})
	})
})

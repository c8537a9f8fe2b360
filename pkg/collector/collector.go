// Package collector implements spec.md §4.D's per-(entity_type, job_type)
// pipeline: render a prompt, invoke the LLM, validate and diff the
// response against the entity store, and emit change proposals.
package collector

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/jordigilh/realestate-collector/pkg/corekinds"
	"github.com/jordigilh/realestate-collector/pkg/dedupe"
	"github.com/jordigilh/realestate-collector/pkg/entitystore"
	"github.com/jordigilh/realestate-collector/pkg/llm"
	"github.com/jordigilh/realestate-collector/pkg/models"
	"github.com/jordigilh/realestate-collector/pkg/shared/logging"
)

// EntityReader is the read-side slice of pkg/entitystore.Store the
// collector needs to diff a candidate against its EXISTING match.
type EntityReader interface {
	ReadCommunity(ctx context.Context, id string, includes []entitystore.Include) (*models.Community, error)
	ReadBuilder(ctx context.Context, id string) (*models.Builder, error)
	ReadProperty(ctx context.Context, id string, includes []entitystore.Include) (*models.Property, error)
}

// DuplicateDetector is the narrow interface pkg/dedupe.Detector satisfies.
type DuplicateDetector interface {
	Classify(ctx context.Context, entityType, fingerprint string) (dedupe.Hint, error)
}

// ChangeAppender is the write-side slice of pkg/changeledger.Ledger the
// collector needs to stage a proposal.
type ChangeAppender interface {
	Append(ctx context.Context, c *models.Change) (string, error)
}

// Applier performs the same apply-to-entity-store step the review engine
// uses for a human approval (pkg/review), invoked immediately when a
// change clears the auto-approval policy so spec.md §3.4's "auto_approved
// implies the mutation has been ... written to the entity store" holds
// without waiting on a reviewer.
type Applier interface {
	Apply(ctx context.Context, change *models.Change) (entityID string, err error)
}

// Cascader runs the post-approval propagation in pkg/cascade after an
// auto-approved change has been applied (spec.md §4.G).
type Cascader interface {
	OnApplied(ctx context.Context, job *models.Job, change *models.Change, entityID string) error
}

// Collector is Component D.
type Collector struct {
	llm      llm.Client
	detector DuplicateDetector
	reader   EntityReader
	ledger   ChangeAppender
	applier  Applier
	cascade  Cascader
	policy   Policy
	log      *logrus.Logger
}

// New builds a Collector. applier and cascade may be nil; with a nil
// applier, auto-approved changes are recorded in the ledger as
// auto_approved and are not applied to the entity store (useful for tests
// and for staging the collector ahead of the review engine).
func New(llmClient llm.Client, detector DuplicateDetector, reader EntityReader, ledger ChangeAppender, applier Applier, cascade Cascader, policy Policy, log *logrus.Logger) *Collector {
	if log == nil {
		log = logrus.New()
	}
	return &Collector{llm: llmClient, detector: detector, reader: reader, ledger: ledger, applier: applier, cascade: cascade, policy: policy, log: log}
}

// Result is the collector's contribution to the job's counters
// (spec.md §3.3: items_found, changes_detected, new_entities_found).
type Result struct {
	ItemsFound       int
	ChangesDetected  int
	NewEntitiesFound int
	ChangesApplied   int
}

// Collect runs spec.md §4.D's contract for job. The returned error, when
// non-nil, is always a corekinds.Result so the orchestrator's worker loop
// can classify the failure without inspecting error strings.
func (c *Collector) Collect(ctx context.Context, job *models.Job) (Result, error) {
	fields := logging.CollectorFields("collect", string(job.EntityType)).Custom("job_id", job.JobID)
	c.log.WithFields(fields.ToLogrus()).Info("collector pipeline starting")

	prompt, err := llm.RenderPrompt(job)
	if err != nil {
		return Result{}, corekinds.FatalErr(err, "failed to render prompt")
	}

	payload, err := c.llm.Invoke(ctx, prompt)
	if err != nil {
		// llm.Client already returns a corekinds.Result-classified error.
		return Result{}, err
	}

	candidates, err := validateSchema(job.EntityType, payload)
	if err != nil {
		return Result{}, err
	}

	result := Result{ItemsFound: len(candidates)}
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return result, corekinds.FatalErr(err, "collector cancelled")
		}
		if err := c.processCandidate(ctx, job, cand, &result); err != nil {
			return result, err
		}
	}

	c.log.WithFields(fields.Count(result.ChangesDetected).ToLogrus()).Info("collector pipeline finished")
	return result, nil
}

func (c *Collector) processCandidate(ctx context.Context, job *models.Job, cand candidate, result *Result) error {
	fingerprint := dedupe.Fingerprint(cand.fingerprintParts()...)

	hint, err := c.detector.Classify(ctx, string(cand.entityType), fingerprint)
	if err != nil {
		return corekinds.TransientErr(err, "duplicate detection failed")
	}

	var existing interface{}
	if hint.Kind == dedupe.KindExisting {
		existing, err = c.readExisting(ctx, cand.entityType, hint.ExistingID)
		if err != nil {
			return corekinds.TransientErr(err, "failed to read existing entity for diff")
		}
	}

	changeType, diffs, empty := computeDiff(hint, cand, existing)
	if empty {
		return nil
	}

	change := &models.Change{
		JobID:              job.JobID,
		EntityType:         cand.entityType,
		ChangeType:         changeType,
		ProposedEntityData: marshalCandidate(cand),
		FieldDiffs:         diffs,
		DuplicateHint:      toModelHint(hint),
		Status:             models.ChangeStatusPending,
		Confidence:         cand.confidence,
		SourceURLs:         []string{cand.sourceURL},
	}
	if hint.Kind == dedupe.KindExisting {
		id := hint.ExistingID
		change.EntityID = &id
		change.ExistingEntityData = marshalExisting(existing)
	}

	if changeType == models.ChangeCreate {
		result.NewEntitiesFound++
	}

	autoApprove := c.policy.autoApprove(changeType, hint, cand.confidence, cand.entityType)
	if autoApprove {
		change.Status = models.ChangeStatusAutoApproved
	}

	changeID, err := c.ledger.Append(ctx, change)
	if err != nil {
		return corekinds.TransientErr(err, "failed to append change")
	}
	change.ChangeID = changeID
	result.ChangesDetected++

	if autoApprove && c.applier != nil {
		entityID, err := c.applier.Apply(ctx, change)
		if err != nil {
			return corekinds.TransientErr(err, "failed to apply auto-approved change")
		}
		result.ChangesApplied++
		if c.cascade != nil {
			if err := c.cascade.OnApplied(ctx, job, change, entityID); err != nil {
				c.log.WithFields(logging.JobFields("cascade", job.JobID).Error(err).ToLogrus()).
					Error("cascade resolution failed; approval stands, cascade is best-effort")
			}
		}
	}
	return nil
}

func (c *Collector) readExisting(ctx context.Context, entityType models.EntityType, id string) (interface{}, error) {
	switch entityType {
	case models.EntityCommunity:
		return c.reader.ReadCommunity(ctx, id, nil)
	case models.EntityBuilder:
		return c.reader.ReadBuilder(ctx, id)
	default:
		return c.reader.ReadProperty(ctx, id, nil)
	}
}

func toModelHint(h dedupe.Hint) models.DuplicateHint {
	return models.DuplicateHint{
		Kind:       models.DuplicateHintKind(h.Kind),
		ExistingID: h.ExistingID,
		Candidates: h.Candidates,
	}
}

package proofs

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arnavshah/volunteer-portal-go/pkg/apperr"
	"github.com/arnavshah/volunteer-portal-go/pkg/database"
	"github.com/arnavshah/volunteer-portal-go/pkg/metrics"
	"github.com/arnavshah/volunteer-portal-go/pkg/storage"
)

// CertificateIssuer creates and replaces certificates for approved proofs
type CertificateIssuer interface {
	Issue(ctx context.Context, proofID uint) (*database.Certificate, error)
	Reissue(ctx context.Context, proofID uint) (*database.Certificate, error)
}

// Enqueuer hands certificate issuance to background workers
type Enqueuer interface {
	Enqueue(proofID uint) bool
}

// Evidence is an uploaded proof file
type Evidence struct {
	Data     []byte
	Filename string
}

// Engine runs the proof lifecycle: submit, delete, approve, reject and certificate repair.
// Every mutation is a single transaction; review transitions are compare-and-set on PENDING.
type Engine struct {
	db     *gorm.DB
	store  storage.Storage
	certs  CertificateIssuer
	queue  Enqueuer
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine creates an Engine that issues certificates inline after approval
func NewEngine(db *gorm.DB, store storage.Storage, certs CertificateIssuer, logger *zap.Logger) *Engine {
	return &Engine{db: db, store: store, certs: certs, logger: logger, now: time.Now}
}

// UseQueue switches post-approval issuance to background workers. Call before serving traffic.
func (e *Engine) UseQueue(q Enqueuer) {
	e.queue = q
}

// Submit stores evidence and creates a PENDING proof. A registration for the pair is required,
// and a previously rejected proof is replaced.
func (e *Engine) Submit(ctx context.Context, volunteerID, eventID uint, evidence Evidence) (proof *database.Proof, err error) {
	start := time.Now()
	defer func() { metrics.ObserveLifecycle("submit", outcome(err), start) }()

	if len(evidence.Data) == 0 {
		return nil, apperr.New(apperr.InvalidArgument, "evidence file is required")
	}

	// Fail fast before touching storage; the transaction re-checks.
	if err := checkSubmittable(e.db.WithContext(ctx), volunteerID, eventID, nil); err != nil {
		return nil, internalUnlessTyped(err, "failed to submit proof")
	}

	locator, err := e.store.Store(ctx, evidence.Data, evidence.Filename)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.StorageError, "failed to store evidence")
	}

	var replaced *database.Proof
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var previous database.Proof
		if err := checkSubmittable(tx, volunteerID, eventID, &previous); err != nil {
			return err
		}
		if previous.ID != 0 {
			if err := tx.Delete(&database.Proof{}, previous.ID).Error; err != nil {
				return err
			}
			replaced = &previous
		}

		proof = &database.Proof{
			VolunteerID:     volunteerID,
			EventID:         eventID,
			Status:          database.ProofPending,
			EvidenceLocator: locator,
			SubmittedAt:     e.now(),
		}
		return tx.Create(proof).Error
	})
	if err != nil {
		e.discardEvidence(ctx, locator)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.New(apperr.Conflict, "proof already pending review")
		}
		return nil, internalUnlessTyped(err, "failed to submit proof")
	}

	if replaced != nil {
		e.discardEvidence(ctx, replaced.EvidenceLocator)
	}

	e.logger.Info("proof submitted",
		zap.Uint("proof_id", proof.ID),
		zap.Uint("volunteer_id", volunteerID),
		zap.Uint("event_id", eventID),
		zap.Bool("resubmission", replaced != nil),
	)
	return proof, nil
}

// checkSubmittable verifies the pair is registered and has no active proof.
// A rejected proof, if any, is loaded into previous. Inside a transaction (previous != nil)
// the registration row is locked, serializing against Unregister for the same pair.
func checkSubmittable(db *gorm.DB, volunteerID, eventID uint, previous *database.Proof) error {
	regQuery := db
	if previous != nil {
		regQuery = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var reg database.Registration
	err := regQuery.Where("volunteer_id = ? AND event_id = ?", volunteerID, eventID).First(&reg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.New(apperr.PreconditionFailed, "must register for the event before submitting proof")
	}
	if err != nil {
		return err
	}

	var existing database.Proof
	err = db.Where("volunteer_id = ? AND event_id = ?", volunteerID, eventID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	switch existing.Status {
	case database.ProofApproved:
		return apperr.New(apperr.Conflict, "proof already approved")
	case database.ProofPending:
		return apperr.New(apperr.Conflict, "proof already pending review")
	}
	if previous != nil {
		*previous = existing
	}
	return nil
}

// Delete removes a volunteer's own PENDING proof and, best-effort, its evidence
func (e *Engine) Delete(ctx context.Context, proofID, volunteerID uint) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveLifecycle("delete", outcome(err), start) }()

	var proof database.Proof
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&proof, proofID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.NotFound, "proof not found")
			}
			return err
		}
		if proof.VolunteerID != volunteerID {
			return apperr.New(apperr.Forbidden, "proof belongs to another volunteer")
		}
		if proof.Status != database.ProofPending {
			return apperr.New(apperr.Conflict, "only pending proofs can be deleted")
		}

		res := tx.Where("id = ? AND status = ?", proofID, database.ProofPending).Delete(&database.Proof{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.Conflict, "only pending proofs can be deleted")
		}
		return nil
	})
	if err != nil {
		return internalUnlessTyped(err, "failed to delete proof")
	}

	e.discardEvidence(ctx, proof.EvidenceLocator)
	e.logger.Info("proof deleted", zap.Uint("proof_id", proofID), zap.Uint("volunteer_id", volunteerID))
	return nil
}

// Approve awards the event's current points, completes the registration and requests a certificate.
// Certificate failures are logged; the approval stays committed.
func (e *Engine) Approve(ctx context.Context, proofID, coordinatorID uint) (proof *database.Proof, err error) {
	start := time.Now()
	defer func() { metrics.ObserveLifecycle("approve", outcome(err), start) }()

	var awarded int
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := ownedProof(tx, proofID, coordinatorID)
		if err != nil {
			return err
		}
		if p.Status != database.ProofPending {
			return apperr.New(apperr.Conflict, "proof is not pending")
		}

		var event database.Event
		if err := tx.First(&event, p.EventID).Error; err != nil {
			return err
		}
		awarded = event.Points
		reviewedAt := e.now()

		res := tx.Model(&database.Proof{}).
			Where("id = ? AND status = ?", proofID, database.ProofPending).
			Updates(map[string]interface{}{
				"status":         database.ProofApproved,
				"reviewed_at":    reviewedAt,
				"points_awarded": awarded,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.Conflict, "proof is not pending")
		}

		if err := tx.Model(&database.Volunteer{}).
			Where("id = ?", p.VolunteerID).
			Update("total_points", gorm.Expr("total_points + ?", awarded)).Error; err != nil {
			return err
		}

		if err := tx.Model(&database.Registration{}).
			Where("volunteer_id = ? AND event_id = ? AND status <> ?", p.VolunteerID, p.EventID, database.RegistrationCompleted).
			Update("status", database.RegistrationCompleted).Error; err != nil {
			return err
		}

		p.Status = database.ProofApproved
		p.ReviewedAt = &reviewedAt
		p.PointsAwarded = &awarded
		proof = p
		return nil
	})
	if err != nil {
		return nil, internalUnlessTyped(err, "failed to approve proof")
	}

	metrics.RecordPointsAwarded(awarded)
	e.logger.Info("proof approved",
		zap.Uint("proof_id", proofID),
		zap.Uint("coordinator_id", coordinatorID),
		zap.Uint("volunteer_id", proof.VolunteerID),
		zap.Int("points", awarded),
	)

	e.requestCertificate(ctx, proofID)
	return proof, nil
}

// Reject marks a PENDING proof rejected with a reason and rejects the registration.
// The volunteer may submit a new proof afterwards.
func (e *Engine) Reject(ctx context.Context, proofID, coordinatorID uint, reason string) (proof *database.Proof, err error) {
	start := time.Now()
	defer func() { metrics.ObserveLifecycle("reject", outcome(err), start) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.New(apperr.InvalidArgument, "rejection reason is required")
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := ownedProof(tx, proofID, coordinatorID)
		if err != nil {
			return err
		}
		if p.Status != database.ProofPending {
			return apperr.New(apperr.Conflict, "proof is not pending")
		}
		reviewedAt := e.now()

		res := tx.Model(&database.Proof{}).
			Where("id = ? AND status = ?", proofID, database.ProofPending).
			Updates(map[string]interface{}{
				"status":           database.ProofRejected,
				"reviewed_at":      reviewedAt,
				"rejection_reason": reason,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.Conflict, "proof is not pending")
		}

		if err := tx.Model(&database.Registration{}).
			Where("volunteer_id = ? AND event_id = ? AND status <> ?", p.VolunteerID, p.EventID, database.RegistrationCompleted).
			Update("status", database.RegistrationRejected).Error; err != nil {
			return err
		}

		p.Status = database.ProofRejected
		p.ReviewedAt = &reviewedAt
		p.RejectionReason = &reason
		proof = p
		return nil
	})
	if err != nil {
		return nil, internalUnlessTyped(err, "failed to reject proof")
	}

	e.logger.Info("proof rejected",
		zap.Uint("proof_id", proofID),
		zap.Uint("coordinator_id", coordinatorID),
		zap.String("reason", reason),
	)
	return proof, nil
}

// RegenerateCertificate replaces the certificate of an approved proof.
// Unlike issuance after approval, renderer failures are returned.
func (e *Engine) RegenerateCertificate(ctx context.Context, proofID, coordinatorID uint) (cert *database.Certificate, err error) {
	start := time.Now()
	defer func() { metrics.ObserveLifecycle("regenerate", outcome(err), start) }()

	p, err := ownedProof(e.db.WithContext(ctx), proofID, coordinatorID)
	if err != nil {
		return nil, internalUnlessTyped(err, "failed to load proof")
	}
	if p.Status != database.ProofApproved {
		return nil, apperr.New(apperr.Conflict, "only approved proofs have certificates")
	}

	cert, err = e.certs.Reissue(ctx, proofID)
	if err != nil {
		metrics.RecordCertificate("failed")
		return nil, err
	}
	metrics.RecordCertificate("issued")
	return cert, nil
}

// IssueCertificate issues the certificate for an approved proof and records the outcome.
// It is the job run by background workers.
func (e *Engine) IssueCertificate(ctx context.Context, proofID uint) error {
	cert, err := e.certs.Issue(ctx, proofID)
	if err != nil {
		metrics.RecordCertificate("failed")
		return err
	}
	metrics.RecordCertificate("issued")
	e.logger.Debug("certificate ready",
		zap.Uint("proof_id", proofID),
		zap.String("certificate_id", cert.CertificateID),
	)
	return nil
}

func (e *Engine) requestCertificate(ctx context.Context, proofID uint) {
	if e.queue != nil {
		if e.queue.Enqueue(proofID) {
			return
		}
		e.logger.Warn("certificate not queued, regenerate to repair", zap.Uint("proof_id", proofID))
		return
	}
	if err := e.IssueCertificate(ctx, proofID); err != nil {
		e.logger.Error("certificate generation failed after approval",
			zap.Uint("proof_id", proofID),
			zap.Error(err),
		)
	}
}

// ListForVolunteer returns a volunteer's proofs, newest submission first
func (e *Engine) ListForVolunteer(ctx context.Context, volunteerID uint) ([]database.Proof, error) {
	var out []database.Proof
	err := e.db.WithContext(ctx).
		Preload("Event").
		Preload("Certificate").
		Where("volunteer_id = ?", volunteerID).
		Order("submitted_at DESC").Order("id DESC").
		Find(&out).Error
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "failed to list proofs")
	}
	return out, nil
}

// ListForCoordinator returns proofs for events the coordinator owns, newest submission first.
// This projection is the authorization boundary for review actions.
func (e *Engine) ListForCoordinator(ctx context.Context, coordinatorID uint) ([]database.Proof, error) {
	var out []database.Proof
	err := coordinatorScope(e.db.WithContext(ctx), coordinatorID).
		Preload("Event").
		Preload("Volunteer").
		Preload("Certificate").
		Order("submitted_at DESC").Order("id DESC").
		Find(&out).Error
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "failed to list proofs")
	}
	return out, nil
}

func coordinatorScope(db *gorm.DB, coordinatorID uint) *gorm.DB {
	return db.Where("event_id IN (?)",
		db.Session(&gorm.Session{NewDB: true}).Model(&database.Event{}).Select("id").Where("coordinator_id = ?", coordinatorID),
	)
}

// ownedProof loads a proof through the coordinator's projection
func ownedProof(db *gorm.DB, proofID, coordinatorID uint) (*database.Proof, error) {
	var p database.Proof
	err := coordinatorScope(db, coordinatorID).Where("id = ?", proofID).First(&p).Error
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var exists int64
	if err := db.Model(&database.Proof{}).Where("id = ?", proofID).Count(&exists).Error; err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, apperr.New(apperr.NotFound, "proof not found")
	}
	return nil, apperr.New(apperr.Forbidden, "proof belongs to another coordinator's event")
}

func (e *Engine) discardEvidence(ctx context.Context, locator string) {
	if locator == "" {
		return
	}
	if err := e.store.Delete(ctx, locator); err != nil {
		e.logger.Warn("failed to delete evidence", zap.String("locator", locator), zap.Error(err))
	}
}

func outcome(err error) string {
	if err != nil {
		return apperr.KindOf(err).String()
	}
	return "ok"
}

func internalUnlessTyped(err error, msg string) error {
	if apperr.KindOf(err) != apperr.Internal {
		return err
	}
	return apperr.Wrap(err, apperr.Internal, msg)
}

package certificates

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/arnavshah/volunteer-portal-go/pkg/apperr"
	"github.com/arnavshah/volunteer-portal-go/pkg/database"
	"github.com/arnavshah/volunteer-portal-go/pkg/storage"
)

// Verification is the public answer to a certificate lookup
type Verification struct {
	Valid         bool       `json:"valid"`
	CertificateID string     `json:"certificate_id,omitempty"`
	VolunteerName string     `json:"volunteer_name,omitempty"`
	EventTitle    string     `json:"event_title,omitempty"`
	IssuedDate    *time.Time `json:"issued_date,omitempty"`
	PointsAwarded int        `json:"points_awarded,omitempty"`
}

// Service keeps certificate records consistent with approved proofs
type Service struct {
	db       *gorm.DB
	renderer Renderer
	store    storage.Storage
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a Service
func NewService(db *gorm.DB, renderer Renderer, store storage.Storage, logger *zap.Logger) *Service {
	return &Service{db: db, renderer: renderer, store: store, logger: logger, now: time.Now}
}

// Issue creates the certificate for an approved proof. Issuing twice returns the existing one.
func (s *Service) Issue(ctx context.Context, proofID uint) (*database.Certificate, error) {
	proof, err := s.approvedProof(ctx, proofID)
	if err != nil {
		return nil, err
	}

	if existing, err := s.ForProof(ctx, proofID); err == nil {
		return existing, nil
	} else if !apperr.Is(err, apperr.NotFound) {
		return nil, err
	}

	issued, err := s.render(ctx, proof)
	if err != nil {
		return nil, err
	}

	cert := s.record(proof, issued)
	if err := s.db.WithContext(ctx).Create(cert).Error; err != nil {
		s.discard(ctx, issued.ArtifactLocator)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// lost a race with a concurrent issuance for the same proof
			return s.ForProof(ctx, proofID)
		}
		return nil, apperr.Wrap(err, apperr.Internal, "failed to save certificate")
	}

	s.logger.Info("certificate issued",
		zap.Uint("proof_id", proofID),
		zap.String("certificate_id", cert.CertificateID),
	)
	return cert, nil
}

// Reissue replaces any certificate for the proof with a freshly rendered one.
// Rendering happens first so a renderer failure leaves the old certificate in place.
func (s *Service) Reissue(ctx context.Context, proofID uint) (*database.Certificate, error) {
	proof, err := s.approvedProof(ctx, proofID)
	if err != nil {
		return nil, err
	}

	issued, err := s.render(ctx, proof)
	if err != nil {
		return nil, err
	}

	cert := s.record(proof, issued)
	var replaced []database.Certificate
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("proof_id = ?", proofID).Find(&replaced).Error; err != nil {
			return err
		}
		if err := tx.Where("proof_id = ?", proofID).Delete(&database.Certificate{}).Error; err != nil {
			return err
		}
		return tx.Create(cert).Error
	})
	if err != nil {
		s.discard(ctx, issued.ArtifactLocator)
		return nil, apperr.Wrap(err, apperr.Internal, "failed to replace certificate")
	}

	for _, old := range replaced {
		s.discard(ctx, old.ArtifactLocator)
	}

	s.logger.Info("certificate regenerated",
		zap.Uint("proof_id", proofID),
		zap.String("certificate_id", cert.CertificateID),
		zap.Int("replaced", len(replaced)),
	)
	return cert, nil
}

// Verify looks up a certificate by its verification code.
// Unknown codes yield Valid=false rather than an error.
func (s *Service) Verify(ctx context.Context, code string) (*Verification, error) {
	if code == "" {
		return &Verification{Valid: false}, nil
	}

	var cert database.Certificate
	err := s.db.WithContext(ctx).
		Preload("Volunteer").
		Preload("Event").
		Where("verification_code = ?", code).
		First(&cert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Verification{Valid: false}, nil
		}
		return nil, apperr.Wrap(err, apperr.Internal, "failed to verify certificate")
	}

	var proof database.Proof
	if err := s.db.WithContext(ctx).First(&proof, cert.ProofID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Verification{Valid: false}, nil
		}
		return nil, apperr.Wrap(err, apperr.Internal, "failed to verify certificate")
	}
	if proof.Status != database.ProofApproved {
		return &Verification{Valid: false}, nil
	}

	issued := cert.IssuedAt
	v := &Verification{
		Valid:         true,
		CertificateID: cert.CertificateID,
		IssuedDate:    &issued,
	}
	if cert.Volunteer != nil {
		v.VolunteerName = cert.Volunteer.Name
	}
	if cert.Event != nil {
		v.EventTitle = cert.Event.Title
	}
	if proof.PointsAwarded != nil {
		v.PointsAwarded = *proof.PointsAwarded
	}
	return v, nil
}

// Download returns a certificate record and its rendered artifact.
// Only the certificate's volunteer or the coordinator of its event may fetch it.
func (s *Service) Download(ctx context.Context, certificateID string, role database.Role, accountID uint) (*database.Certificate, []byte, error) {
	var cert database.Certificate
	err := s.db.WithContext(ctx).Preload("Event").Where("certificate_id = ?", certificateID).First(&cert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperr.New(apperr.NotFound, "certificate not found")
		}
		return nil, nil, apperr.Wrap(err, apperr.Internal, "failed to load certificate")
	}

	switch {
	case role == database.RoleVolunteer && cert.VolunteerID == accountID:
	case role == database.RoleCoordinator && cert.Event != nil && cert.Event.CoordinatorID == accountID:
	default:
		return nil, nil, apperr.New(apperr.Forbidden, "not allowed to download this certificate")
	}

	data, err := s.store.Read(ctx, cert.ArtifactLocator)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil, nil, apperr.New(apperr.NotFound, "certificate file not found")
		}
		return nil, nil, apperr.Wrap(err, apperr.StorageError, "failed to read certificate")
	}
	return &cert, data, nil
}

// ForProof returns the certificate attached to a proof
func (s *Service) ForProof(ctx context.Context, proofID uint) (*database.Certificate, error) {
	var cert database.Certificate
	if err := s.db.WithContext(ctx).Where("proof_id = ?", proofID).First(&cert).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.NotFound, "certificate not found")
		}
		return nil, apperr.Wrap(err, apperr.Internal, "failed to load certificate")
	}
	return &cert, nil
}

func (s *Service) approvedProof(ctx context.Context, proofID uint) (*database.Proof, error) {
	var proof database.Proof
	err := s.db.WithContext(ctx).Preload("Volunteer").Preload("Event").First(&proof, proofID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.NotFound, "proof not found")
		}
		return nil, apperr.Wrap(err, apperr.Internal, "failed to load proof")
	}
	if proof.Status != database.ProofApproved {
		return nil, apperr.New(apperr.Conflict, "certificates are only issued for approved proofs")
	}
	if proof.Volunteer == nil || proof.Event == nil {
		return nil, apperr.New(apperr.NotFound, "proof volunteer or event missing")
	}
	return &proof, nil
}

func (s *Service) render(ctx context.Context, proof *database.Proof) (*Issued, error) {
	issued, err := s.renderer.Issue(ctx, IssueRequest{
		Volunteer: *proof.Volunteer,
		Event:     *proof.Event,
		Proof:     *proof,
	})
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.RenderError, apperr.StorageError:
			return nil, err
		default:
			return nil, apperr.Wrap(err, apperr.RenderError, "failed to render certificate")
		}
	}
	return issued, nil
}

func (s *Service) record(proof *database.Proof, issued *Issued) *database.Certificate {
	return &database.Certificate{
		CertificateID:    issued.CertificateID,
		ProofID:          proof.ID,
		VolunteerID:      proof.VolunteerID,
		EventID:          proof.EventID,
		ArtifactLocator:  issued.ArtifactLocator,
		VerificationCode: issued.VerificationCode,
		IssuedAt:         s.now(),
	}
}

func (s *Service) discard(ctx context.Context, locator string) {
	if locator == "" || s.store == nil {
		return
	}
	if err := s.store.Delete(ctx, locator); err != nil {
		s.logger.Warn("failed to delete certificate artifact",
			zap.String("locator", locator),
			zap.Error(err),
		)
	}
}

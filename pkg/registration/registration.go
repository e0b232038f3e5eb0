package registration

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arnavshah/volunteer-portal-go/pkg/apperr"
	"github.com/arnavshah/volunteer-portal-go/pkg/database"
	"github.com/arnavshah/volunteer-portal-go/pkg/metrics"
)

// Ledger records which volunteers applied to which events.
// It holds at most one registration per (volunteer, event) pair.
type Ledger struct {
	db              *gorm.DB
	logger          *zap.Logger
	enforceCapacity bool
	now             func() time.Time
}

// Option configures a Ledger
type Option func(*Ledger)

// WithCapacityEnforcement rejects registrations once an event reaches MaxVolunteers
func WithCapacityEnforcement(enforce bool) Option {
	return func(l *Ledger) {
		l.enforceCapacity = enforce
	}
}

// New creates a Ledger. Capacity is advisory unless WithCapacityEnforcement(true) is given.
func New(db *gorm.DB, logger *zap.Logger, opts ...Option) *Ledger {
	l := &Ledger{db: db, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Register creates an APPLIED registration for the pair
func (l *Ledger) Register(ctx context.Context, volunteerID, eventID uint) (reg *database.Registration, err error) {
	start := time.Now()
	defer func() { metrics.ObserveLifecycle("register", outcome(err), start) }()

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var volunteer database.Volunteer
		if err := tx.Select("id").First(&volunteer, volunteerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.NotFound, "volunteer not found")
			}
			return err
		}

		var event database.Event
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&event, eventID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.NotFound, "event not found")
			}
			return err
		}

		var existing int64
		if err := tx.Model(&database.Registration{}).
			Where("volunteer_id = ? AND event_id = ?", volunteerID, eventID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return apperr.New(apperr.Conflict, "already registered for this event")
		}

		if l.enforceCapacity {
			var taken int64
			if err := tx.Model(&database.Registration{}).Where("event_id = ?", eventID).Count(&taken).Error; err != nil {
				return err
			}
			if taken >= int64(event.MaxVolunteers) {
				return apperr.New(apperr.Conflict, "event is full")
			}
		}

		reg = &database.Registration{
			VolunteerID:  volunteerID,
			EventID:      eventID,
			Status:       database.RegistrationApplied,
			RegisteredAt: l.now(),
		}
		return tx.Create(reg).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.New(apperr.Conflict, "already registered for this event")
		}
		return nil, internalUnlessTyped(err, "failed to register")
	}

	l.logger.Info("volunteer registered",
		zap.Uint("volunteer_id", volunteerID),
		zap.Uint("event_id", eventID),
	)
	return reg, nil
}

// Unregister deletes the pair's registration unless a proof is pending or approved.
// The registration row is locked so a concurrent Submit for the pair waits on it.
func (l *Ledger) Unregister(ctx context.Context, volunteerID, eventID uint) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveLifecycle("unregister", outcome(err), start) }()

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reg database.Registration
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("volunteer_id = ? AND event_id = ?", volunteerID, eventID).
			First(&reg).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.NotFound, "registration not found")
			}
			return err
		}

		var proof database.Proof
		err := tx.Where("volunteer_id = ? AND event_id = ?", volunteerID, eventID).First(&proof).Error
		switch {
		case err == nil:
			switch proof.Status {
			case database.ProofApproved:
				return apperr.New(apperr.Conflict, "cannot unregister after approval")
			case database.ProofPending:
				return apperr.New(apperr.Conflict, "must delete pending proof first")
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		return tx.Delete(&reg).Error
	})
	if err != nil {
		return internalUnlessTyped(err, "failed to unregister")
	}

	l.logger.Info("volunteer unregistered",
		zap.Uint("volunteer_id", volunteerID),
		zap.Uint("event_id", eventID),
	)
	return nil
}

// Get returns the registration for a pair
func (l *Ledger) Get(ctx context.Context, volunteerID, eventID uint) (*database.Registration, error) {
	var reg database.Registration
	err := l.db.WithContext(ctx).Where("volunteer_id = ? AND event_id = ?", volunteerID, eventID).First(&reg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.NotFound, "registration not found")
		}
		return nil, apperr.Wrap(err, apperr.Internal, "failed to load registration")
	}
	return &reg, nil
}

// ListForVolunteer returns a volunteer's registrations with their events, newest first
func (l *Ledger) ListForVolunteer(ctx context.Context, volunteerID uint) ([]database.Registration, error) {
	var regs []database.Registration
	err := l.db.WithContext(ctx).
		Preload("Event").
		Where("volunteer_id = ?", volunteerID).
		Order("registered_at DESC").Order("id DESC").
		Find(&regs).Error
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "failed to list registrations")
	}
	return regs, nil
}

// ListForEvent returns an event's registrations with their volunteers, oldest first
func (l *Ledger) ListForEvent(ctx context.Context, eventID uint) ([]database.Registration, error) {
	var regs []database.Registration
	err := l.db.WithContext(ctx).
		Preload("Volunteer").
		Where("event_id = ?", eventID).
		Order("registered_at ASC").Order("id ASC").
		Find(&regs).Error
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "failed to list registrations")
	}
	return regs, nil
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

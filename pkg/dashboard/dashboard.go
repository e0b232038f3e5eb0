package dashboard

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/arnavshah/volunteer-portal-go/pkg/apperr"
	"github.com/arnavshah/volunteer-portal-go/pkg/database"
)

// VolunteerStats summarizes a volunteer's registrations and points
type VolunteerStats struct {
	TotalEvents     int64 `json:"total_events"`
	AppliedEvents   int64 `json:"applied_events"`
	CompletedEvents int64 `json:"completed_events"`
	RejectedEvents  int64 `json:"rejected_events"`
	TotalPoints     int   `json:"total_points"`
}

// CoordinatorStats summarizes a coordinator's events and review backlog
type CoordinatorStats struct {
	TotalEvents      int64 `json:"total_events"`
	PendingApprovals int64 `json:"pending_approvals"`
	TotalVolunteers  int64 `json:"total_volunteers"`
}

// Service computes dashboard counters
type Service struct {
	db *gorm.DB
}

// New creates a Service
func New(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Volunteer gathers a volunteer's counters concurrently
func (s *Service) Volunteer(ctx context.Context, volunteerID uint) (*VolunteerStats, error) {
	var stats VolunteerStats
	g, ctx := errgroup.WithContext(ctx)

	regs := func(status database.RegistrationStatus, out *int64) func() error {
		return func() error {
			q := s.db.WithContext(ctx).Model(&database.Registration{}).Where("volunteer_id = ?", volunteerID)
			if status != "" {
				q = q.Where("status = ?", status)
			}
			return q.Count(out).Error
		}
	}
	g.Go(regs("", &stats.TotalEvents))
	g.Go(regs(database.RegistrationApplied, &stats.AppliedEvents))
	g.Go(regs(database.RegistrationCompleted, &stats.CompletedEvents))
	g.Go(regs(database.RegistrationRejected, &stats.RejectedEvents))
	g.Go(func() error {
		var v database.Volunteer
		if err := s.db.WithContext(ctx).Select("total_points").First(&v, volunteerID).Error; err != nil {
			return err
		}
		stats.TotalPoints = v.TotalPoints
		return nil
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.NotFound, "volunteer not found")
		}
		return nil, apperr.Wrap(err, apperr.Internal, "failed to load dashboard")
	}
	return &stats, nil
}

// Coordinator gathers a coordinator's counters concurrently
func (s *Service) Coordinator(ctx context.Context, coordinatorID uint) (*CoordinatorStats, error) {
	var stats CoordinatorStats
	g, ctx := errgroup.WithContext(ctx)

	owned := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&database.Event{}).Select("id").Where("coordinator_id = ?", coordinatorID)
	}

	g.Go(func() error {
		return s.db.WithContext(ctx).Model(&database.Event{}).
			Where("coordinator_id = ?", coordinatorID).
			Count(&stats.TotalEvents).Error
	})
	g.Go(func() error {
		return s.db.WithContext(ctx).Model(&database.Proof{}).
			Where("status = ? AND event_id IN (?)", database.ProofPending, owned()).
			Count(&stats.PendingApprovals).Error
	})
	g.Go(func() error {
		return s.db.WithContext(ctx).Model(&database.Volunteer{}).Count(&stats.TotalVolunteers).Error
	})

	if err := g.Wait(); err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "failed to load dashboard")
	}
	return &stats, nil
}

package leaderboard

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/arnavshah/volunteer-portal-go/pkg/apperr"
	"github.com/arnavshah/volunteer-portal-go/pkg/database"
	"github.com/arnavshah/volunteer-portal-go/pkg/metrics"
)

// Entry is one row of the ranking
type Entry struct {
	Position    int    `json:"position"`
	VolunteerID uint   `json:"volunteer_id"`
	Name        string `json:"name"`
	Username    string `json:"username"`
	Points      int    `json:"points"`
}

// Aggregator ranks volunteers by cached points and reconciles the cache
type Aggregator struct {
	db        *gorm.DB
	logger    *zap.Logger
	batchSize int
}

// New creates an Aggregator. batchSize bounds how many volunteers one recompute batch loads.
func New(db *gorm.DB, logger *zap.Logger, batchSize int) *Aggregator {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Aggregator{db: db, logger: logger, batchSize: batchSize}
}

// Rank orders every volunteer by points descending, then id ascending.
// Positions are 1..N with no shared ranks.
func (a *Aggregator) Rank(ctx context.Context) ([]Entry, error) {
	var volunteers []database.Volunteer
	err := a.db.WithContext(ctx).
		Select("id", "name", "username", "total_points").
		Order("total_points DESC").Order("id ASC").
		Find(&volunteers).Error
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "failed to load leaderboard")
	}

	entries := make([]Entry, len(volunteers))
	for i, v := range volunteers {
		entries[i] = Entry{
			Position:    i + 1,
			VolunteerID: v.ID,
			Name:        v.Name,
			Username:    v.Username,
			Points:      v.TotalPoints,
		}
	}
	return entries, nil
}

// RecomputeAll resets every volunteer's cached points to the sum awarded by approved proofs.
// Each volunteer is updated atomically on its own; no lock is held across the sweep.
func (a *Aggregator) RecomputeAll(ctx context.Context) (updated int, err error) {
	start := time.Now()
	defer func() { metrics.ObserveLifecycle("recompute_all", outcome(err), start) }()

	var batch []database.Volunteer
	res := a.db.WithContext(ctx).Select("id").
		FindInBatches(&batch, a.batchSize, func(tx *gorm.DB, _ int) error {
			for _, v := range batch {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := a.recompute(ctx, v.ID); err != nil {
					return err
				}
				updated++
			}
			return nil
		})
	if res.Error != nil {
		return updated, apperr.Wrap(res.Error, apperr.Internal, "failed to recompute points")
	}

	a.logger.Info("points recomputed", zap.Int("volunteers", updated), zap.Duration("took", time.Since(start)))
	return updated, nil
}

// Recompute reconciles a single volunteer
func (a *Aggregator) Recompute(ctx context.Context, volunteerID uint) error {
	if err := a.recompute(ctx, volunteerID); err != nil {
		return apperr.Wrap(err, apperr.Internal, "failed to recompute points")
	}
	return nil
}

func (a *Aggregator) recompute(ctx context.Context, volunteerID uint) error {
	sum := a.db.Session(&gorm.Session{NewDB: true}).Model(&database.Proof{}).
		Select("COALESCE(SUM(points_awarded), 0)").
		Where("volunteer_id = ? AND status = ?", volunteerID, database.ProofApproved)

	return a.db.WithContext(ctx).Model(&database.Volunteer{}).
		Where("id = ?", volunteerID).
		Update("total_points", sum).Error
}

func outcome(err error) string {
	if err != nil {
		return apperr.KindOf(err).String()
	}
	return "ok"
}

package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/arnavshah/volunteer-portal-go/pkg/apperr"
	"github.com/arnavshah/volunteer-portal-go/pkg/database"
)

// Categories is the fixed set of event categories, in display order
var Categories = []string{
	"Community Service",
	"Environmental",
	"Health & Awareness",
	"Education & Teaching",
	"Blood Donation",
	"Disaster Relief",
	"Others",
}

// ValidCategory reports whether c is one of Categories
func ValidCategory(c string) bool {
	for _, known := range Categories {
		if known == c {
			return true
		}
	}
	return false
}

// EventInput is the editable part of an event
type EventInput struct {
	Title         string    `json:"title" validate:"required,max=200"`
	Description   string    `json:"description" validate:"max=5000"`
	EventDate     time.Time `json:"event_date" validate:"required"`
	Points        int       `json:"points" validate:"gt=0"`
	MaxVolunteers int       `json:"max_volunteers" validate:"gt=0"`
	Category      string    `json:"category" validate:"required"`
}

// EventView is an event plus its current registration count
type EventView struct {
	database.Event
	RegisteredVolunteers int64 `json:"registered_volunteers"`
}

// Catalog manages events owned by coordinators
type Catalog struct {
	db       *gorm.DB
	logger   *zap.Logger
	validate *validator.Validate
}

// New creates a Catalog
func New(db *gorm.DB, logger *zap.Logger) *Catalog {
	return &Catalog{db: db, logger: logger, validate: validator.New()}
}

func (c *Catalog) check(in *EventInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.TrimSpace(in.Category)
	if err := c.validate.Struct(in); err != nil {
		return apperr.Wrap(err, apperr.InvalidArgument, "invalid event")
	}
	if !ValidCategory(in.Category) {
		return apperr.Newf(apperr.InvalidArgument, "invalid category %q", in.Category)
	}
	return nil
}

// Create adds an event owned by coordinatorID
func (c *Catalog) Create(ctx context.Context, coordinatorID uint, in EventInput) (*database.Event, error) {
	if err := c.check(&in); err != nil {
		return nil, err
	}

	event := database.Event{
		Title:         in.Title,
		Description:   in.Description,
		EventDate:     in.EventDate,
		Points:        in.Points,
		MaxVolunteers: in.MaxVolunteers,
		Category:      in.Category,
		CoordinatorID: coordinatorID,
	}
	if err := c.db.WithContext(ctx).Create(&event).Error; err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "failed to create event")
	}

	c.logger.Info("event created",
		zap.Uint("event_id", event.ID),
		zap.Uint("coordinator_id", coordinatorID),
		zap.String("category", event.Category),
	)
	return &event, nil
}

// Update edits an event. Only the owning coordinator may edit it.
// Points already awarded are not affected.
func (c *Catalog) Update(ctx context.Context, coordinatorID, eventID uint, in EventInput) (*database.Event, error) {
	if err := c.check(&in); err != nil {
		return nil, err
	}

	var event database.Event
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ownedEvent(tx, coordinatorID, eventID, &event); err != nil {
			return err
		}
		err := tx.Model(&event).Updates(map[string]interface{}{
			"title":          in.Title,
			"description":    in.Description,
			"event_date":     in.EventDate,
			"points":         in.Points,
			"max_volunteers": in.MaxVolunteers,
			"category":       in.Category,
		}).Error
		if err != nil {
			return err
		}
		return tx.First(&event, eventID).Error
	})
	if err != nil {
		return nil, internalUnlessTyped(err, "failed to update event")
	}

	c.logger.Info("event updated", zap.Uint("event_id", eventID))
	return &event, nil
}

// Delete removes an event owned by coordinatorID that nobody has registered for
func (c *Catalog) Delete(ctx context.Context, coordinatorID, eventID uint) error {
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event database.Event
		if err := ownedEvent(tx, coordinatorID, eventID, &event); err != nil {
			return err
		}

		var refs int64
		if err := tx.Model(&database.Registration{}).Where("event_id = ?", eventID).Count(&refs).Error; err != nil {
			return err
		}
		if refs == 0 {
			if err := tx.Model(&database.Proof{}).Where("event_id = ?", eventID).Count(&refs).Error; err != nil {
				return err
			}
		}
		if refs > 0 {
			return apperr.New(apperr.Conflict, "event has registrations or proofs")
		}
		return tx.Delete(&event).Error
	})
	if err != nil {
		return internalUnlessTyped(err, "failed to delete event")
	}

	c.logger.Info("event deleted", zap.Uint("event_id", eventID))
	return nil
}

// Get returns a single event with its registration count
func (c *Catalog) Get(ctx context.Context, eventID uint) (*EventView, error) {
	var event database.Event
	if err := c.db.WithContext(ctx).Preload("Coordinator").First(&event, eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.NotFound, "event not found")
		}
		return nil, apperr.Wrap(err, apperr.Internal, "failed to load event")
	}
	views, err := c.withCounts(ctx, []database.Event{event})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// List returns all events, newest first
func (c *Catalog) List(ctx context.Context) ([]EventView, error) {
	return c.find(ctx, c.db.WithContext(ctx))
}

// ListByCategory returns events in one category, newest first
func (c *Catalog) ListByCategory(ctx context.Context, category string) ([]EventView, error) {
	category = strings.TrimSpace(category)
	if !ValidCategory(category) {
		return nil, apperr.Newf(apperr.InvalidArgument, "invalid category %q", category)
	}
	return c.find(ctx, c.db.WithContext(ctx).Where("category = ?", category))
}

// ListByCoordinator returns the events a coordinator owns, newest first
func (c *Catalog) ListByCoordinator(ctx context.Context, coordinatorID uint) ([]EventView, error) {
	return c.find(ctx, c.db.WithContext(ctx).Where("coordinator_id = ?", coordinatorID))
}

func (c *Catalog) find(ctx context.Context, q *gorm.DB) ([]EventView, error) {
	var events []database.Event
	if err := q.Preload("Coordinator").Order("created_at DESC").Order("id DESC").Find(&events).Error; err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "failed to list events")
	}
	return c.withCounts(ctx, events)
}

func (c *Catalog) withCounts(ctx context.Context, events []database.Event) ([]EventView, error) {
	views := make([]EventView, len(events))
	if len(events) == 0 {
		return views, nil
	}

	ids := make([]uint, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}

	var rows []struct {
		EventID uint
		Count   int64
	}
	err := c.db.WithContext(ctx).Model(&database.Registration{}).
		Select("event_id, COUNT(*) AS count").
		Where("event_id IN ?", ids).
		Group("event_id").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "failed to count registrations")
	}

	counts := make(map[uint]int64, len(rows))
	for _, r := range rows {
		counts[r.EventID] = r.Count
	}
	for i, e := range events {
		views[i] = EventView{Event: e, RegisteredVolunteers: counts[e.ID]}
	}
	return views, nil
}

func ownedEvent(tx *gorm.DB, coordinatorID, eventID uint, out *database.Event) error {
	if err := tx.First(out, eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.New(apperr.NotFound, "event not found")
		}
		return err
	}
	if out.CoordinatorID != coordinatorID {
		return apperr.New(apperr.Forbidden, "event belongs to another coordinator")
	}
	return nil
}

func internalUnlessTyped(err error, msg string) error {
	if apperr.KindOf(err) != apperr.Internal {
		return err
	}
	return apperr.Wrap(err, apperr.Internal, msg)
}

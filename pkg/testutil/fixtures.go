package testutil

import (
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/arnavshah/volunteer-portal-go/pkg/database"
)

// CreateVolunteer inserts a volunteer whose username and email derive from name
func CreateVolunteer(t *testing.T, db *gorm.DB, name string) *database.Volunteer {
	t.Helper()
	handle := strings.ToLower(strings.ReplaceAll(name, " ", "."))
	v := &database.Volunteer{
		Name:         name,
		Username:     handle,
		Email:        handle + "@example.com",
		PasswordHash: "x",
	}
	if err := db.Create(v).Error; err != nil {
		t.Fatalf("failed to create volunteer %s: %v", name, err)
	}
	return v
}

// CreateCoordinator inserts a coordinator whose username and email derive from name
func CreateCoordinator(t *testing.T, db *gorm.DB, name string) *database.Coordinator {
	t.Helper()
	handle := strings.ToLower(strings.ReplaceAll(name, " ", "."))
	c := &database.Coordinator{
		Name:         name,
		Username:     handle,
		Email:        handle + "@example.org",
		PasswordHash: "x",
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("failed to create coordinator %s: %v", name, err)
	}
	return c
}

// CreateEvent inserts an event owned by coordinatorID
func CreateEvent(t *testing.T, db *gorm.DB, coordinatorID uint, title string, points int) *database.Event {
	t.Helper()
	e := &database.Event{
		Title:         title,
		Description:   title + " description",
		EventDate:     time.Now().Add(72 * time.Hour),
		Points:        points,
		MaxVolunteers: 10,
		Category:      "Community Service",
		CoordinatorID: coordinatorID,
	}
	if err := db.Create(e).Error; err != nil {
		t.Fatalf("failed to create event %s: %v", title, err)
	}
	return e
}

// Register inserts an APPLIED registration without going through the ledger
func Register(t *testing.T, db *gorm.DB, volunteerID, eventID uint) *database.Registration {
	t.Helper()
	r := &database.Registration{
		VolunteerID:  volunteerID,
		EventID:      eventID,
		Status:       database.RegistrationApplied,
		RegisteredAt: time.Now(),
	}
	if err := db.Create(r).Error; err != nil {
		t.Fatalf("failed to create registration: %v", err)
	}
	return r
}

// CreateProof inserts a proof in the given state. Approved proofs get the event's points.
func CreateProof(t *testing.T, db *gorm.DB, volunteerID, eventID uint, status database.ProofStatus) *database.Proof {
	t.Helper()
	p := &database.Proof{
		VolunteerID:     volunteerID,
		EventID:         eventID,
		Status:          status,
		EvidenceLocator: "evidence.jpg",
		SubmittedAt:     time.Now(),
	}
	if status == database.ProofApproved {
		var event database.Event
		if err := db.First(&event, eventID).Error; err != nil {
			t.Fatalf("failed to load event %d: %v", eventID, err)
		}
		now := time.Now()
		p.ReviewedAt = &now
		p.PointsAwarded = &event.Points
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("failed to create proof: %v", err)
	}
	return p
}

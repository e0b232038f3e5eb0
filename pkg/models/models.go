package models

import (
	"time"

	"github.com/arnavshah/volunteer-portal-go/pkg/catalog"
	"github.com/arnavshah/volunteer-portal-go/pkg/database"
)

// RegisterRequest is the sign-up payload
type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

// LoginRequest accepts either a username or an email as identifier
type LoginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required"`
}

// Identifier returns whichever of username or email was supplied
func (r LoginRequest) Identifier() string {
	if r.Username != "" {
		return r.Username
	}
	return r.Email
}

// AuthResponse is returned on successful sign-up or login
type AuthResponse struct {
	Token    string `json:"token"`
	Type     string `json:"type"`
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// EventRequest is the create/update payload for events
type EventRequest struct {
	Title         string    `json:"title" binding:"required"`
	Description   string    `json:"description"`
	EventDate     time.Time `json:"event_date" binding:"required"`
	Points        int       `json:"points" binding:"required"`
	MaxVolunteers int       `json:"max_volunteers" binding:"required"`
	Category      string    `json:"category" binding:"required"`
}

// Input converts the request into the catalog's input type
func (r EventRequest) Input() catalog.EventInput {
	return catalog.EventInput{
		Title:         r.Title,
		Description:   r.Description,
		EventDate:     r.EventDate,
		Points:        r.Points,
		MaxVolunteers: r.MaxVolunteers,
		Category:      r.Category,
	}
}

// RejectRequest carries the mandatory rejection reason
type RejectRequest struct {
	Reason string `json:"reason"`
}

// RegisteredEvent is a volunteer's registration joined with its event
type RegisteredEvent struct {
	RegistrationID uint                        `json:"registration_id"`
	Status         database.RegistrationStatus `json:"status"`
	RegisteredAt   time.Time                   `json:"registered_at"`
	Event          *database.Event             `json:"event"`
}

// ProofResponse is a proof as shown to volunteers and coordinators
type ProofResponse struct {
	ID              uint                 `json:"id"`
	EventID         uint                 `json:"event_id"`
	EventTitle      string               `json:"event_title,omitempty"`
	VolunteerID     uint                 `json:"volunteer_id"`
	VolunteerName   string               `json:"volunteer_name,omitempty"`
	Status          database.ProofStatus `json:"status"`
	SubmittedAt     time.Time            `json:"submitted_at"`
	ReviewedAt      *time.Time           `json:"reviewed_at,omitempty"`
	PointsAwarded   *int                 `json:"points_awarded,omitempty"`
	RejectionReason *string              `json:"rejection_reason,omitempty"`
	CertificateID   string               `json:"certificate_id,omitempty"`
}

// NewProofResponse flattens a proof with its preloaded relations
func NewProofResponse(p database.Proof) ProofResponse {
	out := ProofResponse{
		ID:              p.ID,
		EventID:         p.EventID,
		VolunteerID:     p.VolunteerID,
		Status:          p.Status,
		SubmittedAt:     p.SubmittedAt,
		ReviewedAt:      p.ReviewedAt,
		PointsAwarded:   p.PointsAwarded,
		RejectionReason: p.RejectionReason,
	}
	if p.Event != nil {
		out.EventTitle = p.Event.Title
	}
	if p.Volunteer != nil {
		out.VolunteerName = p.Volunteer.Name
	}
	if p.Certificate != nil {
		out.CertificateID = p.Certificate.CertificateID
	}
	return out
}

// RecalculateResponse reports the outcome of a points reconciliation
type RecalculateResponse struct {
	Updated int `json:"updated"`
}

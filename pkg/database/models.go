package database

import "time"

// Role distinguishes the two principal kinds
type Role string

const (
	RoleVolunteer   Role = "VOLUNTEER"
	RoleCoordinator Role = "COORDINATOR"
)

// RegistrationStatus is the application state of a registration
type RegistrationStatus string

const (
	RegistrationApplied   RegistrationStatus = "APPLIED"
	RegistrationCompleted RegistrationStatus = "COMPLETED"
	RegistrationRejected  RegistrationStatus = "REJECTED"
)

// ProofStatus is the review state of a proof
type ProofStatus string

const (
	ProofPending  ProofStatus = "PENDING"
	ProofApproved ProofStatus = "APPROVED"
	ProofRejected ProofStatus = "REJECTED"
)

// Volunteer represents the volunteers table
type Volunteer struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	Username     string    `gorm:"uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	TotalPoints  int       `gorm:"not null;default:0" json:"total_points"`
	CreatedAt    time.Time `json:"created_at"`
}

// Coordinator represents the coordinators table
type Coordinator struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	Username     string    `gorm:"uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Event represents the events table
type Event struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	Title         string       `gorm:"not null" json:"title"`
	Description   string       `gorm:"type:text" json:"description"`
	EventDate     time.Time    `gorm:"not null" json:"event_date"`
	Points        int          `gorm:"not null" json:"points"`
	MaxVolunteers int          `gorm:"not null" json:"max_volunteers"`
	Category      string       `gorm:"not null;index" json:"category"`
	CoordinatorID uint         `gorm:"not null;index" json:"coordinator_id"`
	Coordinator   *Coordinator `gorm:"foreignKey:CoordinatorID" json:"coordinator,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Registration represents the registrations table; one row per (volunteer, event)
type Registration struct {
	ID           uint               `gorm:"primaryKey" json:"id"`
	VolunteerID  uint               `gorm:"uniqueIndex:idx_registration_pair;not null" json:"volunteer_id"`
	EventID      uint               `gorm:"uniqueIndex:idx_registration_pair;index;not null" json:"event_id"`
	Status       RegistrationStatus `gorm:"type:varchar(16);not null;default:'APPLIED'" json:"status"`
	RegisteredAt time.Time          `gorm:"not null" json:"registered_at"`
	Event        *Event             `gorm:"foreignKey:EventID" json:"event,omitempty"`
	Volunteer    *Volunteer         `gorm:"foreignKey:VolunteerID" json:"volunteer,omitempty"`
}

// Proof represents the proofs table; one active row per (volunteer, event)
type Proof struct {
	ID              uint         `gorm:"primaryKey" json:"id"`
	VolunteerID     uint         `gorm:"uniqueIndex:idx_proof_pair;not null" json:"volunteer_id"`
	EventID         uint         `gorm:"uniqueIndex:idx_proof_pair;index;not null" json:"event_id"`
	Status          ProofStatus  `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"status"`
	EvidenceLocator string       `gorm:"not null" json:"evidence_locator"`
	SubmittedAt     time.Time    `gorm:"not null" json:"submitted_at"`
	ReviewedAt      *time.Time   `json:"reviewed_at,omitempty"`
	PointsAwarded   *int         `json:"points_awarded,omitempty"`
	RejectionReason *string      `gorm:"type:text" json:"rejection_reason,omitempty"`
	Event           *Event       `gorm:"foreignKey:EventID" json:"event,omitempty"`
	Volunteer       *Volunteer   `gorm:"foreignKey:VolunteerID" json:"volunteer,omitempty"`
	Certificate     *Certificate `gorm:"foreignKey:ProofID" json:"certificate,omitempty"`
}

// Certificate represents the certificates table; one row per approved proof
type Certificate struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	CertificateID    string     `gorm:"uniqueIndex;size:32;not null" json:"certificate_id"`
	ProofID          uint       `gorm:"uniqueIndex;not null" json:"proof_id"`
	VolunteerID      uint       `gorm:"index;not null" json:"volunteer_id"`
	EventID          uint       `gorm:"index;not null" json:"event_id"`
	ArtifactLocator  string     `gorm:"not null" json:"artifact_locator"`
	VerificationCode string     `gorm:"uniqueIndex;size:64;not null" json:"verification_code"`
	IssuedAt         time.Time  `gorm:"not null" json:"issued_at"`
	Volunteer        *Volunteer `gorm:"foreignKey:VolunteerID" json:"-"`
	Event            *Event     `gorm:"foreignKey:EventID" json:"-"`
}

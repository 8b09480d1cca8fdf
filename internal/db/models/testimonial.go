package models

import "time"

// Testimonial lifecycle statuses. A testimonial enters the system as pending
// and is moved exactly once to approved or rejected; neither route returns to
// pending. Soft-delete is terminal from any state.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Testimonial source types accepted on public submission.
const (
	SourceAgencyClient   = "Agency Client"
	SourceSkoolCommunity = "Skool Community Member"
)

// Testimonial represents a user-submitted testimonial record
type Testimonial struct {
	ID              int64      `json:"id" db:"id"`
	FullName        string     `json:"full_name" db:"full_name"`
	Email           string     `json:"email,omitempty" db:"email"`
	TestimonialText string     `json:"testimonial_text" db:"testimonial_text"`
	StarRating      int        `json:"star_rating" db:"star_rating"`
	SourceType      string     `json:"source_type" db:"source_type"`
	Status          string     `json:"status" db:"status"`
	IsFeatured      bool       `json:"is_featured" db:"is_featured"`
	IsVisible       bool       `json:"is_visible" db:"is_visible"`
	IPAddress       *string    `json:"-" db:"ip_address"` // Never serialized
	SubmittedAt     time.Time  `json:"submitted_at" db:"submitted_at"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt       *time.Time `json:"-" db:"deleted_at"`
}

// PublicTestimonial is the reduced projection returned by the public listing
// and widget endpoints. Submitter email and IP stay server-side.
type PublicTestimonial struct {
	ID              int64      `json:"id" db:"id"`
	FullName        string     `json:"full_name" db:"full_name"`
	TestimonialText string     `json:"testimonial_text" db:"testimonial_text"`
	StarRating      int        `json:"star_rating" db:"star_rating"`
	SourceType      string     `json:"source_type" db:"source_type"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	IsFeatured      bool       `json:"is_featured" db:"is_featured"`
}

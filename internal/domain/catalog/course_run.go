package catalog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// CourseRun review/publication statuses. Wire values match the upstream LMS
// contract.
const (
	StatusUnpublished    = "unpublished"
	StatusLegalReview    = "review_by_legal"
	StatusInternalReview = "review_by_internal"
	StatusReviewed       = "reviewed"
	StatusPublished      = "published"
)

const (
	PacingSelf       = "self_paced"
	PacingInstructor = "instructor_paced"
)

// ReviewStatuses are the states where a run sits with a reviewer.
func ReviewStatuses() []string {
	return []string{StatusLegalReview, StatusInternalReview}
}

type CourseRun struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	CourseID uuid.UUID `gorm:"type:uuid;column:course_id;not null;index" json:"course_id"`

	// Key has the form course-v1:org+number+run and is shared by the
	// draft/official pair, like Course.UUID.
	Key   string `gorm:"column:key;not null;index:idx_course_run_key_draft,unique,priority:1" json:"key"`
	Draft bool   `gorm:"column:draft;not null;default:false;index:idx_course_run_key_draft,unique,priority:2" json:"draft"`
	// Set on the official row only; points at the draft row sharing this key.
	DraftVersionID *uuid.UUID `gorm:"type:uuid;column:draft_version_id;index" json:"-"`

	TypeID uuid.UUID      `gorm:"type:uuid;column:type_id;not null;index" json:"type_id"`
	Type   *CourseRunType `gorm:"foreignKey:TypeID;references:ID" json:"type,omitempty"`

	Status     string `gorm:"column:status;not null;default:'unpublished';index" json:"status"`
	PacingType string `gorm:"column:pacing_type;not null;default:'instructor_paced'" json:"pacing_type"`
	Hidden     bool   `gorm:"column:hidden;not null;default:false" json:"hidden"`

	Title string `gorm:"column:title" json:"title,omitempty"`

	Start           *time.Time `gorm:"column:start" json:"start,omitempty"`
	End             *time.Time `gorm:"column:end" json:"end,omitempty"`
	EnrollmentStart *time.Time `gorm:"column:enrollment_start" json:"enrollment_start,omitempty"`
	EnrollmentEnd   *time.Time `gorm:"column:enrollment_end" json:"enrollment_end,omitempty"`

	Language            string         `gorm:"column:language" json:"language,omitempty"`
	TranscriptLanguages datatypes.JSON `gorm:"column:transcript_languages;type:jsonb" json:"transcript_languages,omitempty"`
	// Translation and transcription coverage discovered from the LMS.
	AILanguages datatypes.JSON `gorm:"column:ai_languages;type:jsonb" json:"ai_languages,omitempty"`

	Staff []Person `gorm:"many2many:course_run_staff;" json:"staff,omitempty"`
	Seats []Seat   `gorm:"foreignKey:CourseRunID;references:ID" json:"seats,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (CourseRun) TableName() string { return "course_run" }

// InReview reports whether the run sits in a review queue.
func (r *CourseRun) InReview() bool {
	return r.Status == StatusLegalReview || r.Status == StatusInternalReview
}

// Seat is a priced mode sold at run granularity. Natural key within a run:
// (type, credit_provider, currency).
type Seat struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	CourseRunID uuid.UUID `gorm:"type:uuid;column:course_run_id;not null;index" json:"course_run_id"`

	Type           string  `gorm:"column:type;not null" json:"type"`
	CreditProvider *string `gorm:"column:credit_provider" json:"credit_provider,omitempty"`
	Currency       string  `gorm:"column:currency;not null;default:'USD'" json:"currency"`
	Price          float64 `gorm:"column:price;type:numeric(10,2);not null;default:0" json:"price"`

	UpgradeDeadline *time.Time `gorm:"column:upgrade_deadline" json:"upgrade_deadline,omitempty"`

	Draft          bool       `gorm:"column:draft;not null;default:false" json:"draft"`
	DraftVersionID *uuid.UUID `gorm:"type:uuid;column:draft_version_id;index" json:"-"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Seat) TableName() string { return "seat" }

// SeatNaturalKey identifies a seat within its run for projection matching.
type SeatNaturalKey struct {
	Type           string
	CreditProvider string
	Currency       string
}

// NaturalKey returns the projection matching key for the seat.
func (s *Seat) NaturalKey() SeatNaturalKey {
	k := SeatNaturalKey{Type: s.Type, Currency: s.Currency}
	if s.CreditProvider != nil {
		k.CreditProvider = *s.CreditProvider
	}
	return k
}

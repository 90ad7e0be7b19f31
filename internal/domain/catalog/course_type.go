package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Seat and entitlement mode slugs.
const (
	ModeAudit        = "audit"
	ModeVerified     = "verified"
	ModeProfessional = "professional"
	ModeCredit       = "credit"
)

// Mode is a purchasable track (audit, verified, professional, ...).
type Mode struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	Slug             string `gorm:"column:slug;not null;uniqueIndex" json:"slug"`
	Name             string `gorm:"column:name;not null" json:"name"`
	IsIDVerified     bool   `gorm:"column:is_id_verified;not null;default:false" json:"is_id_verified"`
	IsCreditEligible bool   `gorm:"column:is_credit_eligible;not null;default:false" json:"is_credit_eligible"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Mode) TableName() string { return "mode" }

// CourseType constrains which entitlement modes a course may sell.
type CourseType struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	Name string `gorm:"column:name;not null" json:"name"`
	Slug string `gorm:"column:slug;not null;uniqueIndex" json:"slug"`

	EntitlementModes []Mode `gorm:"many2many:course_type_entitlement_modes;" json:"entitlement_modes,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (CourseType) TableName() string { return "course_type" }

// CourseRunType constrains which seat modes a run may sell.
type CourseRunType struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	CourseTypeID uuid.UUID `gorm:"type:uuid;column:course_type_id;not null;index" json:"course_type_id"`
	Name         string    `gorm:"column:name;not null" json:"name"`
	Slug         string    `gorm:"column:slug;not null;uniqueIndex" json:"slug"`

	Modes []Mode `gorm:"many2many:course_run_type_modes;" json:"modes,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (CourseRunType) TableName() string { return "course_run_type" }

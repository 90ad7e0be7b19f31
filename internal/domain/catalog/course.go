package catalog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Course exists as up to two rows per business UUID: one draft (editor
// working copy) and one official (what public APIs and search expose). The
// pair is linked by the official row's DraftVersionID.
type Course struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	UUID  uuid.UUID `gorm:"type:uuid;column:uuid;not null;index:idx_course_uuid_draft,unique,priority:1" json:"uuid"`
	Draft bool      `gorm:"column:draft;not null;default:false;index:idx_course_uuid_draft,unique,priority:2" json:"draft"`
	// Set on the official row only; points at the draft row sharing this UUID.
	DraftVersionID *uuid.UUID `gorm:"type:uuid;column:draft_version_id;index" json:"-"`

	PartnerID uuid.UUID   `gorm:"type:uuid;column:partner_id;not null;index" json:"partner_id"`
	TypeID    uuid.UUID   `gorm:"type:uuid;column:type_id;not null;index" json:"type_id"`
	Type      *CourseType `gorm:"foreignKey:TypeID;references:ID" json:"type,omitempty"`

	Key    string `gorm:"column:key;not null;index" json:"key"`
	Number string `gorm:"column:number;not null" json:"number"`
	Title  string `gorm:"column:title;not null" json:"title"`

	ShortDescription string `gorm:"column:short_description;type:text" json:"short_description,omitempty"`
	FullDescription  string `gorm:"column:full_description;type:text" json:"full_description,omitempty"`
	Level            string `gorm:"column:level" json:"level,omitempty"`

	// Safelisted (non-review-sensitive) presentation fields.
	Image      string         `gorm:"column:image" json:"image,omitempty"`
	VideoSrc   string         `gorm:"column:video_src" json:"video_src,omitempty"`
	SocialURLs datatypes.JSON `gorm:"column:social_urls;type:jsonb" json:"social_urls,omitempty"`
	Tags       datatypes.JSON `gorm:"column:tags;type:jsonb" json:"tags,omitempty"`

	CanonicalCourseRunID *uuid.UUID `gorm:"type:uuid;column:canonical_course_run_id" json:"canonical_course_run_id,omitempty"`

	AuthoringOrganizations []Organization `gorm:"many2many:course_authoring_organizations;" json:"authoring_organizations,omitempty"`
	Subjects               []Subject      `gorm:"many2many:course_subjects;" json:"subjects,omitempty"`
	Topics                 []Topic        `gorm:"many2many:course_topics;" json:"topics,omitempty"`

	CourseRuns     []CourseRun         `gorm:"foreignKey:CourseID;references:ID" json:"course_runs,omitempty"`
	Entitlements   []CourseEntitlement `gorm:"foreignKey:CourseID;references:ID" json:"entitlements,omitempty"`
	URLSlugHistory []CourseURLSlug     `gorm:"foreignKey:CourseID;references:ID" json:"url_slug_history,omitempty"`
	URLRedirects   []CourseURLRedirect `gorm:"foreignKey:CourseID;references:ID" json:"url_redirects,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Course) TableName() string { return "course" }

// ActiveURLSlug returns the active slug-history row, or nil.
func (c *Course) ActiveURLSlug() *CourseURLSlug {
	for i := range c.URLSlugHistory {
		if c.URLSlugHistory[i].IsActive {
			return &c.URLSlugHistory[i]
		}
	}
	return nil
}

// CourseEntitlement is a priced mode sold at course granularity; at most one
// per mode per course.
type CourseEntitlement struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	CourseID uuid.UUID `gorm:"type:uuid;column:course_id;not null;index;index:idx_entitlement_course_mode,unique,priority:1" json:"course_id"`
	Mode     string    `gorm:"column:mode;not null;index:idx_entitlement_course_mode,unique,priority:2" json:"mode"`

	Price    float64 `gorm:"column:price;type:numeric(10,2);not null;default:0" json:"price"`
	Currency string  `gorm:"column:currency;not null;default:'USD'" json:"currency"`

	Draft          bool       `gorm:"column:draft;not null;default:false" json:"draft"`
	DraftVersionID *uuid.UUID `gorm:"type:uuid;column:draft_version_id;index" json:"-"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (CourseEntitlement) TableName() string { return "course_entitlement" }

// CourseURLSlug is one row of a course's slug history. Exactly one row per
// course is active; rows that were ever published are never deleted.
type CourseURLSlug struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	CourseID  uuid.UUID `gorm:"type:uuid;column:course_id;not null;index" json:"course_id"`
	PartnerID uuid.UUID `gorm:"type:uuid;column:partner_id;not null;index" json:"partner_id"`

	URLSlug  string `gorm:"column:url_slug;not null;index" json:"url_slug"`
	IsActive bool   `gorm:"column:is_active;not null;default:false" json:"is_active"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (CourseURLSlug) TableName() string { return "course_url_slug" }

// CourseURLRedirect is a legacy path that should redirect to the course.
type CourseURLRedirect struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	CourseID  uuid.UUID `gorm:"type:uuid;column:course_id;not null;index" json:"course_id"`
	PartnerID uuid.UUID `gorm:"type:uuid;column:partner_id;not null;index" json:"partner_id"`
	Value     string    `gorm:"column:value;not null" json:"value"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (CourseURLRedirect) TableName() string { return "course_url_redirect" }

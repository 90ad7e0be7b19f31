package catalog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ProgramStatusUnpublished = "unpublished"
	ProgramStatusActive      = "active"
	ProgramStatusRetired     = "retired"
	ProgramStatusDeleted     = "deleted"
)

// Program bundles courses under curricula. In this service it is a read-side
// consumer of Course state and a first-class search document.
type Program struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	UUID      uuid.UUID `gorm:"type:uuid;column:uuid;not null;uniqueIndex" json:"uuid"`
	PartnerID uuid.UUID `gorm:"type:uuid;column:partner_id;not null;index" json:"partner_id"`

	Title    string `gorm:"column:title;not null" json:"title"`
	Subtitle string `gorm:"column:subtitle" json:"subtitle,omitempty"`
	Status   string `gorm:"column:status;not null;default:'unpublished';index" json:"status"`
	Type     string `gorm:"column:type;index" json:"type,omitempty"`

	Courses []Course `gorm:"many2many:program_courses;" json:"courses,omitempty"`

	AuthoringOrganizations []Organization `gorm:"many2many:program_authoring_organizations;" json:"authoring_organizations,omitempty"`

	Curricula datatypes.JSON `gorm:"column:curricula;type:jsonb" json:"curricula,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Program) TableName() string { return "program" }

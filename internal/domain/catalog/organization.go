package catalog

import (
	"time"

	"github.com/google/uuid"
)

type Organization struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	UUID      uuid.UUID `gorm:"type:uuid;column:uuid;not null;uniqueIndex" json:"uuid"`
	PartnerID uuid.UUID `gorm:"type:uuid;column:partner_id;not null;index;index:idx_org_partner_key,unique,priority:1" json:"partner_id"`

	Key         string `gorm:"column:key;not null;index:idx_org_partner_key,unique,priority:2" json:"key"`
	Name        string `gorm:"column:name" json:"name"`
	Description string `gorm:"column:description;type:text" json:"description,omitempty"`
	LogoImage   string `gorm:"column:logo_image" json:"logo_image,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Organization) TableName() string { return "organization" }

type Person struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	UUID      uuid.UUID `gorm:"type:uuid;column:uuid;not null;uniqueIndex" json:"uuid"`
	PartnerID uuid.UUID `gorm:"type:uuid;column:partner_id;not null;index" json:"partner_id"`

	GivenName  string `gorm:"column:given_name;not null" json:"given_name"`
	FamilyName string `gorm:"column:family_name" json:"family_name,omitempty"`
	Slug       string `gorm:"column:slug;index" json:"slug,omitempty"`
	Bio        string `gorm:"column:bio;type:text" json:"bio,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Person) TableName() string { return "person" }

type Subject struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	PartnerID uuid.UUID `gorm:"type:uuid;column:partner_id;not null;index;index:idx_subject_partner_slug,unique,priority:1" json:"partner_id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	Slug      string    `gorm:"column:slug;not null;index:idx_subject_partner_slug,unique,priority:2" json:"slug"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Subject) TableName() string { return "subject" }

type Topic struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	PartnerID uuid.UUID `gorm:"type:uuid;column:partner_id;not null;index;index:idx_topic_partner_slug,unique,priority:1" json:"partner_id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	Slug      string    `gorm:"column:slug;not null;index:idx_topic_partner_slug,unique,priority:2" json:"slug"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Topic) TableName() string { return "topic" }

// Source identifies the upstream producer a record was ingested from.
type Source struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	Name string `gorm:"column:name;not null" json:"name"`
	Slug string `gorm:"column:slug;not null;uniqueIndex" json:"slug"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Source) TableName() string { return "source" }

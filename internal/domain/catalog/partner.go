package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Partner is the tenant boundary: every catalog entity, slug namespace and
// external-system credential hangs off a partner.
type Partner struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	Name      string `gorm:"column:name;not null" json:"name"`
	ShortCode string `gorm:"column:short_code;not null;uniqueIndex" json:"short_code"`

	StudioURL         string `gorm:"column:studio_url" json:"studio_url,omitempty"`
	CommerceAPIURL    string `gorm:"column:commerce_api_url" json:"commerce_api_url,omitempty"`
	LMSAPIURL         string `gorm:"column:lms_api_url" json:"lms_api_url,omitempty"`
	OAuthTokenURL     string `gorm:"column:oauth_token_url" json:"-"`
	OAuthClientID     string `gorm:"column:oauth_client_id" json:"-"`
	OAuthClientSecret string `gorm:"column:oauth_client_secret" json:"-"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Partner) TableName() string { return "partner" }

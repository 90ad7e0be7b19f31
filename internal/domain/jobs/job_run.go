package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

const (
	KindReindexCourse = "reindex_course"
	KindBulkSync      = "bulk_sync"
)

// JobRun is one unit of background work. Each run is scoped to a single
// partner and runs to completion without checkpointing.
type JobRun struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	Kind      string         `gorm:"column:kind;not null;index" json:"kind"`
	PartnerID uuid.UUID      `gorm:"type:uuid;column:partner_id;not null;index" json:"partner_id"`
	Status    string         `gorm:"column:status;not null;default:'queued';index" json:"status"`
	Payload   datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload,omitempty"`

	Attempts  int        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	RunAt     time.Time  `gorm:"column:run_at;not null;default:now();index" json:"run_at"`
	StartedAt *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	EndedAt   *time.Time `gorm:"column:ended_at" json:"ended_at,omitempty"`
	LastError string     `gorm:"column:last_error;type:text" json:"last_error,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (JobRun) TableName() string { return "job_run" }

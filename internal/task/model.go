package task

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

const (
	PriorityHigh   = "HIGH"
	PriorityMedium = "MEDIUM"
	PriorityLow    = "LOW"
)

// NormalizePriority clamps model or client output to the three allowed levels.
func NormalizePriority(p string) string {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p
	default:
		return PriorityMedium
	}
}

// Task is an actionable work item extracted from an email or created by hand.
// Never hard-deleted; IsDeleted hides it from listings. NotificationSent only
// ever flips false to true.
type Task struct {
	ID     uint64 `gorm:"primaryKey"`
	UserID uint64 `gorm:"index;not null"`

	Subject     string `gorm:"type:text;not null"`
	Description string `gorm:"type:text;not null;default:''"`
	Priority    string `gorm:"type:text;not null;default:'MEDIUM'"`

	DueDate *time.Time `gorm:"type:timestamptz"`

	// Source email metadata. EmailID is nil for manual tasks.
	EmailID     *string    `gorm:"type:text"`
	FromAddress string     `gorm:"type:text;not null;default:''"`
	Snippet     string     `gorm:"type:text;not null;default:''"`
	ReceivedAt  *time.Time `gorm:"type:timestamptz"`

	IsRead      bool       `gorm:"not null;default:false"`
	IsCompleted bool       `gorm:"not null;default:false"`
	CompletedAt *time.Time `gorm:"type:timestamptz"`

	NotificationSent bool `gorm:"not null;default:false"`

	// Dispatch bookkeeping: claimed rows carry a short lease so concurrent
	// scheduler instances never pick them up; repeated transient failures
	// park the row.
	NotifyAttempts int        `gorm:"not null;default:0"`
	NextAttemptAt  *time.Time `gorm:"type:timestamptz"`
	ClaimedBy      *string    `gorm:"type:text"`
	DeadLettered   bool       `gorm:"not null;default:false"`

	IsDeleted bool `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

// Insight is an append-only AI-derived summary artifact.
type Insight struct {
	ID     uint64 `gorm:"primaryKey"`
	UserID uint64 `gorm:"index;not null"`

	Type     string         `gorm:"type:text;not null"`
	Message  string         `gorm:"type:text;not null"`
	Metadata datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'::jsonb"`

	// Subjects of the emails the insight was derived from.
	Sources pq.StringArray `gorm:"type:text[];not null;default:'{}'"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

// Claimed is a task selected for dispatch together with the owner's token.
type Claimed struct {
	Task
	PushToken string
}

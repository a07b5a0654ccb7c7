package subscription

import "time"

// Subscription is the authoritative paid-access row, written by the payment
// provider webhook (out of scope here). Zero-or-one active row per user is the
// steady state; readers must tolerate zero.
type Subscription struct {
	ID     uint64 `gorm:"primaryKey"`
	UserID uint64 `gorm:"index;not null"`

	Status string `gorm:"type:text;not null"` // active/trialing/past_due/canceled
	PlanID string `gorm:"type:text;not null;default:''"`

	// nil means unbounded (lifetime or unknown period).
	CurrentPeriodEnd *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

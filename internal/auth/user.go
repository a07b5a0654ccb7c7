package auth

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID           uint64    `gorm:"primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;default:now()"`

	// Device / delivery. NotificationsEnabled is tri-state: nil means enabled.
	PushToken            *string `gorm:"type:text"`
	NotificationsEnabled *bool

	// Legacy subscription fallback, superseded by the subscriptions table.
	SubscriptionEndDate *time.Time `gorm:"type:timestamptz"`
	SubscriptionPlan    string     `gorm:"type:text;not null;default:''"`

	// Mailbox credential and ingestion throttle checkpoint.
	GoogleAccessToken *string    `gorm:"type:text"`
	LastEmailFetch    *time.Time `gorm:"type:timestamptz"`

	LastExpiryNoticeAt *time.Time `gorm:"type:timestamptz"`
}

type Users struct {
	DB *gorm.DB
}

func (s *Users) GetByID(ctx context.Context, id uint64) (*User, error) {
	var u User
	if err := s.DB.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Users) SetLastEmailFetch(ctx context.Context, id uint64, at time.Time) error {
	return s.DB.WithContext(ctx).Model(&User{}).
		Where("id = ?", id).
		Update("last_email_fetch", at).Error
}

func (s *Users) SetLastExpiryNotice(ctx context.Context, id uint64, at time.Time) error {
	return s.DB.WithContext(ctx).Model(&User{}).
		Where("id = ?", id).
		Update("last_expiry_notice_at", at).Error
}

func (s *Users) SetDevice(ctx context.Context, id uint64, pushToken *string, notificationsEnabled *bool) error {
	updates := map[string]any{}
	if pushToken != nil {
		updates["push_token"] = *pushToken
	}
	if notificationsEnabled != nil {
		updates["notifications_enabled"] = *notificationsEnabled
	}
	if len(updates) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(updates).Error
}

func (s *Users) SetGoogleToken(ctx context.Context, id uint64, token string) error {
	return s.DB.WithContext(ctx).Model(&User{}).
		Where("id = ?", id).
		Update("google_access_token", token).Error
}

// ClearPushToken removes a dead token wherever it is stored, so the next
// scheduler run skips the device until it re-registers.
func (s *Users) ClearPushToken(ctx context.Context, token string) error {
	return s.DB.WithContext(ctx).Model(&User{}).
		Where("push_token = ?", token).
		Update("push_token", nil).Error
}

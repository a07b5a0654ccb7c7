package subscription

import (
	"context"
	"errors"
	"log"
	"time"

	"pulse/internal/auth"

	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

// noticeInterval throttles advisory expiry notices per user.
const noticeInterval = 24 * time.Hour

// Notifier delivers advisory subscription notices. The default implementation
// only logs; a mail sender can be plugged in without touching the service.
type Notifier func(user *auth.User, subject, body string)

type Service struct {
	DB     *gorm.DB
	Notify Notifier
}

// Status evaluates the user's current paid-access state.
func (s *Service) Status(ctx context.Context, userID uint64) (Access, error) {
	var user auth.User
	if err := s.DB.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Access{}, ErrUserNotFound
		}
		return Access{}, err
	}

	var sub Subscription
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND status = 'active' AND (current_period_end > now() OR current_period_end IS NULL)", userID).
		Limit(1).
		First(&sub).Error
	switch {
	case err == nil:
		return Evaluate(time.Now(), &user, &sub), nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Evaluate(time.Now(), &user, nil), nil
	default:
		return Access{}, err
	}
}

// CheckAndSendExpiryNotices sends at most one advisory notice per 24h when the
// user's trial ends tomorrow, their access has expired, or a paid period
// renews within a week. Safe to fire and forget.
func (s *Service) CheckAndSendExpiryNotices(ctx context.Context, userID uint64) error {
	access, err := s.Status(ctx, userID)
	if err != nil {
		return err
	}

	var user auth.User
	if err := s.DB.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return err
	}
	if user.Email == "" {
		return nil
	}

	now := time.Now()
	if user.LastExpiryNoticeAt != nil && now.Sub(*user.LastExpiryNoticeAt) < noticeInterval {
		return nil
	}

	var subject, body string
	switch {
	case access.Status == StatusTrial && access.DaysLeft == 1:
		subject = "Your Free Trial Ends Tomorrow!"
		body = "Upgrade now to keep using AI features."
	case access.Status == StatusExpired:
		subject = "Your Free Trial Has Expired"
		body = "Upgrade now to restore AI features."
	case access.Status == StatusPaid && access.DaysLeft == 7:
		subject = "Your Subscription Renews Soon"
		body = "Review your plan settings."
	default:
		return nil
	}

	notify := s.Notify
	if notify == nil {
		notify = func(u *auth.User, subject, _ string) {
			log.Printf("[subscription] notice %q -> %s", subject, u.Email)
		}
	}
	notify(&user, subject, body)

	return s.DB.WithContext(ctx).Model(&auth.User{}).
		Where("id = ?", userID).
		Update("last_expiry_notice_at", now).Error
}

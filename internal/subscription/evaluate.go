package subscription

import (
	"math"
	"time"

	"pulse/internal/auth"
)

type Status string

const (
	StatusTrial   Status = "TRIAL"
	StatusPaid    Status = "PAID"
	StatusExpired Status = "EXPIRED"
)

const trialDays = 7

// defaultPaidDays is reported when an active subscription has no period end.
const defaultPaidDays = 30

type Access struct {
	Status     Status     `json:"status"`
	DaysLeft   int        `json:"days_left"`
	PlanName   string     `json:"plan_name,omitempty"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
}

// Evaluate computes paid-access state from the user row and the optional
// active subscription row. Precedence: active subscription, then the legacy
// end date on the user, then the trial window anchored at account creation.
// Pure; no I/O.
func Evaluate(now time.Time, user *auth.User, sub *Subscription) Access {
	if sub != nil && sub.Status == "active" &&
		(sub.CurrentPeriodEnd == nil || sub.CurrentPeriodEnd.After(now)) {
		daysLeft := defaultPaidDays
		if sub.CurrentPeriodEnd != nil {
			daysLeft = ceilDays(sub.CurrentPeriodEnd.Sub(now))
		}
		return Access{
			Status:     StatusPaid,
			DaysLeft:   daysLeft,
			PlanName:   sub.PlanID,
			ExpiryDate: sub.CurrentPeriodEnd,
		}
	}

	if user.SubscriptionEndDate != nil && user.SubscriptionEndDate.After(now) {
		return Access{
			Status:     StatusPaid,
			DaysLeft:   ceilDays(user.SubscriptionEndDate.Sub(now)),
			PlanName:   user.SubscriptionPlan,
			ExpiryDate: user.SubscriptionEndDate,
		}
	}

	age := now.Sub(user.CreatedAt)
	if age < 0 {
		age = -age
	}
	diffDays := ceilDays(age)
	if diffDays <= trialDays {
		expiry := user.CreatedAt.Add(trialDays * 24 * time.Hour)
		return Access{
			Status:     StatusTrial,
			DaysLeft:   trialDays - diffDays + 1, // day 0 counts as the first day
			ExpiryDate: &expiry,
		}
	}

	return Access{Status: StatusExpired, DaysLeft: 0}
}

func ceilDays(d time.Duration) int {
	return int(math.Ceil(d.Hours() / 24))
}

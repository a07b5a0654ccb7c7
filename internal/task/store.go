package task

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("task not found")
	// ErrDuplicate means a work item for the same (user, source email) already
	// exists; extraction runs treat it as a no-op.
	ErrDuplicate = errors.New("duplicate task")
)

// claimLease is how long a claimed row stays invisible to other scheduler
// instances before it becomes eligible again.
const claimLease = 10 * time.Minute

type Store struct {
	DB *gorm.DB
}

func (s *Store) Create(ctx context.Context, t *Task) error {
	t.Priority = NormalizePriority(t.Priority)
	if err := s.DB.WithContext(ctx).Create(t).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// CreateManual stores a user-entered task; the title doubles as description.
func (s *Store) CreateManual(ctx context.Context, userID uint64, title, priority string, dueDate *time.Time) (*Task, error) {
	now := time.Now()
	t := Task{
		UserID:      userID,
		Subject:     title,
		Description: title,
		Priority:    NormalizePriority(priority),
		DueDate:     dueDate,
		FromAddress: "Self",
		Snippet:     "Manual Task",
		ReceivedAt:  &now,
	}
	if err := s.DB.WithContext(ctx).Create(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

type ListFilters struct {
	Priority *string
	IsRead   *bool
	Manual   *bool
}

// List returns the user's visible tasks ordered by priority rank, then recency.
func (s *Store) List(ctx context.Context, userID uint64, limit int, f ListFilters) ([]Task, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}

	q := s.DB.WithContext(ctx).Model(&Task{}).
		Where("user_id = ? AND is_deleted = false", userID)

	if f.Priority != nil {
		q = q.Where("priority = ?", NormalizePriority(*f.Priority))
	}
	if f.IsRead != nil {
		q = q.Where("is_read = ?", *f.IsRead)
	}
	if f.Manual != nil {
		if *f.Manual {
			q = q.Where("email_id IS NULL")
		} else {
			q = q.Where("email_id IS NOT NULL")
		}
	}

	var rows []Task
	err := q.Order(`
		CASE priority
			WHEN 'HIGH' THEN 1
			WHEN 'MEDIUM' THEN 2
			ELSE 3
		END, created_at DESC`).
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// DueToday returns uncompleted tasks due today or overdue.
func (s *Store) DueToday(ctx context.Context, userID uint64) ([]Task, error) {
	var rows []Task
	err := s.DB.WithContext(ctx).
		Where(`user_id = ? AND is_deleted = false AND is_completed = false
			AND due_date IS NOT NULL AND due_date::date <= CURRENT_DATE`, userID).
		Order(`CASE priority WHEN 'HIGH' THEN 1 WHEN 'MEDIUM' THEN 2 ELSE 3 END`).
		Find(&rows).Error
	return rows, err
}

type StatusUpdate struct {
	IsRead      *bool
	IsCompleted *bool
}

// UpdateStatus flips read/completed flags. CompletedAt tracks IsCompleted:
// set when it becomes true, cleared when it becomes false.
func (s *Store) UpdateStatus(ctx context.Context, taskID, userID uint64, u StatusUpdate) (*Task, error) {
	updates := map[string]any{}
	if u.IsRead != nil {
		updates["is_read"] = *u.IsRead
	}
	if u.IsCompleted != nil {
		updates["is_completed"] = *u.IsCompleted
		if *u.IsCompleted {
			updates["completed_at"] = time.Now()
		} else {
			updates["completed_at"] = nil
		}
	}
	if len(updates) == 0 {
		return nil, ErrNotFound
	}
	updates["updated_at"] = time.Now()

	res := s.DB.WithContext(ctx).Model(&Task{}).
		Where("id = ? AND user_id = ? AND is_deleted = false", taskID, userID).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	var t Task
	if err := s.DB.WithContext(ctx).First(&t, "id = ?", taskID).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) SoftDelete(ctx context.Context, userID uint64, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.DB.WithContext(ctx).Model(&Task{}).
		Where("user_id = ? AND id IN ?", userID, ids).
		Updates(map[string]any{"is_deleted": true, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

func (s *Store) CreateInsight(ctx context.Context, in *Insight) error {
	return s.DB.WithContext(ctx).Create(in).Error
}

func (s *Store) ListInsights(ctx context.Context, userID uint64, limit int) ([]Insight, error) {
	if limit <= 0 || limit > 50 {
		limit = 5
	}
	var rows []Insight
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ClaimUnsent atomically claims up to limit dispatchable work items using
// FOR UPDATE SKIP LOCKED, so concurrent scheduler instances never double-send.
// The owner's push token is captured inside the claim statement; a token
// cleared afterwards cannot leave a claimed row without one. Claimed rows get
// a short lease; MarkSent, ReleaseClaim or RetryLater must follow, otherwise
// the lease expiry makes them eligible again.
func (s *Store) ClaimUnsent(ctx context.Context, workerID string, limit int) ([]Claimed, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []Claimed
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Raw(`
with cte as (
  select t.id, u.push_token
  from tasks t
  join users u on u.id = t.user_id
  where t.notification_sent = false
    and t.dead_lettered = false
    and t.is_deleted = false
    and (t.next_attempt_at is null or t.next_attempt_at <= now())
    and u.push_token is not null and u.push_token <> ''
    and (u.notifications_enabled is null or u.notifications_enabled = true)
  order by t.created_at asc
  for update of t skip locked
  limit ?
)
update tasks
set next_attempt_at = now() + make_interval(secs => ?),
    claimed_by = ?,
    updated_at = now()
from cte
where tasks.id = cte.id
returning tasks.*, cte.push_token;
`, limit, claimLease.Seconds(), workerID).Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkSent flips notification_sent for a whole user group in one statement.
// The predicate keeps the transition monotonic: already-sent rows are untouched.
func (s *Store) MarkSent(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Exec(`
update tasks
set notification_sent = true,
    next_attempt_at = null,
    claimed_by = null,
    updated_at = now()
where id in ? and notification_sent = false
`, ids).Error
}

// ReleaseClaim returns rows to the pool without counting an attempt, used when
// the owner's token turned out to be dead.
func (s *Store) ReleaseClaim(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Exec(`
update tasks
set next_attempt_at = null,
    claimed_by = null,
    updated_at = now()
where id in ? and notification_sent = false
`, ids).Error
}

// RetryLater reschedules a failed group and dead-letters rows that exhausted
// their attempts.
func (s *Store) RetryLater(ctx context.Context, ids []uint64, delay time.Duration, maxAttempts int) error {
	if len(ids) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Exec(`
update tasks
set notify_attempts = notify_attempts + 1,
    next_attempt_at = now() + make_interval(secs => ?),
    claimed_by = null,
    dead_lettered = notify_attempts + 1 >= ?,
    updated_at = now()
where id in ? and notification_sent = false
`, delay.Seconds(), maxAttempts, ids).Error
}

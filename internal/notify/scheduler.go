package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"pulse/internal/ai"
	"pulse/internal/push"
	"pulse/internal/task"
)

type ClaimStore interface {
	ClaimUnsent(ctx context.Context, workerID string, limit int) ([]task.Claimed, error)
	MarkSent(ctx context.Context, ids []uint64) error
	ReleaseClaim(ctx context.Context, ids []uint64) error
	RetryLater(ctx context.Context, ids []uint64, delay time.Duration, maxAttempts int) error
}

type TokenStore interface {
	ClearPushToken(ctx context.Context, token string) error
}

type Sender interface {
	Send(ctx context.Context, token string, n push.Notification, data map[string]string) error
}

type CopyWriter interface {
	GenerateNotification(ctx context.Context, tasks []ai.TaskBrief) (*ai.Copy, error)
}

// Scheduler turns unsent work items into push notifications on a fixed
// wall-clock schedule. One message per user per run; the unit of atomicity is
// the per-user group.
type Scheduler struct {
	ID    string
	Tasks ClaimStore
	Users TokenStore
	Push  Sender
	Copy  CopyWriter

	Hours       []int // hours of day (0-23) a run fires at
	BatchSize   int
	MaxAttempts int

	startOnce sync.Once
}

// Start launches the schedule loop. Idempotent: extra calls are no-ops.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.loop(ctx)
	})
}

func (s *Scheduler) loop(ctx context.Context) {
	log.Printf("notify: scheduler %s started (hours=%v)", s.ID, s.Hours)
	for {
		next := nextRun(time.Now(), s.Hours)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.Run(ctx)
		}
	}
}

// nextRun picks the next scheduled wall-clock instant strictly after now.
func nextRun(now time.Time, hours []int) time.Time {
	if len(hours) == 0 {
		hours = []int{2, 8, 14, 20}
	}
	sorted := append([]int(nil), hours...)
	sort.Ints(sorted)

	for _, h := range sorted {
		candidate := time.Date(now.Year(), now.Month(), now.Day(), h, 0, 0, 0, now.Location())
		if candidate.After(now) {
			return candidate
		}
	}
	// All of today's slots passed; first slot tomorrow.
	return time.Date(now.Year(), now.Month(), now.Day(), sorted[0], 0, 0, 0, now.Location()).Add(24 * time.Hour)
}

// Run processes one batch. Groups are independent: a failure in one user's
// dispatch never affects another's.
func (s *Scheduler) Run(ctx context.Context) {
	batch := s.BatchSize
	if batch <= 0 {
		batch = 100
	}

	claimed, err := s.Tasks.ClaimUnsent(ctx, s.ID, batch)
	if err != nil {
		log.Printf("notify: claim failed: %v", err)
		return
	}
	if len(claimed) == 0 {
		return
	}
	log.Printf("notify: claimed %d tasks", len(claimed))

	for _, g := range groupByUser(claimed) {
		s.dispatch(ctx, g)
	}
}

type group struct {
	userID uint64
	token  string
	tasks  []task.Claimed
}

// groupByUser buckets the batch per user, preserving claim order within and
// across groups.
func groupByUser(claimed []task.Claimed) []group {
	index := map[uint64]int{}
	var out []group
	for _, c := range claimed {
		i, ok := index[c.UserID]
		if !ok {
			i = len(out)
			index[c.UserID] = i
			out = append(out, group{userID: c.UserID, token: c.PushToken})
		}
		out[i].tasks = append(out[i].tasks, c)
	}
	return out
}

func (s *Scheduler) dispatch(ctx context.Context, g group) {
	ids := make([]uint64, 0, len(g.tasks))
	attempts := 0
	for _, t := range g.tasks {
		ids = append(ids, t.ID)
		if t.NotifyAttempts > attempts {
			attempts = t.NotifyAttempts
		}
	}

	n := s.composeCopy(ctx, g)
	data := map[string]string{
		"type":       "EMAIL_TASK",
		"task_count": fmt.Sprintf("%d", len(g.tasks)),
	}

	err := s.Push.Send(ctx, g.token, n, data)
	switch {
	case err == nil:
		if err := s.Tasks.MarkSent(ctx, ids); err != nil {
			log.Printf("notify: mark sent failed for user %d: %v", g.userID, err)
		}
	case errors.Is(err, push.ErrTokenNotRegistered):
		// Self-healing: drop the dead token so future runs skip this user
		// until the device re-registers. The items stay unsent.
		log.Printf("notify: dead token for user %d, clearing", g.userID)
		if err := s.Users.ClearPushToken(ctx, g.token); err != nil {
			log.Printf("notify: token clear failed for user %d: %v", g.userID, err)
		}
		if err := s.Tasks.ReleaseClaim(ctx, ids); err != nil {
			log.Printf("notify: release failed for user %d: %v", g.userID, err)
		}
	default:
		log.Printf("notify: dispatch failed for user %d: %v", g.userID, err)
		if err := s.Tasks.RetryLater(ctx, ids, backoff(attempts+1), s.maxAttempts()); err != nil {
			log.Printf("notify: retry schedule failed for user %d: %v", g.userID, err)
		}
	}
}

// composeCopy asks the AI copywriter for personalized title/body and falls
// back to generic copy on any failure.
func (s *Scheduler) composeCopy(ctx context.Context, g group) push.Notification {
	briefs := make([]ai.TaskBrief, 0, len(g.tasks))
	for _, t := range g.tasks {
		briefs = append(briefs, ai.TaskBrief{
			Subject:  t.Subject,
			Priority: t.Priority,
			DueDate:  t.DueDate,
		})
	}

	if s.Copy != nil {
		if c, err := s.Copy.GenerateNotification(ctx, briefs); err == nil {
			return push.Notification{Title: c.Title, Body: c.Body}
		} else {
			log.Printf("notify: copy generation failed for user %d: %v", g.userID, err)
		}
	}

	return fallbackCopy(g.tasks)
}

func fallbackCopy(tasks []task.Claimed) push.Notification {
	top := tasks[0]
	for _, t := range tasks {
		if t.Priority == task.PriorityHigh {
			top = t
			break
		}
	}

	emoji := "⚠️"
	if top.Priority == task.PriorityHigh {
		emoji = "🔥"
	}

	body := top.Subject
	if len(tasks) > 1 {
		body = fmt.Sprintf("%s and %d more pending tasks", top.Subject, len(tasks)-1)
	}

	return push.Notification{
		Title: fmt.Sprintf("%s %s Priority Task", emoji, top.Priority),
		Body:  body,
	}
}

func (s *Scheduler) maxAttempts() int {
	if s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return 8
}

// backoff grows exponentially per attempt, capped at six hours.
func backoff(attempts int) time.Duration {
	sec := math.Min(math.Pow(2, float64(attempts))*60, 21600)
	return time.Duration(sec) * time.Second
}

package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"pulse/internal/ai"
	"pulse/internal/push"
	"pulse/internal/task"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClaims struct {
	claimed  []task.Claimed
	sent     [][]uint64
	released [][]uint64
	retried  [][]uint64
}

func (f *fakeClaims) ClaimUnsent(ctx context.Context, workerID string, limit int) ([]task.Claimed, error) {
	return f.claimed, nil
}

func (f *fakeClaims) MarkSent(ctx context.Context, ids []uint64) error {
	f.sent = append(f.sent, ids)
	return nil
}

func (f *fakeClaims) ReleaseClaim(ctx context.Context, ids []uint64) error {
	f.released = append(f.released, ids)
	return nil
}

func (f *fakeClaims) RetryLater(ctx context.Context, ids []uint64, delay time.Duration, maxAttempts int) error {
	f.retried = append(f.retried, ids)
	return nil
}

type fakeTokens struct {
	cleared []string
}

func (f *fakeTokens) ClearPushToken(ctx context.Context, token string) error {
	f.cleared = append(f.cleared, token)
	return nil
}

type sentMsg struct {
	token string
	n     push.Notification
	data  map[string]string
}

type fakeSender struct {
	failFor map[string]error // token -> error
	sent    []sentMsg
}

func (f *fakeSender) Send(ctx context.Context, token string, n push.Notification, data map[string]string) error {
	if err, ok := f.failFor[token]; ok {
		return err
	}
	f.sent = append(f.sent, sentMsg{token: token, n: n, data: data})
	return nil
}

type fakeCopy struct {
	copy *ai.Copy
	err  error
}

func (f *fakeCopy) GenerateNotification(ctx context.Context, tasks []ai.TaskBrief) (*ai.Copy, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.copy, nil
}

func claimed(id, userID uint64, token, subject, priority string) task.Claimed {
	return task.Claimed{
		Task:      task.Task{ID: id, UserID: userID, Subject: subject, Priority: priority},
		PushToken: token,
	}
}

func TestRunPerUserGroupAtomicity(t *testing.T) {
	// 3 items for user A, 2 for user B; B's dispatch fails.
	claims := &fakeClaims{claimed: []task.Claimed{
		claimed(1, 10, "tok-a", "Report", task.PriorityHigh),
		claimed(2, 10, "tok-a", "Review", task.PriorityMedium),
		claimed(3, 10, "tok-a", "Reply", task.PriorityLow),
		claimed(4, 20, "tok-b", "Invoice", task.PriorityHigh),
		claimed(5, 20, "tok-b", "Meeting", task.PriorityLow),
	}}
	sender := &fakeSender{failFor: map[string]error{"tok-b": errors.New("fcm 5xx")}}
	tokens := &fakeTokens{}

	s := &Scheduler{ID: "w1", Tasks: claims, Users: tokens, Push: sender,
		Copy: &fakeCopy{copy: &ai.Copy{Title: "Tasks!", Body: "Report is HIGH priority"}}}
	s.Run(context.Background())

	require.Len(t, claims.sent, 1)
	assert.Equal(t, []uint64{1, 2, 3}, claims.sent[0], "exactly A's group marked sent")

	require.Len(t, claims.retried, 1)
	assert.Equal(t, []uint64{4, 5}, claims.retried[0], "B's group scheduled for retry")
	assert.Empty(t, tokens.cleared)
}

func TestRunTokenInvalidatedClearsTokenLeavesUnsent(t *testing.T) {
	claims := &fakeClaims{claimed: []task.Claimed{
		claimed(1, 10, "dead-token", "Report", task.PriorityHigh),
	}}
	sender := &fakeSender{failFor: map[string]error{"dead-token": push.ErrTokenNotRegistered}}
	tokens := &fakeTokens{}

	s := &Scheduler{ID: "w1", Tasks: claims, Users: tokens, Push: sender,
		Copy: &fakeCopy{err: errors.New("no ai")}}
	s.Run(context.Background())

	assert.Equal(t, []string{"dead-token"}, tokens.cleared)
	assert.Empty(t, claims.sent, "items stay unsent")
	assert.Empty(t, claims.retried, "a dead token is not a transient failure")
	require.Len(t, claims.released, 1)
	assert.Equal(t, []uint64{1}, claims.released[0])
}

func TestRunCopyFallbackOnAIFailure(t *testing.T) {
	claims := &fakeClaims{claimed: []task.Claimed{
		claimed(1, 10, "tok", "Submit Q4 report", task.PriorityHigh),
		claimed(2, 10, "tok", "Book flights", task.PriorityLow),
	}}
	sender := &fakeSender{}

	s := &Scheduler{ID: "w1", Tasks: claims, Users: &fakeTokens{}, Push: sender,
		Copy: &fakeCopy{err: errors.New("model down")}}
	s.Run(context.Background())

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Contains(t, msg.n.Title, "HIGH Priority Task")
	assert.Contains(t, msg.n.Body, "Submit Q4 report")
	assert.Contains(t, msg.n.Body, "1 more")
	assert.Equal(t, "EMAIL_TASK", msg.data["type"])
}

func TestRunUsesGeneratedCopy(t *testing.T) {
	claims := &fakeClaims{claimed: []task.Claimed{
		claimed(1, 10, "tok", "Report", task.PriorityMedium),
	}}
	sender := &fakeSender{}

	s := &Scheduler{ID: "w1", Tasks: claims, Users: &fakeTokens{}, Push: sender,
		Copy: &fakeCopy{copy: &ai.Copy{Title: "Don't forget!", Body: "Report is waiting"}}}
	s.Run(context.Background())

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Don't forget!", sender.sent[0].n.Title)
	assert.Equal(t, "Report is waiting", sender.sent[0].n.Body)
}

func TestGroupByUserPreservesOrder(t *testing.T) {
	groups := groupByUser([]task.Claimed{
		claimed(1, 10, "a", "t1", task.PriorityLow),
		claimed(2, 20, "b", "t2", task.PriorityLow),
		claimed(3, 10, "a", "t3", task.PriorityLow),
	})

	require.Len(t, groups, 2)
	assert.Equal(t, uint64(10), groups[0].userID)
	assert.Equal(t, []uint64{1, 3}, []uint64{groups[0].tasks[0].ID, groups[0].tasks[1].ID})
	assert.Equal(t, uint64(20), groups[1].userID)
}

func TestNextRun(t *testing.T) {
	hours := []int{2, 8, 14, 20}
	loc := time.UTC

	at := func(h, m int) time.Time {
		return time.Date(2026, 9, 1, h, m, 0, 0, loc)
	}

	assert.Equal(t, at(14, 0), nextRun(at(9, 30), hours))
	assert.Equal(t, at(20, 0), nextRun(at(14, 0), hours), "exact slot rolls to the next one")

	next := nextRun(at(21, 15), hours)
	assert.Equal(t, time.Date(2026, 9, 2, 2, 0, 0, 0, loc), next)
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	assert.Equal(t, 2*time.Minute, backoff(1))
	assert.Equal(t, 4*time.Minute, backoff(2))
	assert.Less(t, backoff(5), backoff(6))
	assert.Equal(t, 6*time.Hour, backoff(10))
	assert.Equal(t, 6*time.Hour, backoff(50))
}

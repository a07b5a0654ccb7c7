package task

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"pulse/internal/auth"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func integrationDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("PULSE_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("set PULSE_TEST_POSTGRES_DSN to run Postgres integration tests")
	}

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&auth.User{}, &Task{}, &Insight{}))
	require.NoError(t, gdb.Exec(`
create unique index if not exists uq_tasks_user_email
on tasks(user_id, email_id)
where email_id is not null and is_deleted = false;
`).Error)
	return gdb
}

func integrationUser(t *testing.T, gdb *gorm.DB, pushToken string, notificationsEnabled *bool) *auth.User {
	t.Helper()
	u := auth.User{
		Email:                "it-" + uuid.NewString() + "@example.com",
		PasswordHash:         "x",
		NotificationsEnabled: notificationsEnabled,
	}
	if pushToken != "" {
		u.PushToken = &pushToken
	}
	require.NoError(t, gdb.Create(&u).Error)
	t.Cleanup(func() {
		gdb.Exec(`delete from tasks where user_id = ?`, u.ID)
		gdb.Exec(`delete from users where id = ?`, u.ID)
	})
	return &u
}

func integrationTask(t *testing.T, gdb *gorm.DB, userID uint64) *Task {
	t.Helper()
	emailID := uuid.NewString()
	tk := Task{
		UserID:   userID,
		Subject:  "integration task",
		Priority: PriorityHigh,
		EmailID:  &emailID,
	}
	require.NoError(t, gdb.Create(&tk).Error)
	return &tk
}

func makeEligible(t *testing.T, gdb *gorm.DB, ids ...uint64) {
	t.Helper()
	require.NoError(t, gdb.Exec(
		`update tasks set next_attempt_at = now() - interval '1 minute' where id in ?`, ids).Error)
}

func reloadTask(t *testing.T, gdb *gorm.DB, id uint64) Task {
	t.Helper()
	var tk Task
	require.NoError(t, gdb.First(&tk, "id = ?", id).Error)
	return tk
}

func TestIntegrationClaimLeaseExcludesInFlightRows(t *testing.T) {
	gdb := integrationDB(t)
	ctx := context.Background()
	s := &Store{DB: gdb}

	u := integrationUser(t, gdb, "tok-claim", nil)
	t1 := integrationTask(t, gdb, u.ID)
	t2 := integrationTask(t, gdb, u.ID)

	claimed, err := s.ClaimUnsent(ctx, "worker-1", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	for _, c := range claimed {
		assert.Equal(t, "tok-claim", c.PushToken, "token comes out of the claim itself")
	}
	assert.Equal(t, t1.ID, claimed[0].ID)
	assert.Equal(t, t2.ID, claimed[1].ID)

	// Leased rows are invisible to a second worker until the lease lapses.
	again, err := s.ClaimUnsent(ctx, "worker-2", 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	got := reloadTask(t, gdb, t1.ID)
	require.NotNil(t, got.ClaimedBy)
	assert.Equal(t, "worker-1", *got.ClaimedBy)
	require.NotNil(t, got.NextAttemptAt)
	assert.True(t, got.NextAttemptAt.After(time.Now()))
}

func TestIntegrationMarkSentIsMonotonic(t *testing.T) {
	gdb := integrationDB(t)
	ctx := context.Background()
	s := &Store{DB: gdb}

	u := integrationUser(t, gdb, "tok-sent", nil)
	tk := integrationTask(t, gdb, u.ID)

	claimed, err := s.ClaimUnsent(ctx, "worker-1", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, s.MarkSent(ctx, []uint64{tk.ID}))
	got := reloadTask(t, gdb, tk.ID)
	assert.True(t, got.NotificationSent)
	assert.Nil(t, got.NextAttemptAt)
	assert.Nil(t, got.ClaimedBy)

	// Neither a retry nor a release touches a row that is already sent.
	require.NoError(t, s.RetryLater(ctx, []uint64{tk.ID}, time.Minute, 1))
	require.NoError(t, s.ReleaseClaim(ctx, []uint64{tk.ID}))

	got = reloadTask(t, gdb, tk.ID)
	assert.True(t, got.NotificationSent)
	assert.Equal(t, 0, got.NotifyAttempts)
	assert.False(t, got.DeadLettered)

	// Sent rows never come back out of the claim query.
	makeEligible(t, gdb, tk.ID)
	claimed, err = s.ClaimUnsent(ctx, "worker-2", 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestIntegrationRetryLaterDeadLettersAtCap(t *testing.T) {
	gdb := integrationDB(t)
	ctx := context.Background()
	s := &Store{DB: gdb}

	u := integrationUser(t, gdb, "tok-retry", nil)
	tk := integrationTask(t, gdb, u.ID)

	_, err := s.ClaimUnsent(ctx, "worker-1", 10)
	require.NoError(t, err)

	require.NoError(t, s.RetryLater(ctx, []uint64{tk.ID}, time.Minute, 2))
	got := reloadTask(t, gdb, tk.ID)
	assert.Equal(t, 1, got.NotifyAttempts)
	assert.False(t, got.DeadLettered)

	makeEligible(t, gdb, tk.ID)
	claimed, err := s.ClaimUnsent(ctx, "worker-1", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1, "backed-off row is eligible once its delay lapsed")

	require.NoError(t, s.RetryLater(ctx, []uint64{tk.ID}, time.Minute, 2))
	got = reloadTask(t, gdb, tk.ID)
	assert.Equal(t, 2, got.NotifyAttempts)
	assert.True(t, got.DeadLettered)
	assert.False(t, got.NotificationSent)

	// Dead-lettered rows are parked even when their delay has lapsed.
	makeEligible(t, gdb, tk.ID)
	claimed, err = s.ClaimUnsent(ctx, "worker-1", 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestIntegrationClaimSkipsUsersWithoutUsableToken(t *testing.T) {
	gdb := integrationDB(t)
	ctx := context.Background()
	s := &Store{DB: gdb}

	disabled := false
	noToken := integrationUser(t, gdb, "", nil)
	optedOut := integrationUser(t, gdb, "tok-opted-out", &disabled)
	integrationTask(t, gdb, noToken.ID)
	integrationTask(t, gdb, optedOut.ID)

	claimed, err := s.ClaimUnsent(ctx, "worker-1", 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestIntegrationCreateDeduplicatesPerSourceEmail(t *testing.T) {
	gdb := integrationDB(t)
	ctx := context.Background()
	s := &Store{DB: gdb}

	u := integrationUser(t, gdb, "", nil)
	emailID := uuid.NewString()

	first := Task{UserID: u.ID, Subject: "first", EmailID: &emailID}
	require.NoError(t, s.Create(ctx, &first))

	second := Task{UserID: u.ID, Subject: "second", EmailID: &emailID}
	assert.ErrorIs(t, s.Create(ctx, &second), ErrDuplicate)

	// Manual tasks carry no email id and never collide.
	require.NoError(t, s.Create(ctx, &Task{UserID: u.ID, Subject: "manual a"}))
	require.NoError(t, s.Create(ctx, &Task{UserID: u.ID, Subject: "manual b"}))
}

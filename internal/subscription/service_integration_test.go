package subscription

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
	require.NoError(t, gdb.AutoMigrate(&auth.User{}, &Subscription{}))
	return gdb
}

func integrationUser(t *testing.T, gdb *gorm.DB, createdAt time.Time) *auth.User {
	t.Helper()
	u := auth.User{
		Email:        "it-" + uuid.NewString() + "@example.com",
		PasswordHash: "x",
		CreatedAt:    createdAt,
	}
	require.NoError(t, gdb.Create(&u).Error)
	t.Cleanup(func() {
		gdb.Exec(`delete from users where id = ?`, u.ID)
	})
	return &u
}

func TestIntegrationExpiryNoticeThrottledTo24h(t *testing.T) {
	gdb := integrationDB(t)
	ctx := context.Background()

	// Six and a half days in: last trial day, so a notice is due.
	u := integrationUser(t, gdb, time.Now().Add(-(6*24+12)*time.Hour))

	var sent []string
	svc := &Service{DB: gdb, Notify: func(_ *auth.User, subject, _ string) {
		sent = append(sent, subject)
	}}

	require.NoError(t, svc.CheckAndSendExpiryNotices(ctx, u.ID))
	require.Len(t, sent, 1)
	assert.Equal(t, "Your Free Trial Ends Tomorrow!", sent[0])

	var got auth.User
	require.NoError(t, gdb.First(&got, "id = ?", u.ID).Error)
	require.NotNil(t, got.LastExpiryNoticeAt)

	// Still within the guard window: suppressed.
	require.NoError(t, svc.CheckAndSendExpiryNotices(ctx, u.ID))
	assert.Len(t, sent, 1)

	// Guard lapsed: fires again.
	past := time.Now().Add(-25 * time.Hour)
	require.NoError(t, gdb.Model(&auth.User{}).
		Where("id = ?", u.ID).
		Update("last_expiry_notice_at", past).Error)

	require.NoError(t, svc.CheckAndSendExpiryNotices(ctx, u.ID))
	assert.Len(t, sent, 2)
}

func TestIntegrationNoNoticeMidTrial(t *testing.T) {
	gdb := integrationDB(t)
	ctx := context.Background()

	u := integrationUser(t, gdb, time.Now().Add(-24*time.Hour))

	var sent []string
	svc := &Service{DB: gdb, Notify: func(_ *auth.User, subject, _ string) {
		sent = append(sent, subject)
	}}

	require.NoError(t, svc.CheckAndSendExpiryNotices(ctx, u.ID))
	assert.Empty(t, sent)

	var got auth.User
	require.NoError(t, gdb.First(&got, "id = ?", u.ID).Error)
	assert.Nil(t, got.LastExpiryNoticeAt, "no notice means no checkpoint write")
}

func TestIntegrationExpiredNoticeSubject(t *testing.T) {
	gdb := integrationDB(t)
	ctx := context.Background()

	u := integrationUser(t, gdb, time.Now().Add(-30*24*time.Hour))

	var sent []string
	svc := &Service{DB: gdb, Notify: func(_ *auth.User, subject, _ string) {
		sent = append(sent, subject)
	}}

	require.NoError(t, svc.CheckAndSendExpiryNotices(ctx, u.ID))
	require.Len(t, sent, 1)
	assert.Equal(t, "Your Free Trial Has Expired", sent[0])
}

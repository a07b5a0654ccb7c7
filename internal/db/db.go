package db

import (
	"fmt"

	"pulse/internal/auth"
	"pulse/internal/subscription"
	"pulse/internal/task"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(dsn string) (*gorm.DB, error) {
	// TranslateError maps unique violations to gorm.ErrDuplicatedKey, which the
	// task store relies on for ingestion idempotency.
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	return gdb, nil
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	// Tables
	if err := gdb.AutoMigrate(
		&auth.User{},
		&subscription.Subscription{},
		&task.Task{},
		&task.Insight{},
	); err != nil {
		return err
	}

	// One work item per (user, source email); manual tasks have no email_id and
	// are exempt. Soft-deleted rows don't block re-ingestion.
	if err := gdb.Exec(`
create unique index if not exists uq_tasks_user_email
on tasks(user_id, email_id)
where email_id is not null and is_deleted = false;
`).Error; err != nil {
		return err
	}

	// Helpful indexes
	stmts := []string{
		`create index if not exists idx_tasks_unsent on tasks(notification_sent, dead_lettered, next_attempt_at) where notification_sent = false;`,
		`create index if not exists idx_tasks_user_created on tasks(user_id, created_at desc);`,
		`create index if not exists idx_tasks_user_due on tasks(user_id, due_date) where due_date is not null;`,
		`create index if not exists idx_insights_user_created on insights(user_id, created_at desc);`,
		`create index if not exists idx_subscriptions_user_status on subscriptions(user_id, status);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}

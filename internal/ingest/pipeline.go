package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"pulse/internal/ai"
	"pulse/internal/auth"
	"pulse/internal/mail"
	"pulse/internal/subscription"
	"pulse/internal/task"
)

// ErrReauthRequired means the mailbox credential was rejected; the client is
// expected to prompt a fresh Google sign-in.
var ErrReauthRequired = errors.New("reauthentication required")

// throttleWindow is the minimum gap between two real fetches for one user.
const throttleWindow = 7 * 24 * time.Hour

type Outcome string

const (
	OutcomeCompleted    Outcome = "COMPLETED"
	SkippedExpired      Outcome = "SKIPPED_EXPIRED"
	SkippedThrottled    Outcome = "SKIPPED_THROTTLED"
	SkippedNoCredential Outcome = "SKIPPED_NO_CREDENTIAL"
)

// Result is the tagged outcome of a pipeline run. Skips are results, not
// errors; callers branch on Outcome.
type Result struct {
	Outcome    Outcome
	EmailCount int
	TaskCount  int
	Extraction ai.Extraction
	Access     subscription.Access
}

type AccessChecker interface {
	Status(ctx context.Context, userID uint64) (subscription.Access, error)
	CheckAndSendExpiryNotices(ctx context.Context, userID uint64) error
}

type UserStore interface {
	GetByID(ctx context.Context, id uint64) (*auth.User, error)
	SetLastEmailFetch(ctx context.Context, id uint64, at time.Time) error
}

type MailFetcher interface {
	FetchRecent(ctx context.Context, accessToken string) ([]mail.Message, error)
}

type Extractor interface {
	AnalyzeEmails(ctx context.Context, emails []ai.EmailInput) ai.Extraction
}

type TaskWriter interface {
	Create(ctx context.Context, t *task.Task) error
	CreateInsight(ctx context.Context, in *task.Insight) error
}

type Pipeline struct {
	Access AccessChecker
	Users  UserStore
	Mail   MailFetcher
	AI     Extractor
	Tasks  TaskWriter
}

// Run executes gate -> throttle -> credential -> fetch -> extract -> persist
// -> checkpoint for one user. The checkpoint only advances after a real fetch;
// skips leave it untouched.
func (p *Pipeline) Run(ctx context.Context, userID uint64) (Result, error) {
	access, err := p.Access.Status(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	// Advisory expiry notice, not awaited.
	go func() {
		if err := p.Access.CheckAndSendExpiryNotices(context.Background(), userID); err != nil {
			log.Printf("ingest: expiry notice check failed for user %d: %v", userID, err)
		}
	}()

	if access.Status == subscription.StatusExpired {
		return Result{Outcome: SkippedExpired, Access: access}, nil
	}

	user, err := p.Users.GetByID(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	if user.LastEmailFetch != nil && time.Since(*user.LastEmailFetch) < throttleWindow {
		return Result{Outcome: SkippedThrottled, Access: access}, nil
	}

	if user.GoogleAccessToken == nil || *user.GoogleAccessToken == "" {
		return Result{Outcome: SkippedNoCredential, Access: access}, nil
	}

	messages, err := p.Mail.FetchRecent(ctx, *user.GoogleAccessToken)
	if err != nil {
		if errors.Is(err, mail.ErrTokenExpired) {
			return Result{}, ErrReauthRequired
		}
		return Result{}, fmt.Errorf("fetch emails: %w", err)
	}

	inputs := make([]ai.EmailInput, 0, len(messages))
	for _, m := range messages {
		inputs = append(inputs, ai.EmailInput{
			ID:      m.ID,
			Subject: m.Subject,
			From:    m.From,
			Date:    m.Date,
			Snippet: m.Snippet,
		})
	}

	extraction := p.AI.AnalyzeEmails(ctx, inputs)
	created := p.persist(ctx, userID, inputs, extraction)

	// The checkpoint advances whenever a fetch actually happened, even when
	// extraction degraded or found nothing.
	if err := p.Users.SetLastEmailFetch(ctx, userID, time.Now()); err != nil {
		log.Printf("ingest: checkpoint update failed for user %d: %v", userID, err)
	}

	return Result{
		Outcome:    OutcomeCompleted,
		EmailCount: len(messages),
		TaskCount:  created,
		Extraction: extraction,
		Access:     access,
	}, nil
}

// AnalyzeProvided extracts and persists tasks from client-supplied emails.
// No fetch happens, so neither the throttle nor the checkpoint applies.
func (p *Pipeline) AnalyzeProvided(ctx context.Context, userID uint64, emails []ai.EmailInput) Result {
	extraction := p.AI.AnalyzeEmails(ctx, emails)
	created := p.persist(ctx, userID, emails, extraction)
	return Result{
		Outcome:    OutcomeCompleted,
		EmailCount: len(emails),
		TaskCount:  created,
		Extraction: extraction,
	}
}

// persist writes each extracted task independently: one bad row never aborts
// the batch, and duplicates from re-ingested source emails are skipped.
func (p *Pipeline) persist(ctx context.Context, userID uint64, emails []ai.EmailInput, ex ai.Extraction) int {
	created := 0
	for _, et := range ex.Tasks {
		var src ai.EmailInput
		if et.EmailIndex >= 0 && et.EmailIndex < len(emails) {
			src = emails[et.EmailIndex]
		}

		t := task.Task{
			UserID:      userID,
			Subject:     et.Subject,
			Description: et.ProcessThought,
			Priority:    et.Priority,
			DueDate:     parseDueDate(et.DueDate),
			Snippet:     src.Snippet,
			FromAddress: src.From,
		}
		if src.ID != "" {
			id := src.ID
			t.EmailID = &id
		}

		switch err := p.Tasks.Create(ctx, &t); {
		case err == nil:
			created++
		case errors.Is(err, task.ErrDuplicate):
			log.Printf("ingest: duplicate task for user %d email %s, skipping", userID, src.ID)
		default:
			log.Printf("ingest: task write failed for user %d: %v", userID, err)
		}
	}

	if !ex.Degraded && ex.Summary != "" {
		sources := make([]string, 0, len(emails))
		for _, e := range emails {
			sources = append(sources, e.Subject)
		}
		in := task.Insight{
			UserID:   userID,
			Type:     "PRODUCTIVITY_TIP",
			Message:  "Email Analysis: " + ex.Summary,
			Metadata: []byte(fmt.Sprintf(`{"burnout_risk":%q}`, ex.BurnoutRisk)),
			Sources:  sources,
		}
		if err := p.Tasks.CreateInsight(ctx, &in); err != nil {
			log.Printf("ingest: insight write failed for user %d: %v", userID, err)
		}
	}

	return created
}

func parseDueDate(s *string) *time.Time {
	if s == nil || *s == "" || *s == "null" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, *s); err == nil {
			return &t
		}
	}
	return nil
}

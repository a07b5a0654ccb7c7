package ai

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	langopenai "github.com/tmc/langchaingo/llms/openai"
)

// Client talks to an OpenAI-compatible chat completion endpoint (Groq) in
// JSON mode. Extraction degrades instead of failing: callers always get a
// usable result.
type Client struct {
	llm llms.Model
}

func New(apiKey, baseURL, model string) (*Client, error) {
	llm, err := langopenai.New(
		langopenai.WithToken(apiKey),
		langopenai.WithModel(model),
		langopenai.WithBaseURL(baseURL),
	)
	if err != nil {
		return nil, err
	}
	return &Client{llm: llm}, nil
}

// maxEmails bounds the prompt to stay within token limits.
const maxEmails = 10

// EmailInput is one email handed to the extraction prompt.
type EmailInput struct {
	ID      string
	Subject string
	From    string
	Date    string
	Snippet string
}

type TaskBrief struct {
	Subject  string
	Priority string
	DueDate  *time.Time
}

// AnalyzeEmails asks the model for actionable tasks, a workload summary and a
// burnout-risk label. Provider or parse failures yield a degraded result with
// zero tasks; they are never returned as errors.
func (c *Client) AnalyzeEmails(ctx context.Context, emails []EmailInput) Extraction {
	if len(emails) == 0 {
		return Extraction{Tasks: []ExtractedTask{}, Summary: "No emails to analyze.", BurnoutRisk: RiskLow}
	}

	if len(emails) > maxEmails {
		emails = emails[:maxEmails]
	}

	var sb strings.Builder
	for i, e := range emails {
		snippet := truncate(e.Snippet, 200)
		fmt.Fprintf(&sb, "\nEmail %d:\nSubject: %s\nSnippet: %s...\nFrom: %s\nDate: %s\n", i+1, e.Subject, snippet, e.From, e.Date)
		if i < len(emails)-1 {
			sb.WriteString("\n---\n")
		}
	}

	prompt := fmt.Sprintf(`Analyze the following emails and extract any actionable tasks, deadlines, or important events.
Also provide a brief summary of the user's workload.

Return the response in strictly valid JSON format with the following structure:
{
    "tasks": [
        {
            "subject": "Task Title",
            "process_thought": "Why you think this is a task",
            "priority": "HIGH" | "MEDIUM" | "LOW",
            "due_date": "ISO Date string or null",
            "email_index": number (0-based index of source email)
        }
    ],
    "summary": "A brief summary of workload (max 2 sentences).",
    "burnout_risk": "LOW" | "MEDIUM" | "HIGH"
}

Emails:
%s`, sb.String())

	raw, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt,
		llms.WithTemperature(0.7),
		llms.WithMaxTokens(2048),
		llms.WithJSONMode(),
	)
	if err != nil {
		log.Printf("ai: email analysis failed: %v", err)
		if isRateLimited(err) {
			return degraded("AI quota reached. Please try again later.")
		}
		return degraded("Failed to analyze emails. Please try again later.")
	}

	ex, err := ParseExtraction(raw)
	if err != nil {
		log.Printf("ai: malformed extraction response: %v", err)
		return degraded("Failed to analyze emails. Please try again later.")
	}
	return ex
}

// GenerateNotification produces push copy for a user's pending tasks. The
// caller supplies a fallback; failures surface as errors here.
func (c *Client) GenerateNotification(ctx context.Context, tasks []TaskBrief) (*Copy, error) {
	var sb strings.Builder
	for i, t := range tasks {
		due := "No deadline"
		if t.DueDate != nil {
			due = t.DueDate.Format("2006-01-02")
		}
		fmt.Fprintf(&sb, "Task %d: %s (Priority: %s, Due: %s)\n", i+1, t.Subject, t.Priority, due)
	}

	prompt := fmt.Sprintf(`You are a highly intelligent AI assistant for a productivity app.
The user has the following pending email tasks that require their attention:

%s
Create a highly personalized, detailed, and action-oriented mobile push notification.
The notification body MUST specifically mention details from the email tasks above (e.g., exact task subjects, "HIGH priority", or specific due dates). Make the user realize exactly what email is waiting for them.

Requirements:
1. Clearly mention at least one specific task subject or deadline in the notification body.
2. Keep it engaging but urgent.
3. Title should be catchy (max 40 chars).
4. Body should be detailed and informative (approx 100-180 chars).

Return strictly valid JSON:
{
  "title": "Notification Title (max 40 chars)",
  "body": "Detailed notification body mentioning specific email subjects or deadlines (max 180 chars)"
}`, sb.String())

	raw, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt,
		llms.WithTemperature(0.7),
		llms.WithMaxTokens(300),
		llms.WithJSONMode(),
	)
	if err != nil {
		return nil, err
	}
	return ParseCopy(raw)
}

func isRateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit")
}

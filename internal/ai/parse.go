package ai

import (
	"encoding/json"
	"errors"
	"strings"
)

const (
	RiskLow    = "LOW"
	RiskMedium = "MEDIUM"
	RiskHigh   = "HIGH"
)

// ExtractedTask mirrors the model's JSON contract. EmailIndex points back at
// the 0-based position of the source email in the analyzed batch.
type ExtractedTask struct {
	Subject        string  `json:"subject"`
	ProcessThought string  `json:"process_thought"`
	Priority       string  `json:"priority"`
	DueDate        *string `json:"due_date"`
	EmailIndex     int     `json:"email_index"`
}

type Extraction struct {
	Tasks       []ExtractedTask `json:"tasks"`
	Summary     string          `json:"summary"`
	BurnoutRisk string          `json:"burnout_risk"`

	// Degraded marks fallback results (provider error, malformed JSON).
	// Degraded extractions persist no insight.
	Degraded bool `json:"-"`
}

type Copy struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

var errEmptyResponse = errors.New("empty model response")

// ParseExtraction decodes the extraction response, tolerating markdown code
// fences, and clamps enum fields to their allowed values.
func ParseExtraction(raw string) (Extraction, error) {
	raw = stripFences(raw)
	if raw == "" {
		return Extraction{}, errEmptyResponse
	}

	var ex Extraction
	if err := json.Unmarshal([]byte(raw), &ex); err != nil {
		return Extraction{}, err
	}

	for i := range ex.Tasks {
		ex.Tasks[i].Priority = clampLevel(ex.Tasks[i].Priority, RiskMedium)
		if ex.Tasks[i].EmailIndex < 0 {
			ex.Tasks[i].EmailIndex = 0
		}
	}
	ex.BurnoutRisk = clampLevel(ex.BurnoutRisk, RiskLow)
	if ex.Tasks == nil {
		ex.Tasks = []ExtractedTask{}
	}
	return ex, nil
}

// ParseCopy decodes notification copy and enforces the length contract
// (title <= 40 chars, body <= 180 chars).
func ParseCopy(raw string) (*Copy, error) {
	raw = stripFences(raw)
	if raw == "" {
		return nil, errEmptyResponse
	}

	var c Copy
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, err
	}
	c.Title = strings.TrimSpace(c.Title)
	c.Body = strings.TrimSpace(c.Body)
	if c.Title == "" || c.Body == "" {
		return nil, errors.New("missing title or body")
	}
	c.Title = truncate(c.Title, 40)
	c.Body = truncate(c.Body, 180)
	return &c, nil
}

func degraded(summary string) Extraction {
	return Extraction{
		Tasks:       []ExtractedTask{},
		Summary:     summary,
		BurnoutRisk: RiskLow,
		Degraded:    true,
	}
}

func clampLevel(v, def string) string {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case RiskHigh:
		return RiskHigh
	case RiskMedium:
		return RiskMedium
	case RiskLow:
		return RiskLow
	default:
		return def
	}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

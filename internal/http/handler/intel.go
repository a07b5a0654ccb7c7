package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"pulse/internal/ai"
	"pulse/internal/auth"
	"pulse/internal/ingest"
	"pulse/internal/subscription"
)

// Runner is the slice of the ingestion pipeline the HTTP layer needs.
type Runner interface {
	Run(ctx context.Context, userID uint64) (ingest.Result, error)
	AnalyzeProvided(ctx context.Context, userID uint64, emails []ai.EmailInput) ingest.Result
}

type IntelHandler struct {
	Pipeline Runner
}

// Refresh triggers a fetch-and-analyze run for the caller's mailbox.
func (h *IntelHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	res, err := h.Pipeline.Run(r.Context(), uid)
	if err != nil {
		if errors.Is(err, ingest.ErrReauthRequired) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"message": "Google access token expired. Please sign in with Google again.",
			})
			return
		}
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"message": "Email analysis failed. Please try again later.",
		})
		return
	}

	switch res.Outcome {
	case ingest.SkippedExpired:
		writeJSON(w, http.StatusForbidden, map[string]any{
			"message": "Subscription expired. Please upgrade to continue using Email Analysis.",
		})
	case ingest.SkippedThrottled:
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Emails already analyzed recently",
		})
	case ingest.SkippedNoCredential:
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Google access token not found. Please sign in with Google again.",
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"message":     "Emails fetched and analyzed successfully",
			"email_count": res.EmailCount,
			"task_count":  res.TaskCount,
			"analysis":    res.Extraction,
		})
	}
}

type analyzeReq struct {
	Emails []struct {
		ID      string `json:"id"`
		Subject string `json:"subject"`
		From    string `json:"from"`
		Date    string `json:"date"`
		Snippet string `json:"snippet"`
	} `json:"emails"`
}

// Analyze extracts tasks from emails the client already holds (on-device
// mailbox access). No throttle, no checkpoint.
func (h *IntelHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req analyzeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	emails := make([]ai.EmailInput, 0, len(req.Emails))
	for _, e := range req.Emails {
		emails = append(emails, ai.EmailInput{
			ID:      e.ID,
			Subject: e.Subject,
			From:    e.From,
			Date:    e.Date,
			Snippet: e.Snippet,
		})
	}

	res := h.Pipeline.AnalyzeProvided(r.Context(), uid, emails)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Analysis complete",
		"task_count": res.TaskCount,
		"analysis":   res.Extraction,
	})
}

type SubscriptionHandler struct {
	Subs *subscription.Service
}

func (h *SubscriptionHandler) Status(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	access, err := h.Subs.Status(r.Context(), uid)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, access)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pulse/internal/auth"
	"pulse/internal/task"
)

type InsightHandler struct {
	Store *task.Store
}

type insightDTO struct {
	ID        uint64          `json:"id"`
	Type      string          `json:"type"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
	Sources   []string        `json:"sources"`
	CreatedAt time.Time       `json:"created_at"`
}

func (h *InsightHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	limit := 5
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	rows, err := h.Store.ListInsights(r.Context(), uid, limit)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	out := make([]insightDTO, 0, len(rows))
	for _, in := range rows {
		out = append(out, insightDTO{
			ID:        in.ID,
			Type:      in.Type,
			Message:   in.Message,
			Metadata:  json.RawMessage(in.Metadata),
			Sources:   []string(in.Sources),
			CreatedAt: in.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pulse/internal/auth"
	"pulse/internal/task"

	"github.com/go-chi/chi/v5"
)

type TaskHandler struct {
	Store *task.Store
}

type taskDTO struct {
	ID               uint64     `json:"id"`
	Subject          string     `json:"subject"`
	Description      string     `json:"description"`
	Priority         string     `json:"priority"`
	DueDate          *time.Time `json:"due_date"`
	FromAddress      string     `json:"from_address"`
	Snippet          string     `json:"snippet"`
	IsManual         bool       `json:"is_manual"`
	IsRead           bool       `json:"is_read"`
	IsCompleted      bool       `json:"is_completed"`
	CompletedAt      *time.Time `json:"completed_at"`
	NotificationSent bool       `json:"notification_sent"`
	CreatedAt        time.Time  `json:"created_at"`
}

func toTaskDTO(t task.Task) taskDTO {
	return taskDTO{
		ID:               t.ID,
		Subject:          t.Subject,
		Description:      t.Description,
		Priority:         t.Priority,
		DueDate:          t.DueDate,
		FromAddress:      t.FromAddress,
		Snippet:          t.Snippet,
		IsManual:         t.EmailID == nil,
		IsRead:           t.IsRead,
		IsCompleted:      t.IsCompleted,
		CompletedAt:      t.CompletedAt,
		NotificationSent: t.NotificationSent,
		CreatedAt:        t.CreatedAt,
	}
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	limit := 20
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	var f task.ListFilters
	if v := strings.TrimSpace(r.URL.Query().Get("priority")); v != "" {
		p := strings.ToUpper(v)
		f.Priority = &p
	}
	if v := strings.TrimSpace(r.URL.Query().Get("is_read")); v != "" {
		b := v == "true"
		f.IsRead = &b
	}
	if v := strings.TrimSpace(r.URL.Query().Get("is_manual")); v != "" {
		b := v == "true"
		f.Manual = &b
	}

	rows, err := h.Store.List(r.Context(), uid, limit, f)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	out := make([]taskDTO, 0, len(rows))
	for _, t := range rows {
		out = append(out, toTaskDTO(t))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (h *TaskHandler) DueToday(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	rows, err := h.Store.DueToday(r.Context(), uid)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	out := make([]taskDTO, 0, len(rows))
	for _, t := range rows {
		out = append(out, toTaskDTO(t))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

type createTaskReq struct {
	Title    string  `json:"title"`
	Priority string  `json:"priority"`
	DueDate  *string `json:"due_date"` // RFC3339 or YYYY-MM-DD, optional
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req createTaskReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		http.Error(w, "title required", http.StatusBadRequest)
		return
	}
	if req.Priority == "" {
		req.Priority = task.PriorityMedium
	}

	var due *time.Time
	if req.DueDate != nil && strings.TrimSpace(*req.DueDate) != "" {
		parsed := false
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, *req.DueDate); err == nil {
				due = &t
				parsed = true
				break
			}
		}
		if !parsed {
			http.Error(w, "invalid due_date", http.StatusBadRequest)
			return
		}
	}

	t, err := h.Store.CreateManual(r.Context(), uid, req.Title, strings.ToUpper(req.Priority), due)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toTaskDTO(*t))
}

type statusReq struct {
	IsRead      *bool `json:"is_read"`
	IsCompleted *bool `json:"is_completed"`
}

func (h *TaskHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	id64, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req statusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	t, err := h.Store.UpdateStatus(r.Context(), id64, uid, task.StatusUpdate{
		IsRead:      req.IsRead,
		IsCompleted: req.IsCompleted,
	})
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toTaskDTO(*t))
}

type deleteReq struct {
	TaskIDs []uint64 `json:"task_ids"`
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req deleteReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if len(req.TaskIDs) == 0 {
		http.Error(w, "task_ids required", http.StatusBadRequest)
		return
	}

	n, err := h.Store.SoftDelete(r.Context(), uid, req.TaskIDs)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"deleted": n})
}

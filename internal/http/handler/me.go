package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"pulse/internal/auth"
)

type MeHandler struct {
	Users *auth.Users
}

func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	u, err := h.Users.GetByID(r.Context(), uid)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	enabled := true
	if u.NotificationsEnabled != nil {
		enabled = *u.NotificationsEnabled
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"user_id":               u.ID,
		"email":                 u.Email,
		"push_token_set":        u.PushToken != nil && *u.PushToken != "",
		"notifications_enabled": enabled,
		"mailbox_connected":     u.GoogleAccessToken != nil && *u.GoogleAccessToken != "",
	})
}

type deviceReq struct {
	PushToken            *string `json:"push_token"`
	NotificationsEnabled *bool   `json:"notifications_enabled"`
}

// UpdateDevice registers a push token and/or toggles notifications.
func (h *MeHandler) UpdateDevice(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req deviceReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.PushToken == nil && req.NotificationsEnabled == nil {
		http.Error(w, "nothing to update", http.StatusBadRequest)
		return
	}

	if err := h.Users.SetDevice(r.Context(), uid, req.PushToken, req.NotificationsEnabled); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type googleTokenReq struct {
	AccessToken string `json:"access_token"`
}

// UpdateGoogleToken stores the mailbox credential used by ingestion.
func (h *MeHandler) UpdateGoogleToken(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req googleTokenReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	req.AccessToken = strings.TrimSpace(req.AccessToken)
	if req.AccessToken == "" {
		http.Error(w, "access_token required", http.StatusBadRequest)
		return
	}

	if err := h.Users.SetGoogleToken(r.Context(), uid, req.AccessToken); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

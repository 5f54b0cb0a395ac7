// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"

	"github.com/danielhkuo/securevote/cliparse"
	"github.com/danielhkuo/securevote/middleware"
	"github.com/danielhkuo/securevote/models"
	"github.com/danielhkuo/securevote/protocol"
)

type SecurityHandler struct {
	admin *protocol.Admin
	cfg   cliparse.Config
}

func NewSecurityHandler(admin *protocol.Admin, cfg cliparse.Config) *SecurityHandler {
	return &SecurityHandler{admin: admin, cfg: cfg}
}

// GetSecurityLog handles GET /security-log
// Optional ?survey= narrows the list to one survey. Newest first.
func (h *SecurityHandler) GetSecurityLog(w http.ResponseWriter, r *http.Request) {
	entries, err := h.admin.SecurityLog()
	if err != nil {
		writeAdminError(w, err, "security log")
		return
	}

	if surveyID := r.URL.Query().Get("survey"); surveyID != "" {
		filtered := []models.SecurityLogEntry{}
		for _, e := range entries {
			if e.SurveyID == surveyID {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	middleware.JSONResponse(w, http.StatusOK, entries)
}

// GetStatus handles GET /status
func (h *SecurityHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	surveys, err := h.admin.Surveys()
	if err != nil {
		writeAdminError(w, err, "status")
		return
	}
	entries, err := h.admin.SecurityLog()
	if err != nil {
		writeAdminError(w, err, "status")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.StatusResponse{
		Role:      h.cfg.Role,
		Connected: h.admin.Connected(),
		Surveys:   len(surveys),
		Alerts:    len(entries),
	})
}

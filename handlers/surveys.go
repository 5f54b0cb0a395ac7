// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/danielhkuo/securevote/middleware"
	"github.com/danielhkuo/securevote/models"
	"github.com/danielhkuo/securevote/protocol"
)

type SurveyHandler struct {
	admin *protocol.Admin
}

func NewSurveyHandler(admin *protocol.Admin) *SurveyHandler {
	return &SurveyHandler{admin: admin}
}

// ListSurveys handles GET /surveys
func (h *SurveyHandler) ListSurveys(w http.ResponseWriter, r *http.Request) {
	surveys, err := h.admin.Surveys()
	if err != nil {
		writeAdminError(w, err, "list surveys")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, surveys)
}

// GetSurvey handles GET /surveys/{id}
func (h *SurveyHandler) GetSurvey(w http.ResponseWriter, r *http.Request) {
	survey, err := h.admin.Survey(r.PathValue("id"))
	if err != nil {
		writeAdminError(w, err, "get survey")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, survey)
}

// CreateSurvey handles POST /surveys
// The new catalog is broadcast to every voter.
func (h *SurveyHandler) CreateSurvey(w http.ResponseWriter, r *http.Request) {
	var req models.SurveyRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	survey, err := h.admin.CreateSurvey(r.Context(), req)
	if err != nil {
		writeAdminError(w, err, "create survey")
		return
	}

	slog.Info("survey created", "survey_id", survey.ID, "options", len(survey.Options))
	middleware.JSONResponse(w, http.StatusCreated, survey)
}

// UpdateSurvey handles PUT /surveys/{id}
func (h *SurveyHandler) UpdateSurvey(w http.ResponseWriter, r *http.Request) {
	var req models.SurveyRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	survey, err := h.admin.UpdateSurvey(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeAdminError(w, err, "update survey")
		return
	}

	slog.Info("survey updated", "survey_id", survey.ID)
	middleware.JSONResponse(w, http.StatusOK, survey)
}

// DeleteSurvey handles DELETE /surveys/{id}
func (h *SurveyHandler) DeleteSurvey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.admin.DeleteSurvey(r.Context(), id); err != nil {
		writeAdminError(w, err, "delete survey")
		return
	}

	slog.Info("survey deleted", "survey_id", id)
	w.WriteHeader(http.StatusNoContent)
}

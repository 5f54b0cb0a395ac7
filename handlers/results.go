// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielhkuo/securevote/cliparse"
	"github.com/danielhkuo/securevote/middleware"
	"github.com/danielhkuo/securevote/models"
	"github.com/danielhkuo/securevote/protocol"
	"github.com/danielhkuo/securevote/report"
)

type ResultsHandler struct {
	admin *protocol.Admin
	cfg   cliparse.Config
}

func NewResultsHandler(admin *protocol.Admin, cfg cliparse.Config) *ResultsHandler {
	return &ResultsHandler{admin: admin, cfg: cfg}
}

// ExportCSV handles GET /surveys/{id}/results.csv
func (h *ResultsHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	survey, err := h.admin.Survey(r.PathValue("id"))
	if err != nil {
		writeAdminError(w, err, "export results")
		return
	}
	votes, err := h.admin.Votes()
	if err != nil {
		writeAdminError(w, err, "export results")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(survey)))
	if err := report.WriteCSV(w, survey, votes, time.Now()); err != nil {
		// Headers are gone; all we can do is log.
		slog.Error("failed to write csv", "survey_id", survey.ID, "error", err)
	}
}

// GetLink handles GET /surveys/{id}/link
func (h *ResultsHandler) GetLink(w http.ResponseWriter, r *http.Request) {
	survey, err := h.admin.Survey(r.PathValue("id"))
	if err != nil {
		writeAdminError(w, err, "vote link")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.SurveyLinkResponse{
		SurveyID: survey.ID,
		URL:      report.VoteLink(h.cfg.PublicBaseURL, survey.ID),
	})
}

// GetVotes handles GET /surveys/{id}/votes
// Lists the admin's own ledger, which is only filled in strict mode.
func (h *ResultsHandler) GetVotes(w http.ResponseWriter, r *http.Request) {
	survey, err := h.admin.Survey(r.PathValue("id"))
	if err != nil {
		writeAdminError(w, err, "list votes")
		return
	}
	votes, err := h.admin.Votes()
	if err != nil {
		writeAdminError(w, err, "list votes")
		return
	}

	out := []models.VoteRecord{}
	for _, v := range votes {
		if v.SurveyID == survey.ID {
			out = append(out, v)
		}
	}
	middleware.JSONResponse(w, http.StatusOK, out)
}

// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"net/http"

	"github.com/danielhkuo/securevote/cliparse"
	"github.com/danielhkuo/securevote/handlers"
	"github.com/danielhkuo/securevote/middleware"
	"github.com/danielhkuo/securevote/protocol"
)

func NewRouter(admin *protocol.Admin, cfg cliparse.Config) *http.ServeMux {
	mux := http.NewServeMux()

	surveyHandler := handlers.NewSurveyHandler(admin)
	resultsHandler := handlers.NewResultsHandler(admin, cfg)
	securityHandler := handlers.NewSecurityHandler(admin, cfg)

	guarded := func(h http.HandlerFunc) http.HandlerFunc {
		return middleware.WithLogging(middleware.RequireAdminKey(cfg.AdminKey, h))
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Catalog
	mux.HandleFunc("GET /surveys", middleware.WithLogging(surveyHandler.ListSurveys))
	mux.HandleFunc("GET /surveys/{id}", middleware.WithLogging(surveyHandler.GetSurvey))
	mux.HandleFunc("POST /surveys", guarded(surveyHandler.CreateSurvey))
	mux.HandleFunc("PUT /surveys/{id}", guarded(surveyHandler.UpdateSurvey))
	mux.HandleFunc("DELETE /surveys/{id}", guarded(surveyHandler.DeleteSurvey))

	// Results
	mux.HandleFunc("GET /surveys/{id}/results.csv", middleware.WithLogging(resultsHandler.ExportCSV))
	mux.HandleFunc("GET /surveys/{id}/link", middleware.WithLogging(resultsHandler.GetLink))
	mux.HandleFunc("GET /surveys/{id}/votes", middleware.WithLogging(resultsHandler.GetVotes))

	// Monitoring
	mux.HandleFunc("GET /security-log", middleware.WithLogging(securityHandler.GetSecurityLog))
	mux.HandleFunc("GET /status", middleware.WithLogging(securityHandler.GetStatus))

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("securevote admin API v1"))
	})

	return mux
}

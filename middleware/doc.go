// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helpers for the admin API.

# Request Logging

	mux.HandleFunc("GET /surveys", middleware.WithLogging(handler))

Logs method, path, client address, status and duration_ms once the handler
returns.

# Admin Key

	mux.HandleFunc("POST /surveys", middleware.WithLogging(
		middleware.RequireAdminKey(cfg.AdminKey, handler)))

Requests must carry X-Admin-Key when a key is configured.

# JSON Helpers

	middleware.JSONResponse(w, http.StatusOK, data)
	middleware.ErrorResponse(w, http.StatusBadRequest, "message")

	var req models.SurveyRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
*/
package middleware

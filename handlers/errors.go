// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/securevote/middleware"
	"github.com/danielhkuo/securevote/protocol"
)

// writeAdminError maps admin errors to responses. Anything unexpected is a
// storage problem and is logged.
func writeAdminError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, protocol.ErrSurveyNotFound):
		middleware.ErrorResponse(w, http.StatusNotFound, "Survey not found")
	case errors.Is(err, protocol.ErrInvalidSurvey):
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("admin operation failed", "action", action, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Storage error")
	}
}

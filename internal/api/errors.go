package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tubetext/tubetext-server/internal/account"
)

// writeGateError turns an access decision into the response the web
// frontend expects.
func writeGateError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, account.ErrUnauthenticated):
		WriteError(w, http.StatusUnauthorized, "Sign in required", "UNAUTHORIZED")
	case errors.Is(err, account.ErrForbidden):
		WriteError(w, http.StatusForbidden, "Premium subscription required", "FORBIDDEN")
	case errors.Is(err, account.ErrUsageLimit):
		WriteError(w, http.StatusTooManyRequests, "Free usage limit reached", "USAGE_LIMIT")
	default:
		logger.Error("access check failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}

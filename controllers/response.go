// Package controllers holds the HTTP handlers. They decode the request, call
// a service with the caller's identity and map errors onto status codes.
package controllers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"shophub/apperrors"
	"shophub/middleware"
	"shophub/services"
	"shophub/utils"
)

// maxBody bounds JSON request bodies.
const maxBody = 1 << 20

// actorFrom returns the authenticated caller, writing a 401 when there is none.
func actorFrom(w http.ResponseWriter, r *http.Request) (services.Actor, bool) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
		return services.Actor{}, false
	}
	return services.Actor{UserID: claims.UserID, Role: claims.Role}, true
}

// decodeJSON reads a JSON body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid_input", "Invalid input")
		return false
	}
	return true
}

// respondError maps err onto the API error body. Internal errors are logged
// and replaced with a generic message.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && appErr.Kind != apperrors.KindInternal {
		status := apperrors.HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetRequestID(r.Context()), "error", err)
		}
		utils.RespondError(w, status, appErr.Code, appErr.Message)
		return
	}
	logger.Error("internal error", "path", r.URL.Path, "request_id", middleware.GetRequestID(r.Context()), "error", err)
	utils.RespondError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
}

// transitionAsBadRequest reports an illegal order transition as 400 on the
// cancel and status endpoints; elsewhere it stays a 409 conflict.
func transitionAsBadRequest(err error) error {
	var appErr *apperrors.Error
	if errors.Is(err, apperrors.ErrInvalidStateTransition) && errors.As(err, &appErr) {
		return &apperrors.Error{Kind: apperrors.KindValidation, Code: appErr.Code, Message: appErr.Message, Err: err}
	}
	return err
}

type messageResponse struct {
	Message string `json:"message"`
}

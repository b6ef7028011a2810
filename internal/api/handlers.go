// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tkhieu/worktime/internal/activity"
	"github.com/tkhieu/worktime/internal/events"
	"github.com/tkhieu/worktime/internal/logging"
	"github.com/tkhieu/worktime/internal/models"
	"github.com/tkhieu/worktime/internal/session"
	intsync "github.com/tkhieu/worktime/internal/sync"
	"github.com/tkhieu/worktime/internal/validation"
)

// maxBodyBytes bounds request bodies. Messages and tokens are small.
const maxBodyBytes = 64 << 10

// Handler holds the endpoint implementations.
type Handler struct {
	deps    Deps
	started time.Time
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

// writeValidationError writes the VALIDATION_ERROR envelope.
func writeValidationError(rw *ResponseWriter, verr *validation.RequestValidationError) {
	apiErr := verr.ToAPIError()
	rw.ErrorWithDetails(http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
}

// Health is the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}

// PostEvent accepts one detection message.
func (h *Handler) PostEvent(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	body, err := readBody(w, r)
	if err != nil {
		rw.BadRequest("Request body too large or unreadable")
		return
	}
	msg, err := events.Decode(body)
	if err != nil {
		rw.Error(http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	out, err := h.deps.Messages.Handle(r.Context(), msg)
	if err != nil {
		var verr *validation.RequestValidationError
		switch {
		case errors.As(err, &verr):
			writeValidationError(rw, verr)
		case errors.Is(err, events.ErrInvalidMessage),
			errors.Is(err, session.ErrInvalidSubject),
			errors.Is(err, session.ErrEmptyContext),
			errors.Is(err, activity.ErrInvalidSubject),
			errors.Is(err, models.ErrUnknownActivityType),
			errors.Is(err, models.ErrMetadataTooLarge),
			errors.Is(err, models.ErrMetadataValue):
			rw.Error(http.StatusBadRequest, ErrCodeValidation, err.Error())
		default:
			rw.InternalError("Failed to apply detection message", err)
		}
		return
	}

	if out.Duplicate {
		rw.Success(out)
		return
	}
	rw.Accepted(out)
}

// PostSync runs a sync pass and returns its result.
func (h *Handler) PostSync(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	// The pass must not stop when the caller hangs up.
	res, err := h.deps.Sync.TrySync(context.WithoutCancel(r.Context()))
	switch {
	case err == nil:
		rw.Success(res)
	case errors.Is(err, intsync.ErrSyncInFlight):
		rw.Conflict("A sync pass is already running; it will pick up new work")
	case errors.Is(err, intsync.ErrNotAuthenticated):
		rw.Unauthorized("Sign in required before syncing")
	default:
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Requested sync failed")
		rw.ErrorWithDetails(http.StatusBadGateway, ErrCodeSyncFailed, err.Error(), res)
	}
}

// PostOnline is the reconnect hook.
func (h *Handler) PostOnline(w http.ResponseWriter, r *http.Request) {
	h.deps.Reconnect.Reconnect()
	NewResponseWriter(w, r).Accepted(map[string]bool{"sync_requested": true})
}

type tokenRequest struct {
	Token string `json:"token" validate:"required,max=8192"`
}

// PutToken stores the bearer token handed over by the sign-in flow.
func (h *Handler) PutToken(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	body, err := readBody(w, r)
	if err != nil {
		rw.BadRequest("Request body too large or unreadable")
		return
	}
	var req tokenRequest
	if err := json.Unmarshal(body, &req); err != nil {
		rw.BadRequest("Invalid JSON body")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		writeValidationError(rw, verr)
		return
	}

	if err := h.deps.Tokens.Set(r.Context(), req.Token); err != nil {
		rw.InternalError("Failed to store token", err)
		return
	}
	if !h.deps.Tokens.IsAuthenticated(r.Context()) {
		rw.Unauthorized("Token is already expired")
		return
	}

	// Work queued while signed out can go now.
	h.deps.Reconnect.Reconnect()

	data := map[string]interface{}{"authenticated": true}
	if exp, ok := h.deps.Tokens.ExpiresAt(); ok {
		data["expires_at"] = exp
	}
	rw.Success(data)
}

// DeleteToken signs out.
func (h *Handler) DeleteToken(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if err := h.deps.Tokens.Clear(r.Context()); err != nil {
		rw.InternalError("Failed to clear token", err)
		return
	}
	rw.NoContent()
}

type statusResponse struct {
	intsync.Status
	Authenticated bool  `json:"authenticated"`
	Online        *bool `json:"online,omitempty"`
}

// Status reports the sync state.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:        h.deps.Sync.Status(),
		Authenticated: h.deps.Tokens.IsAuthenticated(r.Context()),
	}
	if h.deps.Connectivity != nil {
		online := h.deps.Connectivity.Online()
		resp.Online = &online
	}
	NewResponseWriter(w, r).Success(resp)
}

// DeadLetters lists the dead-letter ring, oldest first.
func (h *Handler) DeadLetters(w http.ResponseWriter, r *http.Request) {
	records := h.deps.DeadLetters.List()
	if records == nil {
		records = []models.DeadLetterRecord{}
	}
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"capacity": h.deps.DeadLetters.Capacity(),
		"count":    len(records),
		"records":  records,
	})
}

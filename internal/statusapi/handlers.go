// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package statusapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/tomtom215/mapsync/internal/api"
	"github.com/tomtom215/mapsync/internal/logging"
	"github.com/tomtom215/mapsync/internal/models"
	"github.com/tomtom215/mapsync/internal/points"
	"github.com/tomtom215/mapsync/internal/settings"
)

const maxBodyBytes = 1 << 16

type handlers struct {
	deps Deps
}

// ackResult reports whether the server confirmed a locally applied change.
type ackResult struct {
	Acknowledged bool   `json:"acknowledged"`
	Error        string `json:"error,omitempty"`
}

func ack(err error) ackResult {
	if err != nil {
		return ackResult{Error: err.Error()}
	}
	return ackResult{Acknowledged: true}
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, r, map[string]string{"status": "ok"})
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, r, h.deps.Status.Status(r.Context()))
}

// pathID parses the {id} URL parameter. On failure it writes a 400 and
// returns false.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// writeRemoteError maps a failed server round trip onto the envelope.
func writeRemoteError(w http.ResponseWriter, r *http.Request, err error) {
	var he *api.HTTPError
	switch {
	case api.IsNotFound(err):
		writeError(w, r, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case api.IsRejected(err) && errors.As(err, &he):
		writeError(w, r, he.StatusCode, ErrCodeRejected, err.Error())
	case api.IsConnectivity(err):
		writeError(w, r, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg("[status] Request to map server failed")
		writeError(w, r, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	}
}

// writePointResult answers a point mutation: 200 when the server took it,
// 202 when it was queued.
func writePointResult(w http.ResponseWriter, r *http.Request, p models.Point, err error) {
	switch {
	case err == nil:
		writeSuccess(w, r, p)
	case errors.Is(err, points.ErrQueued):
		writeAccepted(w, r, p)
	default:
		writeRemoteError(w, r, err)
	}
}

type newPointRequest struct {
	Latitude    *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude   *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Type        string   `json:"type"`
	Description string   `json:"description" validate:"max=2000"`
}

func (h *handlers) submitPoint(w http.ResponseWriter, r *http.Request) {
	var req newPointRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := h.deps.Points.Submit(r.Context(), models.NewPoint{
		Latitude:    *req.Latitude,
		Longitude:   *req.Longitude,
		Type:        req.Type,
		Description: req.Description,
	})
	writePointResult(w, r, p, err)
}

func (h *handlers) pointAction(action func(Points, context.Context, int64) (models.Point, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		p, err := action(h.deps.Points, r.Context(), id)
		writePointResult(w, r, p, err)
	}
}

func (h *handlers) markRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	writeSuccess(w, r, ack(h.deps.Notifications.MarkAsRead(r.Context(), id)))
}

func (h *handlers) markAllRead(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, r, ack(h.deps.Notifications.MarkAllAsRead(r.Context())))
}

func (h *handlers) dismissPopup(w http.ResponseWriter, r *http.Request) {
	h.deps.Notifications.DismissPopup()
	writeSuccess(w, r, nil)
}

func (h *handlers) dismissBroadcast(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, r, ack(h.deps.Broadcasts.Dismiss(r.Context())))
}

func (h *handlers) deleteBroadcast(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.deps.Broadcasts.Delete(r.Context(), id); err != nil {
		writeRemoteError(w, r, err)
		return
	}
	writeSuccess(w, r, map[string]int64{"deleted": id})
}

func (h *handlers) clearSeenBroadcasts(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Broadcasts.ClearSeen(r.Context()); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("[status] Could not clear seen broadcasts")
		writeError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "could not clear seen broadcasts")
		return
	}
	writeSuccess(w, r, nil)
}

type visibilityRequest struct {
	Visible *bool `json:"visible" validate:"required"`
}

func (h *handlers) setVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.deps.Broadcasts.SetVisible(*req.Visible)
	writeSuccess(w, r, map[string]bool{"visible": *req.Visible})
}

type notificationSettingsRequest struct {
	RealTime *bool `json:"realTime" validate:"required"`
}

func (h *handlers) setNotificationSettings(w http.ResponseWriter, r *http.Request) {
	var req notificationSettingsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	next := settings.NotificationSettings{RealTime: *req.RealTime}
	if err := h.deps.Settings.SetNotificationSettings(r.Context(), next); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("[status] Could not save notification settings")
		writeError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "could not save settings")
		return
	}
	writeSuccess(w, r, next)
}

type retentionRequest struct {
	Days *int `json:"days" validate:"required,gte=0,lte=3650"`
}

func (h *handlers) setRetention(w http.ResponseWriter, r *http.Request) {
	var req retentionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	next := settings.MessageRetention{Days: *req.Days}
	if err := h.deps.Settings.SetRetention(r.Context(), next); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("[status] Could not save retention")
		writeError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "could not save settings")
		return
	}
	writeSuccess(w, r, next)
}

func (h *handlers) setSwipePreferences(w http.ResponseWriter, r *http.Request) {
	var req settings.SwipePreferences
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.deps.Settings.SetSwipePreferences(r.Context(), req); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("[status] Could not save swipe preferences")
		writeError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "could not save settings")
		return
	}
	writeSuccess(w, r, req)
}

var validate = validator.New()

// decodeBody reads a JSON body into v and validates it. On failure it
// writes the error response and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "could not read body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "body must be valid JSON")
		return false
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		msg := err.Error()
		if errors.As(err, &verrs) && len(verrs) > 0 {
			msg = verrs[0].Field() + " is " + verrs[0].Tag()
		}
		writeError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, msg)
		return false
	}
	return true
}

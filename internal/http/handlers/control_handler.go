package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"chargehub/internal/service"
)

// ControlHandler holds endpoints invoked by the user-facing backend.
type ControlHandler struct {
	coordinator *service.Coordinator
	logger      *zap.Logger
}

// NewControlHandler builds handler set.
func NewControlHandler(coordinator *service.Coordinator, logger *zap.Logger) *ControlHandler {
	return &ControlHandler{
		coordinator: coordinator,
		logger:      logger,
	}
}

type sessionStartRequest struct {
	UserID     int64  `json:"user_id"`
	DeviceID   string `json:"device_id"`
	PortNumber int    `json:"port_number"`
	StationID  string `json:"station_id"`
}

type sessionStopRequest struct {
	UserID     int64  `json:"user_id"`
	DeviceID   string `json:"device_id"`
	PortNumber int    `json:"port_number"`
}

// HandleSessionStart handles POST /internal/control/session-start.
func (h *ControlHandler) HandleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req sessionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	if req.PortNumber < 1 {
		writeError(w, http.StatusBadRequest, "port_number must be positive")
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	sessionID, err := h.coordinator.StartSession(r.Context(), service.StartSessionInput{
		DeviceID:   req.DeviceID,
		PortNumber: req.PortNumber,
		UserID:     req.UserID,
		StationID:  req.StationID,
	})
	if err != nil {
		h.respondError(w, "start session failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "session_id": sessionID})
}

// HandleSessionStop handles POST /internal/control/session-stop. Stopping a
// port with no active session succeeds with an empty session_id.
func (h *ControlHandler) HandleSessionStop(w http.ResponseWriter, r *http.Request) {
	var req sessionStopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	if req.PortNumber < 1 {
		writeError(w, http.StatusBadRequest, "port_number must be positive")
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	sessionID, err := h.coordinator.StopSession(r.Context(), service.StopSessionInput{
		DeviceID:   req.DeviceID,
		PortNumber: req.PortNumber,
		UserID:     req.UserID,
	})
	if err != nil {
		h.respondError(w, "stop session failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "session_id": sessionID})
}

func (h *ControlHandler) respondError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, service.ErrPortNotFound):
		writeError(w, http.StatusNotFound, "port not found")
	case errors.Is(err, service.ErrPortOccupied):
		writeError(w, http.StatusConflict, "port is held by another user")
	case errors.Is(err, service.ErrNotSessionOwner):
		writeError(w, http.StatusForbidden, "session belongs to another user")
	case errors.Is(err, service.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	default:
		h.logger.Error(msg, zap.Error(err))
		writeError(w, http.StatusInternalServerError, msg)
	}
}

package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"ofsync/internal/domain/notification"
)

const maxBodySize = 1 << 20 // 1 MB

type DeviceRegistrar interface {
	RegisterDevice(ctx context.Context, params notification.CreateDeviceTokenParams) (*notification.DeviceToken, error)
}

type NotificationHandler struct {
	devices DeviceRegistrar
	logger  *slog.Logger
}

func NewNotificationHandler(devices DeviceRegistrar, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{devices: devices, logger: logger}
}

type RegisterDeviceRequest struct {
	UserID     int64  `json:"userId"`
	Token      string `json:"token"`
	DeviceType string `json:"deviceType"`
}

// HandleRegisterDevice handles POST /api/admin/devices. Consent lifecycle pushes
// go to every active device of the consent's user.
func (h *NotificationHandler) HandleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	params := notification.CreateDeviceTokenParams{
		UserID:     req.UserID,
		Token:      req.Token,
		DeviceType: req.DeviceType,
	}
	if err := params.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := h.devices.RegisterDevice(r.Context(), params)
	if err != nil {
		writeDomainError(w, r, h.logger, "Failed to register device", err)
		return
	}

	writeJSON(w, http.StatusCreated, token)
}

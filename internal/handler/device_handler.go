// internal/handler/device_handler.go
package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	appErrors "github.com/eventdesk/eventdesk-backend/internal/errors"
	"github.com/eventdesk/eventdesk-backend/internal/registry"
	"github.com/eventdesk/eventdesk-backend/internal/service"
)

var validate = validator.New()

// DeviceHandler holds the dependencies for device-related HTTP handlers.
type DeviceHandler struct {
	Service *service.NotificationService
}

func NewDeviceHandler(svc *service.NotificationService) *DeviceHandler {
	return &DeviceHandler{Service: svc}
}

type registerDeviceRequest struct {
	Token        string  `json:"token" validate:"required"`
	Platform     string  `json:"platform" validate:"required,oneof=ios android web"`
	AppVersion   *string `json:"app_version"`
	UserID       *string `json:"user_id"`
	IsTestDevice bool    `json:"is_test_device"`
}

// RegisterDeviceHandler upserts a push token. Re-registering an existing
// token refreshes its metadata instead of creating a duplicate, so the
// response is 200 rather than 201.
func (h *DeviceHandler) RegisterDeviceHandler(w http.ResponseWriter, r *http.Request) {
	var payload registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := validate.Struct(payload); err != nil {
		http.Error(w, "invalid device registration: "+err.Error(), http.StatusBadRequest)
		return
	}

	device, err := h.Service.RegisterDevice(registry.RegisterInput{
		Token:        payload.Token,
		Platform:     payload.Platform,
		AppVersion:   payload.AppVersion,
		UserID:       payload.UserID,
		IsTestDevice: payload.IsTestDevice,
	})
	if err != nil {
		writeDeviceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(device)
}

type sendTestRequest struct {
	Title   string `json:"title" validate:"required"`
	Message string `json:"message" validate:"required"`
}

// SendTestHandler pushes a one-off notification to a single device without
// creating a campaign.
func (h *DeviceHandler) SendTestHandler(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	var payload sendTestRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := validate.Struct(payload); err != nil {
		http.Error(w, "invalid test notification: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Service.SendTest(r.Context(), payload.Title, payload.Message, deviceID); err != nil {
		writeDeviceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"device_id": deviceID,
		"status":    "delivered",
	})
}

// ListTestDevicesHandler returns the registered test devices, most recently
// active first.
func (h *DeviceHandler) ListTestDevicesHandler(w http.ResponseWriter, r *http.Request) {
	devices, err := h.Service.Registry.ListTestDevices()
	if err != nil {
		writeDeviceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": devices}); err != nil {
		log.Println("failed to encode response:", err)
	}
}

func writeDeviceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case appErrors.IsValidation(err):
		status = http.StatusBadRequest
	case appErrors.IsNotFound(err):
		status = http.StatusNotFound
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// internal/controller/notification_controller.go
package controller

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/eventdesk/eventdesk-backend/internal/errors"
	"github.com/eventdesk/eventdesk-backend/internal/service"
)

// NotificationController exposes campaign lifecycle and stats over HTTP. All
// domain decisions live in the service; handlers only translate requests,
// responses and error classes.
type NotificationController struct {
	Service *service.NotificationService
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Println("failed to encode response:", err)
	}
}

// writeError maps service error classes onto HTTP statuses: validation 400,
// scheduling conflicts 422, unknown resources 404, everything else 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case appErrors.IsValidation(err):
		status = http.StatusBadRequest
	case appErrors.IsScheduling(err):
		status = http.StatusUnprocessableEntity
	case appErrors.IsNotFound(err):
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (c *NotificationController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title       string         `json:"title"`
		Message     string         `json:"message"`
		ScheduledAt *time.Time     `json:"scheduled_at"`
		Segments    []string       `json:"segments"`
		Metadata    map[string]any `json:"metadata"`
		CreatedBy   string         `json:"created_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	campaign, err := c.Service.CreateCampaign(service.CreateCampaignInput{
		Title:       body.Title,
		Message:     body.Message,
		ScheduledAt: body.ScheduledAt,
		Segments:    body.Segments,
		Metadata:    body.Metadata,
		CreatedBy:   body.CreatedBy,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (c *NotificationController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	campaign, err := c.Service.Campaigns.GetByID(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (c *NotificationController) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Title       *string        `json:"title"`
		Message     *string        `json:"message"`
		ScheduledAt *time.Time     `json:"scheduled_at"`
		Segments    *[]string      `json:"segments"`
		Metadata    map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	campaign, err := c.Service.UpdateCampaign(id, service.CampaignPatch{
		Title:       body.Title,
		Message:     body.Message,
		ScheduledAt: body.ScheduledAt,
		Segments:    body.Segments,
		Metadata:    body.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (c *NotificationController) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	campaign, err := c.Service.CancelScheduled(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (c *NotificationController) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := c.Service.DeleteCampaign(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *NotificationController) SendNow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	campaign, err := c.Service.SendNow(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"campaign_id": campaign.ID,
		"status":      "dispatched",
	})
}

func (c *NotificationController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")
	createdBy := r.URL.Query().Get("created_by")

	campaigns, pagination, err := c.Service.ListCampaigns(page, pageSize, status, createdBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

// GetHistory lists completed campaigns with optional date range and search
// filters. Dates are RFC 3339.
func (c *NotificationController) GetHistory(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	createdBy := r.URL.Query().Get("created_by")
	search := r.URL.Query().Get("search")

	var from, to *time.Time
	if s := r.URL.Query().Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "invalid from date", http.StatusBadRequest)
			return
		}
		from = &t
	}
	if s := r.URL.Query().Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "invalid to date", http.StatusBadRequest)
			return
		}
		to = &t
	}

	campaigns, pagination, err := c.Service.GetHistory(page, pageSize, from, to, createdBy, search)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *NotificationController) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.Service.GetStats()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

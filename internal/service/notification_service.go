// internal/service/notification_service.go
package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/eventdesk/eventdesk-backend/internal/errors"
	"github.com/eventdesk/eventdesk-backend/internal/model"
	"github.com/eventdesk/eventdesk-backend/internal/queue"
	"github.com/eventdesk/eventdesk-backend/internal/registry"
	"github.com/eventdesk/eventdesk-backend/internal/repository"
)

// NotificationService is the orchestrator: the only entry point other
// subsystems call. It owns campaign lifecycle, device registration and
// statistics, and wires the store, registry, scheduler and worker together.
type NotificationService struct {
	Campaigns repository.CampaignRepositoryInterface
	Registry  *registry.DeviceRegistry
	Scheduler queue.Scheduler
	Worker    *DeliveryWorker
}

type CreateCampaignInput struct {
	Title       string
	Message     string
	ScheduledAt *time.Time
	Segments    []string
	Metadata    map[string]any
	CreatedBy   string
}

// CampaignPatch updates individual campaign fields; nil means unchanged.
type CampaignPatch struct {
	Title       *string
	Message     *string
	ScheduledAt *time.Time
	Segments    *[]string
	Metadata    map[string]any
}

type Stats struct {
	TotalSent      int     `json:"total_sent"`
	TotalFailed    int     `json:"total_failed"`
	TotalScheduled int     `json:"total_scheduled"`
	TotalDevices   int     `json:"total_devices"`
	DeliveryRate   float64 `json:"delivery_rate"`
}

func validateContent(title, message string) error {
	if title == "" {
		return appErrors.NewValidation("title", "must not be empty")
	}
	if len([]rune(title)) > model.MaxTitleLength {
		return appErrors.NewValidation("title", fmt.Sprintf("must be at most %d characters", model.MaxTitleLength))
	}
	if message == "" {
		return appErrors.NewValidation("message", "must not be empty")
	}
	if len([]rune(message)) > model.MaxMessageLength {
		return appErrors.NewValidation("message", fmt.Sprintf("must be at most %d characters", model.MaxMessageLength))
	}
	return nil
}

// CreateCampaign persists a new campaign in draft, or in scheduled with a
// delivery task enqueued when a future scheduledAt is given. The device
// count is a snapshot of the current fan-out population, not pinned at
// delivery time.
func (s *NotificationService) CreateCampaign(in CreateCampaignInput) (*model.Campaign, error) {
	if err := validateContent(in.Title, in.Message); err != nil {
		return nil, err
	}
	if in.CreatedBy == "" {
		return nil, appErrors.NewValidation("created_by", "must not be empty")
	}

	status := model.StatusDraft
	if in.ScheduledAt != nil {
		if !in.ScheduledAt.After(time.Now()) {
			return nil, appErrors.NewScheduling("scheduled_at is in the past")
		}
		status = model.StatusScheduled
	}

	deviceCount, err := s.Registry.Count(true)
	if err != nil {
		return nil, err
	}

	c := &model.Campaign{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Message:     in.Message,
		Status:      status,
		ScheduledAt: in.ScheduledAt,
		DeviceCount: deviceCount,
		Segments:    in.Segments,
		CreatedBy:   in.CreatedBy,
		Metadata:    in.Metadata,
	}
	if err := s.Campaigns.Create(c); err != nil {
		return nil, err
	}

	if c.Status == model.StatusScheduled {
		if err := s.Scheduler.Enqueue(c.ID, *c.ScheduledAt); err != nil {
			// Revert so no scheduled row exists without a backing task.
			c.Status = model.StatusDraft
			c.ScheduledAt = nil
			if updErr := s.Campaigns.Update(c); updErr != nil {
				log.Printf("failed to revert campaign %s to draft: %v", c.ID, updErr)
			}
			return nil, err
		}
	}
	return c, nil
}

// UpdateCampaign applies field updates. A scheduledAt change on a scheduled
// campaign cancels the old task and enqueues exactly one new one.
func (s *NotificationService) UpdateCampaign(id string, p CampaignPatch) (*model.Campaign, error) {
	c, err := s.Campaigns.GetByID(id)
	if err != nil {
		return nil, err
	}

	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Message != nil {
		c.Message = *p.Message
	}
	if err := validateContent(c.Title, c.Message); err != nil {
		return nil, err
	}
	if p.Segments != nil {
		c.Segments = *p.Segments
	}
	if p.Metadata != nil {
		c.Metadata = p.Metadata
	}

	reschedule := false
	if p.ScheduledAt != nil && (c.ScheduledAt == nil || !p.ScheduledAt.Equal(*c.ScheduledAt)) {
		if c.IsTerminal() || c.Status == model.StatusSending {
			return nil, appErrors.NewScheduling("cannot reschedule a campaign in status " + c.Status)
		}
		if !p.ScheduledAt.After(time.Now()) {
			return nil, appErrors.NewScheduling("scheduled_at is in the past")
		}
		if c.Status == model.StatusScheduled {
			s.Scheduler.CancelAllFor(id)
		}
		c.ScheduledAt = p.ScheduledAt
		c.Status = model.StatusScheduled
		reschedule = true
	}

	if err := s.Campaigns.Update(c); err != nil {
		return nil, err
	}
	if reschedule {
		if err := s.Scheduler.Enqueue(id, *c.ScheduledAt); err != nil {
			// The old task is already cancelled; leave the campaign in draft
			// rather than scheduled with nothing backing it.
			c.Status = model.StatusDraft
			c.ScheduledAt = nil
			if updErr := s.Campaigns.Update(c); updErr != nil {
				log.Printf("failed to revert campaign %s to draft: %v", c.ID, updErr)
			}
			return nil, err
		}
	}
	return c, nil
}

// CancelScheduled removes any pending delivery tasks and resets the campaign
// to draft. Cancelling a campaign that is not scheduled is an error-free
// no-op. A task already handed to the worker may still complete; that race
// is accepted rather than locked around.
func (s *NotificationService) CancelScheduled(id string) (*model.Campaign, error) {
	c, err := s.Campaigns.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.StatusScheduled {
		return c, nil
	}

	s.Scheduler.CancelAllFor(id)
	c.Status = model.StatusDraft
	c.ScheduledAt = nil
	if err := s.Campaigns.Update(c); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCampaign removes the record, cancelling any pending task first.
func (s *NotificationService) DeleteCampaign(id string) error {
	c, err := s.Campaigns.GetByID(id)
	if err != nil {
		return err
	}
	if c.Status == model.StatusScheduled {
		s.Scheduler.CancelAllFor(id)
	}
	return s.Campaigns.Delete(id)
}

// ListCampaigns returns a page of campaigns, newest first.
func (s *NotificationService) ListCampaigns(page, pageSize int, status, createdBy string) ([]model.Campaign, map[string]int, error) {
	page, pageSize = clampPage(page, pageSize)

	filter := repository.CampaignFilter{CreatedBy: createdBy}
	if status != "" {
		filter.Statuses = []string{status}
	}
	return s.listPage(filter, page, pageSize)
}

// GetHistory returns completed campaigns (sent or failed), newest first,
// optionally narrowed by date range, creator and a case-insensitive
// substring search over title and message.
func (s *NotificationService) GetHistory(page, pageSize int, from, to *time.Time, createdBy, search string) ([]model.Campaign, map[string]int, error) {
	page, pageSize = clampPage(page, pageSize)

	filter := repository.CampaignFilter{
		Statuses:  []string{model.StatusSent, model.StatusFailed},
		CreatedBy: createdBy,
		From:      from,
		To:        to,
		Search:    search,
	}
	return s.listPage(filter, page, pageSize)
}

func (s *NotificationService) listPage(filter repository.CampaignFilter, page, pageSize int) ([]model.Campaign, map[string]int, error) {
	offset := (page - 1) * pageSize
	ptrs, total, err := s.Campaigns.List(filter, offset, pageSize)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return campaigns, pagination, nil
}

func clampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

// GetStats aggregates campaign outcomes and registry size. The delivery rate
// is the share of completed campaigns that reached sent, 0 when none
// completed yet.
func (s *NotificationService) GetStats() (*Stats, error) {
	sent, err := s.Campaigns.CountByStatus(model.StatusSent)
	if err != nil {
		return nil, err
	}
	failed, err := s.Campaigns.CountByStatus(model.StatusFailed)
	if err != nil {
		return nil, err
	}
	scheduled, err := s.Campaigns.CountByStatus(model.StatusScheduled)
	if err != nil {
		return nil, err
	}
	devices, err := s.Registry.Count(false)
	if err != nil {
		return nil, err
	}

	rate := 0.0
	if sent+failed > 0 {
		rate = float64(sent) / float64(sent+failed) * 100
	}
	return &Stats{
		TotalSent:      sent,
		TotalFailed:    failed,
		TotalScheduled: scheduled,
		TotalDevices:   devices,
		DeliveryRate:   rate,
	}, nil
}

// RegisterDevice upserts a device token; see registry.Register.
func (s *NotificationService) RegisterDevice(in registry.RegisterInput) (*model.DeviceToken, error) {
	return s.Registry.Register(in)
}

// SendTest delivers directly to one named device, test flag or not. No
// campaign record is created and no counters move.
func (s *NotificationService) SendTest(ctx context.Context, title, message, deviceID string) error {
	if err := validateContent(title, message); err != nil {
		return err
	}
	d, err := s.Registry.FindByID(deviceID)
	if err != nil {
		return err
	}
	return s.Worker.SendToDevice(ctx, d, title, message)
}

// SendNow fires delivery of a draft campaign immediately, through the same
// sending -> sent|failed transitions as a scheduled send. The delivery runs
// in the background; the call returns as soon as it is dispatched.
func (s *NotificationService) SendNow(id string) (*model.Campaign, error) {
	c, err := s.Campaigns.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c.IsTerminal() || c.Status == model.StatusSending {
		return nil, appErrors.NewScheduling("cannot send a campaign in status " + c.Status)
	}
	if c.Status == model.StatusScheduled {
		s.Scheduler.CancelAllFor(id)
	}

	go func() {
		if err := s.Worker.Deliver(context.Background(), id); err != nil {
			log.Printf("immediate delivery of campaign %s failed: %v", id, err)
		}
	}()
	return c, nil
}

package service_test

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eventdesk/eventdesk-backend/internal/crypto"
	appErrors "github.com/eventdesk/eventdesk-backend/internal/errors"
	"github.com/eventdesk/eventdesk-backend/internal/model"
	"github.com/eventdesk/eventdesk-backend/internal/registry"
	"github.com/eventdesk/eventdesk-backend/internal/repository"
	"github.com/eventdesk/eventdesk-backend/internal/service"
)

// FakeCampaignRepo keeps campaigns in memory and records every status write
// so tests can assert transition ordering.
type FakeCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[string]*model.Campaign
	StatusLog []string
	GetCalls  int
	clock     time.Time
}

func NewFakeCampaignRepo() *FakeCampaignRepo {
	return &FakeCampaignRepo{campaigns: map[string]*model.Campaign{}, clock: time.Now()}
}

// nextTime hands out strictly increasing creation timestamps so newest-first
// ordering is deterministic even within one test.
func (f *FakeCampaignRepo) nextTime() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *FakeCampaignRepo) Create(c *model.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.Status == "" {
		c.Status = model.StatusDraft
	}
	c.CreatedAt = f.nextTime()
	copied := *c
	f.campaigns[c.ID] = &copied
	return nil
}

func (f *FakeCampaignRepo) GetByID(id string) (*model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetCalls++
	c, ok := f.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	copied := *c
	return &copied, nil
}

func (f *FakeCampaignRepo) Update(c *model.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.campaigns[c.ID]
	if !ok {
		return appErrors.NewCampaignNotFound(c.ID)
	}
	copied := *c
	copied.CreatedAt = stored.CreatedAt
	f.campaigns[c.ID] = &copied
	return nil
}

func (f *FakeCampaignRepo) UpdateStatus(id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Status = status
	f.StatusLog = append(f.StatusLog, status)
	return nil
}

func (f *FakeCampaignRepo) UpdateDeliveryResult(id, status string, sentAt time.Time, delivered, failed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Status = status
	c.SentAt = &sentAt
	c.DeliveredCount = delivered
	c.FailedCount = failed
	f.StatusLog = append(f.StatusLog, status)
	return nil
}

func (f *FakeCampaignRepo) List(filter repository.CampaignFilter, offset, limit int) ([]*model.Campaign, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	matched := []*model.Campaign{}
	for _, c := range f.campaigns {
		if len(filter.Statuses) > 0 && !contains(filter.Statuses, c.Status) {
			continue
		}
		if filter.CreatedBy != "" && c.CreatedBy != filter.CreatedBy {
			continue
		}
		if filter.From != nil && c.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && c.CreatedAt.After(*filter.To) {
			continue
		}
		if filter.Search != "" {
			needle := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(c.Title), needle) &&
				!strings.Contains(strings.ToLower(c.Message), needle) {
				continue
			}
		}
		copied := *c
		matched = append(matched, &copied)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (f *FakeCampaignRepo) CountByStatus(status string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, c := range f.campaigns {
		if c.Status == status {
			count++
		}
	}
	return count, nil
}

func (f *FakeCampaignRepo) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.campaigns[id]; !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	delete(f.campaigns, id)
	return nil
}

func (f *FakeCampaignRepo) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.campaigns)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// FakeDeviceRepo is the in-memory device table, unique by token hash.
type FakeDeviceRepo struct {
	mu      sync.Mutex
	byHash  map[string]*model.DeviceToken
	ListErr error
	clock   time.Time
}

func NewFakeDeviceRepo() *FakeDeviceRepo {
	return &FakeDeviceRepo{byHash: map[string]*model.DeviceToken{}, clock: time.Now()}
}

func (f *FakeDeviceRepo) Upsert(d *model.DeviceToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = f.clock.Add(time.Second)
	if existing, ok := f.byHash[d.TokenHash]; ok {
		existing.UserID = d.UserID
		existing.TokenEnc = d.TokenEnc
		existing.Platform = d.Platform
		existing.AppVersion = d.AppVersion
		existing.IsTestDevice = d.IsTestDevice
		existing.LastActive = f.clock
		*d = *existing
		return nil
	}
	d.CreatedAt = f.clock
	d.LastActive = f.clock
	copied := *d
	f.byHash[d.TokenHash] = &copied
	return nil
}

func (f *FakeDeviceRepo) GetByID(id string) (*model.DeviceToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.byHash {
		if d.ID == id {
			copied := *d
			return &copied, nil
		}
	}
	return nil, appErrors.NewDeviceNotFound(id)
}

func (f *FakeDeviceRepo) List(excludeTest bool) ([]*model.DeviceToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := []*model.DeviceToken{}
	for _, d := range f.byHash {
		if excludeTest && d.IsTestDevice {
			continue
		}
		copied := *d
		out = append(out, &copied)
	}
	return out, nil
}

func (f *FakeDeviceRepo) ListTestDevices() ([]*model.DeviceToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.DeviceToken{}
	for _, d := range f.byHash {
		if d.IsTestDevice {
			copied := *d
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActive.After(out[j].LastActive) })
	return out, nil
}

func (f *FakeDeviceRepo) Count(excludeTest bool) (int, error) {
	devices, err := f.List(excludeTest)
	if err != nil {
		return 0, err
	}
	return len(devices), nil
}

// RecordingScheduler records enqueues and cancels and tracks which tasks
// would still be live.
type RecordingScheduler struct {
	mu         sync.Mutex
	Enqueues   []ScheduledEnqueue
	Cancels    []string
	EnqueueErr error
	active     map[string]int
}

type ScheduledEnqueue struct {
	CampaignID string
	FireAt     time.Time
}

func NewRecordingScheduler() *RecordingScheduler {
	return &RecordingScheduler{active: map[string]int{}}
}

func (s *RecordingScheduler) Enqueue(campaignID string, fireAt time.Time) error {
	if s.EnqueueErr != nil {
		return s.EnqueueErr
	}
	if !fireAt.After(time.Now()) {
		return appErrors.NewScheduling("fire time is in the past")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Enqueues = append(s.Enqueues, ScheduledEnqueue{CampaignID: campaignID, FireAt: fireAt})
	s.active[campaignID]++
	return nil
}

func (s *RecordingScheduler) CancelAllFor(campaignID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Cancels = append(s.Cancels, campaignID)
	s.active[campaignID] = 0
}

func (s *RecordingScheduler) ActiveFor(campaignID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[campaignID]
}

// FakeGateway records sends; tokens in FailTokens are rejected.
type FakeGateway struct {
	mu         sync.Mutex
	Sent       []SentPush
	FailTokens map[string]bool
}

type SentPush struct {
	Platform string
	Token    string
	Title    string
	Message  string
}

func (g *FakeGateway) Send(ctx context.Context, platform, token, title, message string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Sent = append(g.Sent, SentPush{Platform: platform, Token: token, Title: title, Message: message})
	if g.FailTokens[token] {
		return errors.New("gateway rejected token")
	}
	return nil
}

func (g *FakeGateway) SentCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Sent)
}

// env bundles a fully wired service over the in-memory fakes.
type env struct {
	Service   *service.NotificationService
	Campaigns *FakeCampaignRepo
	Devices   *FakeDeviceRepo
	Scheduler *RecordingScheduler
	Gateway   *FakeGateway
	Registry  *registry.DeviceRegistry
	Worker    *service.DeliveryWorker
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cipher, err := crypto.NewTokenCipher(bytes.Repeat([]byte{0x11}, 32))
	require.NoError(t, err)

	campaigns := NewFakeCampaignRepo()
	devices := NewFakeDeviceRepo()
	sched := NewRecordingScheduler()
	gw := &FakeGateway{FailTokens: map[string]bool{}}
	reg := registry.NewDeviceRegistry(devices, cipher)
	worker := service.NewDeliveryWorker(campaigns, reg, gw)

	return &env{
		Service: &service.NotificationService{
			Campaigns: campaigns,
			Registry:  reg,
			Scheduler: sched,
			Worker:    worker,
		},
		Campaigns: campaigns,
		Devices:   devices,
		Scheduler: sched,
		Gateway:   gw,
		Registry:  reg,
		Worker:    worker,
	}
}

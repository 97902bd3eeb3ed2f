// internal/service/delivery_worker.go
package service

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/eventdesk/eventdesk-backend/internal/gateway"
	"github.com/eventdesk/eventdesk-backend/internal/metrics"
	"github.com/eventdesk/eventdesk-backend/internal/model"
	"github.com/eventdesk/eventdesk-backend/internal/registry"
	"github.com/eventdesk/eventdesk-backend/internal/repository"
)

// DeliveryWorker fans a campaign out to the device registry and records the
// aggregate outcome on the campaign record.
type DeliveryWorker struct {
	Campaigns repository.CampaignRepositoryInterface
	Registry  *registry.DeviceRegistry
	Gateway   gateway.PushGateway

	// MaxInFlight bounds concurrent gateway sends, Limiter the overall send
	// rate, PerDeviceTimeout one unresponsive device.
	MaxInFlight      int
	PerDeviceTimeout time.Duration
	Limiter          *rate.Limiter
}

func NewDeliveryWorker(campaigns repository.CampaignRepositoryInterface, reg *registry.DeviceRegistry, gw gateway.PushGateway) *DeliveryWorker {
	return &DeliveryWorker{
		Campaigns:        campaigns,
		Registry:         reg,
		Gateway:          gw,
		MaxInFlight:      16,
		PerDeviceTimeout: 10 * time.Second,
		Limiter:          rate.NewLimiter(rate.Limit(200), 50),
	}
}

// Deliver runs one delivery attempt for the campaign.
//
// Individual device failures are counted and never abort the fan-out; the
// campaign still ends up sent. Only structural failures (campaign missing,
// registry or store unreachable) return an error, after persisting the
// failed status where a record exists, so the scheduler's retry policy takes
// over. A campaign already sent is skipped so a duplicate or stale fire
// cannot double-count; a failed one is retried as-is.
func (w *DeliveryWorker) Deliver(ctx context.Context, campaignID string) error {
	c, err := w.Campaigns.GetByID(campaignID)
	if err != nil {
		return err
	}
	if c.Status == model.StatusSent {
		log.Println("campaign already sent, skipping delivery:", campaignID)
		return nil
	}

	// Persist sending before any fan-out so concurrent readers never observe
	// transitions out of order.
	if err := w.Campaigns.UpdateStatus(campaignID, model.StatusSending); err != nil {
		return err
	}

	devices, err := w.Registry.ListActive(true)
	if err != nil {
		if updErr := w.Campaigns.UpdateStatus(campaignID, model.StatusFailed); updErr != nil {
			log.Println("failed to mark campaign failed:", updErr)
		}
		metrics.CampaignsCompleted.WithLabelValues(model.StatusFailed).Inc()
		return err
	}

	var delivered, failed atomic.Int64
	sem := make(chan struct{}, w.MaxInFlight)
	var wg sync.WaitGroup

	for _, d := range devices {
		wg.Add(1)
		sem <- struct{}{}
		go func(d *model.DeviceToken) {
			defer wg.Done()
			defer func() { <-sem }()

			if w.Limiter != nil {
				if err := w.Limiter.Wait(ctx); err != nil {
					failed.Add(1)
					metrics.DevicesFailed.Inc()
					return
				}
			}

			if err := w.SendToDevice(ctx, d, c.Title, c.Message); err != nil {
				failed.Add(1)
				metrics.DevicesFailed.Inc()
				log.Printf("send to device %s failed: %v", d.ID, err)
				return
			}
			delivered.Add(1)
			metrics.DevicesDelivered.Inc()
		}(d)
	}
	wg.Wait()

	err = w.Campaigns.UpdateDeliveryResult(campaignID, model.StatusSent, time.Now(),
		int(delivered.Load()), int(failed.Load()))
	if err != nil {
		return err
	}

	metrics.CampaignsCompleted.WithLabelValues(model.StatusSent).Inc()
	log.Printf("campaign %s delivered: %d ok, %d failed of %d devices",
		campaignID, delivered.Load(), failed.Load(), len(devices))
	return nil
}

// SendToDevice delivers one notification to one device. The token is
// decrypted here, immediately before the gateway call, and nowhere else.
func (w *DeliveryWorker) SendToDevice(ctx context.Context, d *model.DeviceToken, title, message string) error {
	token, err := w.Registry.DecryptToken(d)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, w.PerDeviceTimeout)
	defer cancel()
	return w.Gateway.Send(ctx, d.Platform, token, title, message)
}

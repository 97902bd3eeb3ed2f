package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/eventdesk/eventdesk-backend/internal/errors"
	"github.com/eventdesk/eventdesk-backend/internal/model"
	"github.com/eventdesk/eventdesk-backend/internal/queue"
)

func TestDeliverCountsAgainstLiveNonTestRegistry(t *testing.T) {
	e := newEnv(t)
	registerDevice(t, e, "prod-1", false)
	registerDevice(t, e, "prod-2", false)
	registerDevice(t, e, "prod-3", false)
	registerDevice(t, e, "test-1", true)
	e.Gateway.FailTokens["prod-2"] = true

	c, err := e.Service.CreateCampaign(draftInput())
	require.NoError(t, err)

	require.NoError(t, e.Worker.Deliver(context.Background(), c.ID))

	got, err := e.Campaigns.GetByID(c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, got.Status)
	assert.Equal(t, 2, got.DeliveredCount)
	assert.Equal(t, 1, got.FailedCount)
	assert.Equal(t, 3, got.DeliveredCount+got.FailedCount, "accounting covers every non-test device")
	assert.NotNil(t, got.SentAt)

	for _, push := range e.Gateway.Sent {
		assert.NotEqual(t, "test-1", push.Token, "test devices are excluded from fan-out")
	}
}

func TestDeliverWritesSendingBeforeSent(t *testing.T) {
	e := newEnv(t)
	registerDevice(t, e, "prod-1", false)

	c, err := e.Service.CreateCampaign(draftInput())
	require.NoError(t, err)
	require.NoError(t, e.Worker.Deliver(context.Background(), c.ID))

	assert.Equal(t, []string{model.StatusSending, model.StatusSent}, e.Campaigns.StatusLog)
}

func TestDeliverPartialFailureStillSent(t *testing.T) {
	e := newEnv(t)
	registerDevice(t, e, "prod-1", false)
	e.Gateway.FailTokens["prod-1"] = true

	c, err := e.Service.CreateCampaign(draftInput())
	require.NoError(t, err)

	require.NoError(t, e.Worker.Deliver(context.Background(), c.ID),
		"device failures are tracked, not propagated")

	got, err := e.Campaigns.GetByID(c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, got.Status)
	assert.Equal(t, 0, got.DeliveredCount)
	assert.Equal(t, 1, got.FailedCount)
}

func TestDeliverMissingCampaignIsStructural(t *testing.T) {
	e := newEnv(t)
	err := e.Worker.Deliver(context.Background(), "no-such-campaign")
	assert.True(t, appErrors.IsNotFound(err))
}

func TestDeliverRegistryUnavailableMarksFailed(t *testing.T) {
	e := newEnv(t)
	c, err := e.Service.CreateCampaign(draftInput())
	require.NoError(t, err)
	e.Devices.ListErr = errors.New("registry unreachable")

	err = e.Worker.Deliver(context.Background(), c.ID)
	assert.Error(t, err, "structural failures propagate to the retry mechanism")

	got, err := e.Campaigns.GetByID(c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, 0, got.DeliveredCount)
}

func TestDeliverSkipsAlreadySentCampaign(t *testing.T) {
	e := newEnv(t)
	registerDevice(t, e, "prod-1", false)
	c, err := e.Service.CreateCampaign(draftInput())
	require.NoError(t, err)
	require.NoError(t, e.Campaigns.UpdateStatus(c.ID, model.StatusSent))

	require.NoError(t, e.Worker.Deliver(context.Background(), c.ID))
	assert.Equal(t, 0, e.Gateway.SentCount())
}

// Scheduled end to end: create with a near-future fire time against a real
// in-memory scheduler and watch the campaign travel scheduled -> sending ->
// sent with full accounting.
func TestScheduledDeliveryEndToEnd(t *testing.T) {
	e := newEnv(t)
	registerDevice(t, e, "prod-1", false)
	registerDevice(t, e, "prod-2", false)

	sched := queue.NewInMemoryScheduler(func(id string) error {
		return e.Worker.Deliver(context.Background(), id)
	})
	sched.BaseDelay = 5 * time.Millisecond
	e.Service.Scheduler = sched

	fireAt := time.Now().Add(40 * time.Millisecond)
	in := draftInput()
	in.ScheduledAt = &fireAt
	c, err := e.Service.CreateCampaign(in)
	require.NoError(t, err)
	require.Equal(t, model.StatusScheduled, c.Status)

	require.Eventually(t, func() bool {
		got, err := e.Campaigns.GetByID(c.ID)
		return err == nil && got.Status == model.StatusSent
	}, 2*time.Second, 5*time.Millisecond)

	got, err := e.Campaigns.GetByID(c.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.SentAt)
	assert.Equal(t, 2, got.DeliveredCount)
	assert.Equal(t, 0, got.FailedCount)
	assert.Contains(t, e.Campaigns.StatusLog, model.StatusSending)
}

// A campaign deleted between enqueue and firing: every attempt fails with
// not-found and the scheduler gives up after three.
func TestDeletedCampaignExhaustsRetries(t *testing.T) {
	e := newEnv(t)

	sched := queue.NewInMemoryScheduler(func(id string) error {
		return e.Worker.Deliver(context.Background(), id)
	})
	sched.BaseDelay = 5 * time.Millisecond
	e.Service.Scheduler = sched

	fireAt := time.Now().Add(30 * time.Millisecond)
	in := draftInput()
	in.ScheduledAt = &fireAt
	c, err := e.Service.CreateCampaign(in)
	require.NoError(t, err)

	// Delete the row out from under the task, keeping the timer alive.
	require.NoError(t, e.Campaigns.Delete(c.ID))
	before := e.Campaigns.GetCalls

	time.Sleep(500 * time.Millisecond)
	attempts := e.Campaigns.GetCalls - before
	assert.Equal(t, 3, attempts, "exactly three lookups, one per attempt")

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, attempts, e.Campaigns.GetCalls-before, "no further retries after exhaustion")
}

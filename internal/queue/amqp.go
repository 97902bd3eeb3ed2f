package queue

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/streadway/amqp"

	appErrors "github.com/eventdesk/eventdesk-backend/internal/errors"
)

const (
	// DeliveryQueue is consumed by cmd/worker.
	DeliveryQueue = "notification_sends"
	// delayQueue holds not-yet-due tasks; expired messages dead-letter into
	// DeliveryQueue.
	delayQueue = "notification_delays"

	// RetryHeader carries the attempt count across requeues.
	RetryHeader = "x-retry-count"
	// MaxDeliveryAttempts bounds retries per fired task, matching the
	// in-memory scheduler.
	MaxDeliveryAttempts = 3
)

// DeliveryTask is the wire payload for one scheduled delivery. FireAt lets
// the consumer detect stale tasks after a cancel or reschedule: a broker
// message cannot be withdrawn, so cancellation is enforced at consume time.
type DeliveryTask struct {
	CampaignID string    `json:"campaign_id"`
	FireAt     time.Time `json:"fire_at"`
}

// AMQPScheduler implements Scheduler on RabbitMQ using per-message TTL plus
// a dead-letter exchange for the delay.
type AMQPScheduler struct {
	ch *amqp.Channel
}

func NewAMQPScheduler(conn *amqp.Connection) (*AMQPScheduler, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := DeclareTopology(ch); err != nil {
		return nil, err
	}
	return &AMQPScheduler{ch: ch}, nil
}

// DeclareTopology declares the delay and delivery queues. Shared with
// cmd/worker so either side can start first.
func DeclareTopology(ch *amqp.Channel) error {
	_, err := ch.QueueDeclare(
		DeliveryQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return err
	}
	_, err = ch.QueueDeclare(
		delayQueue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": DeliveryQueue,
		},
	)
	return err
}

func (s *AMQPScheduler) Enqueue(campaignID string, fireAt time.Time) error {
	delay := time.Until(fireAt)
	if delay <= 0 {
		return appErrors.NewScheduling("fire time is in the past")
	}
	task := DeliveryTask{CampaignID: campaignID, FireAt: fireAt}
	return s.publishDelayed(task, delay, 0)
}

// CancelAllFor is a no-op for the broker backend: published messages cannot
// be removed. The consumer skips any task whose campaign is no longer
// scheduled for the task's fire time.
func (s *AMQPScheduler) CancelAllFor(campaignID string) {}

// Retry re-publishes a failed task with backoff and an incremented attempt
// header. Returns false when attempts are exhausted.
func (s *AMQPScheduler) Retry(task DeliveryTask, attempt int) (bool, error) {
	if attempt >= MaxDeliveryAttempts {
		return false, nil
	}
	// 5s, 10s for attempts 2 and 3
	backoff := 5 * time.Second << (attempt - 1)
	if err := s.publishDelayed(task, backoff, attempt); err != nil {
		return false, err
	}
	return true, nil
}

func (s *AMQPScheduler) publishDelayed(task DeliveryTask, delay time.Duration, retryCount int) error {
	body, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return s.ch.Publish(
		"",
		delayQueue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Expiration:   strconv.FormatInt(delay.Milliseconds(), 10),
			Headers:      amqp.Table{RetryHeader: int32(retryCount)},
			Body:         body,
		},
	)
}

// RetryCount reads the attempt header from a consumed delivery.
func RetryCount(d amqp.Delivery) int {
	switch v := d.Headers[RetryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

var _ Scheduler = (*AMQPScheduler)(nil)

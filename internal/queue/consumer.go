package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Consumer listens to the booking queues, appends one line per event to a
// booking log file and emails the guest when a Mailer is configured.
type Consumer struct {
	url     string
	logPath string
	mailer  Mailer
	log     logrus.FieldLogger
}

// NewConsumer returns a consumer for the broker at url writing to
// logPath.  mailer may be nil.
func NewConsumer(url, logPath string, mailer Mailer, log logrus.FieldLogger) *Consumer {
	if url == "" {
		url = DefaultURL
	}
	if logPath == "" {
		logPath = filepath.Join("logs", "booking.log")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Consumer{url: url, logPath: logPath, mailer: mailer, log: log}
}

// Run connects, consumes and reconnects with backoff until ctx is done.
// A message that cannot be handled is rejected without requeue so it
// cannot loop.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.WithError(err).Warnf("booking-consumer: failed to dial broker, retrying in %s", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.WithError(err).Warn("booking-consumer: consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.WithError(err).Warn("booking-consumer: set QoS failed")
	}

	confirmed, err := c.subscribe(ch, ConfirmedQueue)
	if err != nil {
		return err
	}
	cancelled, err := c.subscribe(ch, CancelledQueue)
	if err != nil {
		return err
	}

	for {
		var (
			d     amqp.Delivery
			ok    bool
			queue string
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok = <-confirmed:
			queue = ConfirmedQueue
		case d, ok = <-cancelled:
			queue = CancelledQueue
		}
		if !ok {
			return errors.New("deliveries channel closed")
		}
		if err := c.handle(queue, d.Body); err != nil {
			c.log.WithError(err).WithField("queue", queue).Error("booking-consumer: handle message failed")
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
}

func (c *Consumer) subscribe(ch *amqp.Channel, queue string) (<-chan amqp.Delivery, error) {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("queue declare %s: %w", queue, err)
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("queue consume %s: %w", queue, err)
	}
	return msgs, nil
}

// handle writes the log line for one message and emails the guest.  Mail
// failures are logged but do not reject the message; the log line is
// already written.
func (c *Consumer) handle(queue string, body []byte) error {
	var line, to, subject, text string
	switch queue {
	case ConfirmedQueue:
		var ev BookingConfirmedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		line = fmt.Sprintf("[%s] Reservation confirmed | reservation_id=%d | code=%s | user_id=%d | hotel_id=%d | room_id=%d | check_in=%s | check_out=%s | nights=%d | total=%d cents\n",
			ev.ConfirmedAt, ev.ReservationID, ev.Code, ev.UserID, ev.HotelID, ev.RoomID, ev.CheckIn, ev.CheckOut, ev.Nights, ev.TotalAmountCents)
		to = ev.GuestEmail
		subject = "Your booking " + ev.Code + " is confirmed"
		text = fmt.Sprintf("Your stay from %s to %s (%d nights) is confirmed.\nTotal paid: %s\nBooking code: %s\n",
			datePart(ev.CheckIn), datePart(ev.CheckOut), ev.Nights, formatCents(ev.TotalAmountCents), ev.Code)
	case CancelledQueue:
		var ev BookingCancelledEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		line = fmt.Sprintf("[%s] Reservation cancelled | reservation_id=%d | code=%s | user_id=%d | hotel_id=%d | reason=%q | refund=%d cents\n",
			ev.CancelledAt, ev.ReservationID, ev.Code, ev.UserID, ev.HotelID, ev.Reason, ev.RefundCents)
		to = ev.GuestEmail
		subject = "Your booking " + ev.Code + " was cancelled"
		text = fmt.Sprintf("Your booking %s was cancelled: %s.\nRefund: %s\n", ev.Code, ev.Reason, formatCents(ev.RefundCents))
	default:
		return fmt.Errorf("unknown queue %q", queue)
	}

	if err := c.appendLine(line); err != nil {
		return err
	}
	if c.mailer != nil && to != "" {
		if err := c.mailer.Send(to, subject, text); err != nil {
			c.log.WithError(err).WithField("queue", queue).Warn("booking-consumer: email not sent")
		}
	}
	return nil
}

func (c *Consumer) appendLine(line string) error {
	if err := os.MkdirAll(filepath.Dir(c.logPath), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(c.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign, c = "-", -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}

// datePart trims an RFC 3339 timestamp to its date.
func datePart(ts string) string {
	if len(ts) >= 10 {
		return ts[:10]
	}
	return ts
}

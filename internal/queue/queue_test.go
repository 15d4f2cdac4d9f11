package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

type sentMail struct{ to, subject, body string }

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to, subject, body})
	return m.err
}

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func sampleReservation() *model.Reservation {
	in := time.Date(2026, 7, 1, 15, 0, 0, 0, time.UTC)
	paid := in.Add(-72 * time.Hour)
	return &model.Reservation{
		ID: 42, Code: "BK-1A2B3C4D", UserID: 7, GuestEmail: "guest@example.com",
		HotelID: 3, RoomID: 9, CheckIn: in, CheckOut: in.Add(72 * time.Hour),
		Pricing: model.PriceBreakdown{Nights: 3, GrandTotalCents: 33000},
		Status:  model.StatusConfirmed,
		Payment: model.Payment{Reference: "pi_1", Status: model.PaymentPaid, PaidAt: &paid},
	}
}

func TestPublisherEmitsEvents(t *testing.T) {
	p := NewPublisher("", quiet())
	var mu sync.Mutex
	got := map[string][]byte{}
	p.send = func(_ context.Context, queue string, body []byte) error {
		mu.Lock()
		defer mu.Unlock()
		got[queue] = body
		return nil
	}

	r := sampleReservation()
	p.BookingConfirmed(context.Background(), r)
	r.Status = model.StatusCancelled
	r.Cancellation = &model.Cancellation{CancelledAt: r.CheckIn.Add(-96 * time.Hour), Reason: "change of plans", RefundCents: 33000}
	p.BookingCancelled(context.Background(), r, 33000)
	p.Wait()

	var confirmed BookingConfirmedEvent
	if err := json.Unmarshal(got[ConfirmedQueue], &confirmed); err != nil {
		t.Fatalf("confirmed payload: %v", err)
	}
	if confirmed.ReservationID != 42 || confirmed.TotalAmountCents != 33000 || confirmed.ConfirmedAt != "2026-06-28T15:00:00Z" {
		t.Fatalf("confirmed event = %+v", confirmed)
	}
	var cancelled BookingCancelledEvent
	if err := json.Unmarshal(got[CancelledQueue], &cancelled); err != nil {
		t.Fatalf("cancelled payload: %v", err)
	}
	if cancelled.Reason != "change of plans" || cancelled.RefundCents != 33000 || cancelled.GuestEmail != "guest@example.com" {
		t.Fatalf("cancelled event = %+v", cancelled)
	}
}

func TestPublisherSwallowsFailures(t *testing.T) {
	p := NewPublisher("", quiet())
	p.send = func(context.Context, string, []byte) error { return errors.New("broker down") }
	p.BookingConfirmed(context.Background(), sampleReservation())
	p.Wait()
}

func TestConsumerHandle(t *testing.T) {
	dir := t.TempDir()
	mail := &fakeMailer{}
	c := NewConsumer("", filepath.Join(dir, "logs", "booking.log"), mail, quiet())

	r := sampleReservation()
	body, _ := json.Marshal(NewConfirmedEvent(r))
	if err := c.handle(ConfirmedQueue, body); err != nil {
		t.Fatalf("handle confirmed: %v", err)
	}
	r.Cancellation = &model.Cancellation{CancelledAt: r.CheckIn, Reason: "payment window expired"}
	body, _ = json.Marshal(NewCancelledEvent(r, 0))
	if err := c.handle(CancelledQueue, body); err != nil {
		t.Fatalf("handle cancelled: %v", err)
	}
	if err := c.handle(ConfirmedQueue, []byte("{not json")); err == nil {
		t.Fatalf("malformed message accepted")
	}

	data, err := os.ReadFile(filepath.Join(dir, "logs", "booking.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %d, want 2:\n%s", len(lines), data)
	}
	if !strings.Contains(lines[0], "Reservation confirmed | reservation_id=42 | code=BK-1A2B3C4D") ||
		!strings.Contains(lines[1], `reason="payment window expired" | refund=0 cents`) {
		t.Fatalf("unexpected log:\n%s", data)
	}
	if len(mail.sent) != 2 || mail.sent[0].to != "guest@example.com" || !strings.Contains(mail.sent[0].body, "Total paid: 330.00") {
		t.Fatalf("mail = %+v", mail.sent)
	}
}

func TestConsumerMailFailureStillAcks(t *testing.T) {
	c := NewConsumer("", filepath.Join(t.TempDir(), "booking.log"), &fakeMailer{err: errors.New("smtp down")}, quiet())
	body, _ := json.Marshal(NewConfirmedEvent(sampleReservation()))
	if err := c.handle(ConfirmedQueue, body); err != nil {
		t.Fatalf("mail failure rejected the message: %v", err)
	}
}

func TestNewSMTPMailerDisabledWithoutHost(t *testing.T) {
	if m := NewSMTPMailer(SMTPConfig{}); m != nil {
		t.Fatalf("mailer without host = %v, want nil", m)
	}
	if m := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com"}); m == nil {
		t.Fatalf("mailer with host is nil")
	}
}

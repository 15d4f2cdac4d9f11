package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

const reservationColumns = `id, code, user_id, guest_email, hotel_id, room_id, check_in, check_out,
    adults, children, extras, special_requests,
    nights, room_total_cents, extras_total_cents, taxes_cents, grand_total_cents,
    status, payment_ref, payment_status, paid_at,
    cancelled_at, cancel_reason, refund_cents, refund_ref,
    created_at, updated_at`

// extraJSON is the on-disk shape of a selected extra in reservations.extras.
type extraJSON struct {
	ExtraID    uint64 `json:"extra_id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Quantity   int    `json:"quantity"`
}

func scanReservation(s rowScanner) (*model.Reservation, error) {
	var (
		res          model.Reservation
		extrasRaw    []byte
		status       string
		payRef       sql.NullString
		payStatus    string
		paidAt       sql.NullTime
		cancelledAt  sql.NullTime
		cancelReason sql.NullString
		refundCents  sql.NullInt64
		refundRef    sql.NullString
	)
	if err := s.Scan(
		&res.ID, &res.Code, &res.UserID, &res.GuestEmail, &res.HotelID, &res.RoomID, &res.CheckIn, &res.CheckOut,
		&res.Adults, &res.Children, &extrasRaw, &res.SpecialRequests,
		&res.Pricing.Nights, &res.Pricing.RoomTotalCents, &res.Pricing.ExtrasTotalCents, &res.Pricing.TaxesCents, &res.Pricing.GrandTotalCents,
		&status, &payRef, &payStatus, &paidAt,
		&cancelledAt, &cancelReason, &refundCents, &refundRef,
		&res.CreatedAt, &res.UpdatedAt,
	); err != nil {
		return nil, err
	}
	st, err := model.ParseReservationStatus(status)
	if err != nil {
		return nil, err
	}
	res.Status = st
	ps, err := model.ParsePaymentStatus(payStatus)
	if err != nil {
		return nil, err
	}
	res.Payment.Status = ps
	res.Payment.Reference = payRef.String
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		res.Payment.PaidAt = &t
	}
	if cancelledAt.Valid {
		res.Cancellation = &model.Cancellation{
			CancelledAt: cancelledAt.Time.UTC(),
			Reason:      cancelReason.String,
			RefundCents: refundCents.Int64,
			RefundRef:   refundRef.String,
		}
	}
	if len(extrasRaw) > 0 {
		var ex []extraJSON
		if err := json.Unmarshal(extrasRaw, &ex); err != nil {
			return nil, fmt.Errorf("decode extras of reservation %d: %w", res.ID, err)
		}
		for _, e := range ex {
			res.Extras = append(res.Extras, model.SelectedExtra{
				ExtraID: e.ExtraID, Name: e.Name, PriceCents: e.PriceCents, Quantity: e.Quantity,
			})
		}
	}
	res.CheckIn = res.CheckIn.UTC()
	res.CheckOut = res.CheckOut.UTC()
	return &res, nil
}

func encodeExtras(extras []model.SelectedExtra) ([]byte, error) {
	ex := make([]extraJSON, 0, len(extras))
	for _, e := range extras {
		ex = append(ex, extraJSON{ExtraID: e.ExtraID, Name: e.Name, PriceCents: e.PriceCents, Quantity: e.Quantity})
	}
	return json.Marshal(ex)
}

// ReservationByID loads a reservation.  It returns ErrNotFound when no row
// matches.
func (r sqlReader) ReservationByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	res, err := scanReservation(r.q.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select reservation %d: %w", id, err)
	}
	return res, nil
}

// FindOverlapping uses the half-open overlap test check_in < ? AND
// check_out > ?, so stays that merely touch are not returned.
func (r sqlReader) FindOverlapping(ctx context.Context, roomID uint64, checkIn, checkOut time.Time, statuses []model.ReservationStatus) ([]model.Reservation, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := []any{roomID, checkOut.UTC(), checkIn.UTC()}
	for _, s := range statuses {
		args = append(args, string(s))
	}
	q := `SELECT ` + reservationColumns + ` FROM reservations
          WHERE room_id = ? AND check_in < ? AND check_out > ? AND status IN (` + placeholders(len(statuses)) + `)
          ORDER BY check_in, id`
	return r.queryReservations(ctx, q, args...)
}

func (r sqlReader) queryReservations(ctx context.Context, q string, args ...any) ([]model.Reservation, error) {
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select reservations: %w", err)
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

// ListReservations implements Reader.
func (r sqlReader) ListReservations(ctx context.Context, f ReservationFilter) ([]model.Reservation, int, error) {
	var where []string
	var args []any
	if f.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.HotelID != 0 {
		where = append(where, "hotel_id = ?")
		args = append(args, f.HotelID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reservations: %w", err)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	pageArgs := append(append([]any(nil), args...), limit, f.Offset)
	items, err := r.queryReservations(ctx,
		`SELECT `+reservationColumns+` FROM reservations`+cond+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		pageArgs...,
	)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// StalePending implements Reader.
func (r sqlReader) StalePending(ctx context.Context, before time.Time, limit int) ([]uint64, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id FROM reservations WHERE status = ? AND created_at < ? ORDER BY created_at, id LIMIT ?`,
		string(model.StatusPending), before.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select stale pending: %w", err)
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LockReservation reads a reservation with SELECT ... FOR UPDATE.
func (t *sqlTx) LockReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	res, err := scanReservation(t.tx.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock reservation %d: %w", id, err)
	}
	return res, nil
}

// InsertReservation inserts res and reads the row back so the generated id
// and timestamps are populated.
func (t *sqlTx) InsertReservation(ctx context.Context, res *model.Reservation) error {
	extras, err := encodeExtras(res.Extras)
	if err != nil {
		return err
	}
	const q = `INSERT INTO reservations
        (code, user_id, guest_email, hotel_id, room_id, check_in, check_out, adults, children, extras, special_requests,
         nights, room_total_cents, extras_total_cents, taxes_cents, grand_total_cents,
         status, payment_ref, payment_status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := res.CreatedAt.UTC()
	result, err := t.tx.ExecContext(ctx, q,
		res.Code, res.UserID, res.GuestEmail, res.HotelID, res.RoomID, res.CheckIn.UTC(), res.CheckOut.UTC(),
		res.Adults, res.Children, extras, res.SpecialRequests,
		res.Pricing.Nights, res.Pricing.RoomTotalCents, res.Pricing.ExtrasTotalCents, res.Pricing.TaxesCents, res.Pricing.GrandTotalCents,
		string(res.Status), nullString(res.Payment.Reference), string(res.Payment.Status), now, now,
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	stored, err := scanReservation(t.tx.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
	if err != nil {
		return fmt.Errorf("reload reservation %d: %w", id, err)
	}
	*res = *stored
	return nil
}

// UpdateReservation writes every mutable column of res.
func (t *sqlTx) UpdateReservation(ctx context.Context, res *model.Reservation) error {
	var (
		cancelledAt  any
		cancelReason any
		refundCents  any
		refundRef    any
		paidAt       any
	)
	if c := res.Cancellation; c != nil {
		cancelledAt, cancelReason, refundCents, refundRef = c.CancelledAt.UTC(), c.Reason, c.RefundCents, nullString(c.RefundRef)
	}
	if res.Payment.PaidAt != nil {
		paidAt = res.Payment.PaidAt.UTC()
	}
	const q = `UPDATE reservations SET
        adults = ?, children = ?, special_requests = ?, status = ?,
        payment_ref = ?, payment_status = ?, paid_at = ?,
        cancelled_at = ?, cancel_reason = ?, refund_cents = ?, refund_ref = ?,
        updated_at = ?
        WHERE id = ?`
	result, err := t.tx.ExecContext(ctx, q,
		res.Adults, res.Children, res.SpecialRequests, string(res.Status),
		nullString(res.Payment.Reference), string(res.Payment.Status), paidAt,
		cancelledAt, cancelReason, refundCents, refundRef,
		res.UpdatedAt.UTC(), res.ID,
	)
	if err != nil {
		return fmt.Errorf("update reservation %d: %w", res.ID, err)
	}
	// MySQL reports 0 affected rows when nothing changed, so only a missing
	// row is an error here.
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		var exists int
		if err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM reservations WHERE id = ?`, res.ID).Scan(&exists); errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

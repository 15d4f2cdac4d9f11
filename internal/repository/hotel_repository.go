package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

const hotelColumns = `id, name, city, check_in_time, check_out_time,
    free_cancellation_days, refund_percentage, is_active, created_at, updated_at`

const roomColumns = `id, hotel_id, name, type, capacity_adults, capacity_children,
    price_per_night_cents, quantity, is_active, created_at, updated_at`

// HotelByID loads a hotel.  It returns ErrNotFound when no row matches.
func (r sqlReader) HotelByID(ctx context.Context, id uint64) (*model.Hotel, error) {
	var h model.Hotel
	err := r.q.QueryRowContext(ctx, `SELECT `+hotelColumns+` FROM hotels WHERE id = ?`, id).Scan(
		&h.ID, &h.Name, &h.City, &h.CheckInTime, &h.CheckOutTime,
		&h.Policy.FreeCancellationDays, &h.Policy.RefundPercentage, &h.IsActive, &h.CreatedAt, &h.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select hotel %d: %w", id, err)
	}
	return &h, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(s rowScanner) (*model.Room, error) {
	var rm model.Room
	var typ string
	if err := s.Scan(
		&rm.ID, &rm.HotelID, &rm.Name, &typ, &rm.Capacity.Adults, &rm.Capacity.Children,
		&rm.PricePerNightCents, &rm.Quantity, &rm.IsActive, &rm.CreatedAt, &rm.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t, err := model.ParseRoomType(typ)
	if err != nil {
		return nil, err
	}
	rm.Type = t
	return &rm, nil
}

// RoomByID loads a room.  It returns ErrNotFound when no row matches.
func (r sqlReader) RoomByID(ctx context.Context, id uint64) (*model.Room, error) {
	rm, err := scanRoom(r.q.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select room %d: %w", id, err)
	}
	return rm, nil
}

// RoomsByHotel returns the active rooms of a hotel ordered by price.
func (r sqlReader) RoomsByHotel(ctx context.Context, hotelID uint64) ([]model.Room, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE hotel_id = ? AND is_active = 1 ORDER BY price_per_night_cents, id`,
		hotelID,
	)
	if err != nil {
		return nil, fmt.Errorf("select rooms of hotel %d: %w", hotelID, err)
	}
	defer rows.Close()
	var out []model.Room
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rm)
	}
	return out, rows.Err()
}

// ExtrasByIDs returns the extras of hotelID whose ids are listed.  Missing
// ids are simply absent from the result.
func (r sqlReader) ExtrasByIDs(ctx context.Context, hotelID uint64, ids []uint64) ([]model.Extra, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, hotelID)
	for _, id := range ids {
		args = append(args, id)
	}
	q := `SELECT id, hotel_id, name, price_cents, is_active FROM extras WHERE hotel_id = ? AND id IN (` +
		placeholders(len(ids)) + `)`
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select extras: %w", err)
	}
	defer rows.Close()
	var out []model.Extra
	for rows.Next() {
		var e model.Extra
		if err := rows.Scan(&e.ID, &e.HotelID, &e.Name, &e.PriceCents, &e.IsActive); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LockRoom reads a room with SELECT ... FOR UPDATE.  Every transaction that
// counts or changes occupancy of the room takes this lock first.
func (t *sqlTx) LockRoom(ctx context.Context, roomID uint64) (*model.Room, error) {
	rm, err := scanRoom(t.tx.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ? FOR UPDATE`, roomID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock room %d: %w", roomID, err)
	}
	return rm, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

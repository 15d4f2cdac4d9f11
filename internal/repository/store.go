package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

// ReservationFilter narrows ListReservations.  Zero values mean "any".
type ReservationFilter struct {
	UserID  uint64
	HotelID uint64
	Status  model.ReservationStatus
	Offset  int
	Limit   int
}

// Reader is the read side of the store.  It is available both outside
// and inside a transaction.
type Reader interface {
	HotelByID(ctx context.Context, id uint64) (*model.Hotel, error)
	RoomByID(ctx context.Context, id uint64) (*model.Room, error)
	RoomsByHotel(ctx context.Context, hotelID uint64) ([]model.Room, error)
	ExtrasByIDs(ctx context.Context, hotelID uint64, ids []uint64) ([]model.Extra, error)
	ReservationByID(ctx context.Context, id uint64) (*model.Reservation, error)
	// FindOverlapping returns reservations for roomID whose stay
	// intersects [checkIn, checkOut) and whose status is in statuses.
	FindOverlapping(ctx context.Context, roomID uint64, checkIn, checkOut time.Time, statuses []model.ReservationStatus) ([]model.Reservation, error)
	// ListReservations returns one page, newest first, and the total
	// number of matching rows.
	ListReservations(ctx context.Context, f ReservationFilter) ([]model.Reservation, int, error)
	// StalePending returns ids of pending reservations created before
	// the given instant, oldest first.
	StalePending(ctx context.Context, before time.Time, limit int) ([]uint64, error)
}

// Tx is a unit of work.  LockRoom and LockReservation take row locks
// held until the transaction ends; callers serialize creation and
// confirmation per room and every other mutation per reservation.
type Tx interface {
	Reader
	LockRoom(ctx context.Context, roomID uint64) (*model.Room, error)
	LockReservation(ctx context.Context, id uint64) (*model.Reservation, error)
	InsertReservation(ctx context.Context, r *model.Reservation) error
	UpdateReservation(ctx context.Context, r *model.Reservation) error
}

// Store is the reservation store used by the booking services.
type Store interface {
	Reader
	// WithTx runs fn inside a transaction.  The transaction commits when
	// fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore is the MySQL implementation of Store.
type SQLStore struct {
	sqlReader
	db *sql.DB
}

// NewSQLStore returns a Store backed by db.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{sqlReader: sqlReader{q: db}, db: db}
}

// DB exposes the underlying handle for health checks.
func (s *SQLStore) DB() *sql.DB { return s.db }

// WithTx runs fn in a READ COMMITTED transaction.  The row locks taken by
// LockRoom/LockReservation provide the serialization; READ COMMITTED
// makes every statement after the lock see rows committed by the
// previous lock holder.
func (s *SQLStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&sqlTx{sqlReader: sqlReader{q: tx}, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// sqlReader implements Reader over any querier.
type sqlReader struct {
	q querier
}

// sqlTx adds locking reads and writes to sqlReader.
type sqlTx struct {
	sqlReader
	tx *sql.Tx
}

// Package memory is an in-process implementation of repository.Store.
// Transactions are fully serialized, which gives the same guarantees the
// MySQL row locks give (and more), so the booking services behave the
// same on both.  It backs the test suites and STORE=memory dev runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/repository"
)

// Store keeps every row in maps guarded by mu.  txMu is held for the whole
// lifetime of a transaction.
type Store struct {
	txMu sync.Mutex

	mu           sync.RWMutex
	hotels       map[uint64]model.Hotel
	rooms        map[uint64]model.Room
	extras       map[uint64]model.Extra
	reservations map[uint64]*model.Reservation
	nextID       uint64
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		hotels:       make(map[uint64]model.Hotel),
		rooms:        make(map[uint64]model.Room),
		extras:       make(map[uint64]model.Extra),
		reservations: make(map[uint64]*model.Reservation),
	}
}

// AddHotel seeds a hotel.  A zero ID is assigned automatically.
func (s *Store) AddHotel(h model.Hotel) model.Hotel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.ID == 0 {
		h.ID = s.allocID()
	}
	s.hotels[h.ID] = h
	return h
}

// AddRoom seeds a room.
func (s *Store) AddRoom(r model.Room) model.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.allocID()
	}
	s.rooms[r.ID] = r
	return r
}

// AddExtra seeds an extra.
func (s *Store) AddExtra(e model.Extra) model.Extra {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == 0 {
		e.ID = s.allocID()
	}
	s.extras[e.ID] = e
	return e
}

// allocID must be called with mu held.
func (s *Store) allocID() uint64 {
	s.nextID++
	return s.nextID
}

// WithTx implements repository.Store.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{store: s, staged: make(map[uint64]*model.Reservation)}
	if err := fn(tx); err != nil {
		return err
	}
	s.mu.Lock()
	for id, r := range tx.staged {
		s.reservations[id] = r
	}
	s.mu.Unlock()
	return nil
}

// view returns the reservations visible to a reader: committed rows
// overlaid with staged ones.
func (s *Store) view(staged map[uint64]*model.Reservation) []*model.Reservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Reservation, 0, len(s.reservations)+len(staged))
	for id, r := range s.reservations {
		if _, ok := staged[id]; ok {
			continue
		}
		out = append(out, r)
	}
	for _, r := range staged {
		out = append(out, r)
	}
	return out
}

func (s *Store) HotelByID(_ context.Context, id uint64) (*model.Hotel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hotels[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &h, nil
}

func (s *Store) RoomByID(_ context.Context, id uint64) (*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (s *Store) RoomsByHotel(_ context.Context, hotelID uint64) ([]model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Room
	for _, r := range s.rooms {
		if r.HotelID == hotelID && r.IsActive {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PricePerNightCents != out[j].PricePerNightCents {
			return out[i].PricePerNightCents < out[j].PricePerNightCents
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ExtrasByIDs(_ context.Context, hotelID uint64, ids []uint64) ([]model.Extra, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Extra
	for _, id := range ids {
		if e, ok := s.extras[id]; ok && e.HotelID == hotelID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) ReservationByID(_ context.Context, id uint64) (*model.Reservation, error) {
	return s.reservationByID(id, nil)
}

func (s *Store) reservationByID(id uint64, staged map[uint64]*model.Reservation) (*model.Reservation, error) {
	if r, ok := staged[id]; ok {
		return r.Clone(), nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *Store) FindOverlapping(_ context.Context, roomID uint64, checkIn, checkOut time.Time, statuses []model.ReservationStatus) ([]model.Reservation, error) {
	return s.findOverlapping(nil, roomID, checkIn, checkOut, statuses), nil
}

func (s *Store) findOverlapping(staged map[uint64]*model.Reservation, roomID uint64, checkIn, checkOut time.Time, statuses []model.ReservationStatus) []model.Reservation {
	want := make(map[model.ReservationStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []model.Reservation
	for _, r := range s.view(staged) {
		if r.RoomID == roomID && want[r.Status] && r.Overlaps(checkIn, checkOut) {
			out = append(out, *r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) ListReservations(_ context.Context, f repository.ReservationFilter) ([]model.Reservation, int, error) {
	items, total := s.list(nil, f)
	return items, total, nil
}

func (s *Store) list(staged map[uint64]*model.Reservation, f repository.ReservationFilter) ([]model.Reservation, int) {
	var match []*model.Reservation
	for _, r := range s.view(staged) {
		if f.UserID != 0 && r.UserID != f.UserID {
			continue
		}
		if f.HotelID != 0 && r.HotelID != f.HotelID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		match = append(match, r)
	}
	sort.Slice(match, func(i, j int) bool {
		if !match[i].CreatedAt.Equal(match[j].CreatedAt) {
			return match[i].CreatedAt.After(match[j].CreatedAt)
		}
		return match[i].ID > match[j].ID
	})
	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	total := len(match)
	var out []model.Reservation
	for i := f.Offset; i < total && len(out) < limit; i++ {
		out = append(out, *match[i].Clone())
	}
	return out, total
}

func (s *Store) StalePending(_ context.Context, before time.Time, limit int) ([]uint64, error) {
	var stale []*model.Reservation
	for _, r := range s.view(nil) {
		if r.Status == model.StatusPending && r.CreatedAt.Before(before) {
			stale = append(stale, r)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	var ids []uint64
	for _, r := range stale {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// memTx buffers reservation writes until WithTx commits them.
type memTx struct {
	store  *Store
	staged map[uint64]*model.Reservation
}

func (t *memTx) HotelByID(ctx context.Context, id uint64) (*model.Hotel, error) {
	return t.store.HotelByID(ctx, id)
}

func (t *memTx) RoomByID(ctx context.Context, id uint64) (*model.Room, error) {
	return t.store.RoomByID(ctx, id)
}

func (t *memTx) RoomsByHotel(ctx context.Context, hotelID uint64) ([]model.Room, error) {
	return t.store.RoomsByHotel(ctx, hotelID)
}

func (t *memTx) ExtrasByIDs(ctx context.Context, hotelID uint64, ids []uint64) ([]model.Extra, error) {
	return t.store.ExtrasByIDs(ctx, hotelID, ids)
}

func (t *memTx) ReservationByID(_ context.Context, id uint64) (*model.Reservation, error) {
	return t.store.reservationByID(id, t.staged)
}

func (t *memTx) FindOverlapping(_ context.Context, roomID uint64, checkIn, checkOut time.Time, statuses []model.ReservationStatus) ([]model.Reservation, error) {
	return t.store.findOverlapping(t.staged, roomID, checkIn, checkOut, statuses), nil
}

func (t *memTx) ListReservations(_ context.Context, f repository.ReservationFilter) ([]model.Reservation, int, error) {
	items, total := t.store.list(t.staged, f)
	return items, total, nil
}

func (t *memTx) StalePending(ctx context.Context, before time.Time, limit int) ([]uint64, error) {
	return t.store.StalePending(ctx, before, limit)
}

// LockRoom is a plain read; the transaction already runs alone.
func (t *memTx) LockRoom(ctx context.Context, roomID uint64) (*model.Room, error) {
	return t.store.RoomByID(ctx, roomID)
}

func (t *memTx) LockReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	return t.ReservationByID(ctx, id)
}

func (t *memTx) InsertReservation(_ context.Context, r *model.Reservation) error {
	t.store.mu.Lock()
	r.ID = t.store.allocID()
	t.store.mu.Unlock()
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	t.staged[r.ID] = r.Clone()
	return nil
}

func (t *memTx) UpdateReservation(_ context.Context, r *model.Reservation) error {
	if _, err := t.store.reservationByID(r.ID, t.staged); err != nil {
		return err
	}
	t.staged[r.ID] = r.Clone()
	return nil
}

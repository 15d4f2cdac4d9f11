// Package repository defines the persistence contract for hotels, rooms,
// extras and reservations, and its MySQL implementation.  The sentinel
// errors below let the service layer tell "missing" apart from driver
// failures without importing database/sql.
package repository

import "errors"

// ErrNotFound is returned when a row does not exist.  Inactive hotels,
// rooms and extras are still returned; activity is a business decision.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an update hits a row that changed under
// the caller (for example a status guard in a WHERE clause no longer
// matches).
var ErrConflict = errors.New("conflict")

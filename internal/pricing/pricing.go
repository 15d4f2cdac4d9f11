// Package pricing computes the itemised price of a stay.  Amounts are
// integer cents; every derived amount is rounded to the cent as soon as it
// is produced so the frozen grand total matches what refunds are later
// computed from.
package pricing

import (
	"math"
	"time"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

// DefaultTaxRate is applied when configuration does not override it.
const DefaultTaxRate = 0.10

// Extra is a priced line item added to the room total.
type Extra struct {
	PriceCents int64
	Quantity   int
}

// Nights returns the number of nights between two instants, rounding a
// partial day up.  The result is never below one.
func Nights(checkIn, checkOut time.Time) int {
	d := checkOut.Sub(checkIn)
	if d < 0 {
		d = -d
	}
	n := int(math.Ceil(d.Hours() / 24))
	if n < 1 {
		n = 1
	}
	return n
}

// Compute returns the price of nights at ratePerNightCents plus extras,
// taxed at taxRate.  nights below one are treated as one.
func Compute(ratePerNightCents int64, nights int, extras []Extra, taxRate float64) model.PriceBreakdown {
	if nights < 1 {
		nights = 1
	}
	roomTotal := ratePerNightCents * int64(nights)

	var extrasTotal int64
	for _, e := range extras {
		if e.Quantity <= 0 {
			continue
		}
		extrasTotal += e.PriceCents * int64(e.Quantity)
	}

	subtotal := roomTotal + extrasTotal
	taxes := roundCents(float64(subtotal) * taxRate)
	return model.PriceBreakdown{
		Nights:           nights,
		RoomTotalCents:   roomTotal,
		ExtrasTotalCents: extrasTotal,
		TaxesCents:       taxes,
		GrandTotalCents:  subtotal + taxes,
	}
}

// Refund returns percentage percent of grandTotalCents, rounded to the
// cent.  percentage is clamped to [0, 100].
func Refund(grandTotalCents int64, percentage int) int64 {
	switch {
	case percentage <= 0:
		return 0
	case percentage >= 100:
		return grandTotalCents
	}
	return roundCents(float64(grandTotalCents) * float64(percentage) / 100)
}

// roundCents rounds half away from zero.
func roundCents(v float64) int64 { return int64(math.Round(v)) }

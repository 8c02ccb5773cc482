package omakase

import "fmt"

// BaseURL is the production upstream. Clients may be pointed elsewhere
// for testing but derived restaurant URLs always refer to the real site.
const BaseURL = "https://omakase.in"

const (
	signInPath   = "/users/sign_in"
	stockPathFmt = "/api/v1/omakase/r/%s/online_stock_groups"
	detailFmt    = "/ja/r/%s"
)

// TimeSlot is a single bookable reservation opportunity. Two slots are
// the same slot iff they share (Date, Time); price and seat count may
// drift between polls without changing identity. Price is in JPY and
// zero means unknown, same for AvailableSeats.
type TimeSlot struct {
	Date           string // YYYY-MM-DD
	Time           string // HH:MM, 24 hour
	Price          int
	BookingURL     string
	AvailableSeats int
}

// SlotKey is the identity of a slot, usable as a map key.
type SlotKey struct {
	Date string
	Time string
}

func (s TimeSlot) Key() SlotKey {
	return SlotKey{Date: s.Date, Time: s.Time}
}

// Restaurant is a monitored target.
type Restaurant struct {
	Name    string
	Slug    string // upstream URL identifier, e.g. "bu286225"
	URL     string
	Enabled bool
}

// DetailURL is the restaurant page a human would book from.
func (r Restaurant) DetailURL() string {
	return BaseURL + fmt.Sprintf(detailFmt, r.Slug)
}

// APIURL is the slot listing endpoint for this restaurant.
func (r Restaurant) APIURL() string {
	return BaseURL + fmt.Sprintf(stockPathFmt, r.Slug)
}

package notifier

import (
	"testing"
	"time"

	"omakase-monitor/lib/scrapers/omakase"

	"github.com/stretchr/testify/require"
)

func TestRenderBody(t *testing.T) {
	body, err := renderBody(Notification{
		Restaurant: omakase.Restaurant{
			Name: "Sushi Test",
			Slug: "bu286225",
			URL:  "https://omakase.in/ja/r/bu286225",
		},
		NewSlots: []omakase.TimeSlot{
			{Date: "2026-02-15", Time: "19:00", Price: 15000, BookingURL: "https://omakase.in/book/1"},
			{Date: "2026-02-16", Time: "21:00"},
		},
		Timestamp: time.Date(2026, 2, 14, 10, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	html := string(body)
	require.Contains(t, html, "New Reservations Available: Sushi Test")
	require.Contains(t, html, "Found 2 new time slot(s)")
	require.Contains(t, html, "<td>2026-02-15</td>")
	require.Contains(t, html, "<td>19:00</td>")
	require.Contains(t, html, "¥15,000")
	require.Contains(t, html, `href="https://omakase.in/book/1"`)
	require.Contains(t, html, "Timestamp: 2026-02-14 10:30:00")

	// slots without a booking link fall back to the restaurant page
	require.Contains(t, html, `href="https://omakase.in/ja/r/bu286225"`)
	// unknown prices render as N/A
	require.Contains(t, html, "<td>N/A</td>")
}

func TestRenderBodyEscapesUntrustedFields(t *testing.T) {
	body, err := renderBody(Notification{
		Restaurant: omakase.Restaurant{Name: "<script>alert(1)</script>", Slug: "x"},
		NewSlots: []omakase.TimeSlot{
			{Date: "2026-02-15", Time: "<b>19:00</b>"},
		},
		Timestamp: time.Now(),
	})
	require.NoError(t, err)

	html := string(body)
	require.NotContains(t, html, "<script>")
	require.NotContains(t, html, "<b>19:00</b>")
}

func TestFormatPrice(t *testing.T) {
	require.Equal(t, "N/A", FormatPrice(0))
	require.Equal(t, "N/A", FormatPrice(-1))
	require.Equal(t, "¥500", FormatPrice(500))
	require.Equal(t, "¥1,000", FormatPrice(1000))
	require.Equal(t, "¥15,000", FormatPrice(15000))
	require.Equal(t, "¥1,234,567", FormatPrice(1234567))
}

// Package notifier delivers new-slot notifications to the operator by
// email. The monitor only cares that delivery reports success or failure
// synchronously.
package notifier

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"omakase-monitor/lib/scrapers/omakase"
	"omakase-monitor/lib/telemetry"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("services/notifier")

// Notification describes newly detected slots for one restaurant.
type Notification struct {
	Restaurant omakase.Restaurant
	NewSlots   []omakase.TimeSlot
	Timestamp  time.Time
}

type SmtpConfig struct {
	Server    string
	Port      int
	Sender    string
	Password  string
	Recipient string
}

type EmailNotifier struct {
	config SmtpConfig
}

func NewEmailNotifier(config SmtpConfig) EmailNotifier {
	return EmailNotifier{config: config}
}

func (n EmailNotifier) Send(ctx context.Context, notification Notification) error {
	ctx, span := tracer.Start(ctx, "notifier:Send")
	defer span.End()

	body, err := renderBody(notification)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to render email body")
		return err
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Omakase Monitor <%s>", n.config.Sender)
	mail.To = []string{n.config.Recipient}
	mail.Subject = fmt.Sprintf("[Omakase] %s - New Reservations Available", notification.Restaurant.Name)
	mail.HTML = body

	addr := fmt.Sprintf("%s:%d", n.config.Server, n.config.Port)
	err = mail.Send(addr, smtp.PlainAuth("", n.config.Sender, n.config.Password, n.config.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}

	slog.InfoContext(
		ctx, "notification sent",
		"restaurant", notification.Restaurant.Name,
		"slots", len(notification.NewSlots),
		"recipient", n.config.Recipient,
	)
	return nil
}

var bodyTemplate = template.Must(template.New("notification").Parse(`<html>
<body>
	<h2>New Reservations Available: {{.RestaurantName}}</h2>
	<p>Found {{.Count}} new time slot(s):</p>
	<table border="1" cellpadding="5" cellspacing="0">
		<tr>
			<th>Date</th>
			<th>Time</th>
			<th>Price</th>
			<th>Action</th>
		</tr>
		{{range .Slots}}<tr>
			<td>{{.Date}}</td>
			<td>{{.Time}}</td>
			<td>{{.Price}}</td>
			<td><a href="{{.Link}}">Book Now</a></td>
		</tr>
		{{end}}
	</table>
	<p><a href="{{.DetailURL}}">View Restaurant Page</a></p>
	<p><small>Timestamp: {{.Timestamp}}</small></p>
</body>
</html>
`))

type slotRow struct {
	Date  string
	Time  string
	Price string
	Link  string
}

func renderBody(notification Notification) ([]byte, error) {
	rows := make([]slotRow, len(notification.NewSlots))
	for i, slot := range notification.NewSlots {
		link := slot.BookingURL
		if link == "" {
			link = notification.Restaurant.DetailURL()
		}
		rows[i] = slotRow{
			Date:  slot.Date,
			Time:  slot.Time,
			Price: FormatPrice(slot.Price),
			Link:  link,
		}
	}

	var buf bytes.Buffer
	err := bodyTemplate.Execute(&buf, map[string]any{
		"RestaurantName": notification.Restaurant.Name,
		"Count":          len(rows),
		"Slots":          rows,
		"DetailURL":      notification.Restaurant.DetailURL(),
		"Timestamp":      notification.Timestamp.Format("2006-01-02 15:04:05"),
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FormatPrice renders a JPY amount with digit grouping, or N/A when the
// price is unknown.
func FormatPrice(price int) string {
	if price <= 0 {
		return "N/A"
	}
	digits := strconv.Itoa(price)
	var out strings.Builder
	out.WriteString("¥")
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out.WriteByte(',')
		}
		out.WriteRune(d)
	}
	return out.String()
}

package email

import (
	"bytes"
	"fmt"
	"html/template"

	"hotel-relay/internal/types"
)

var bookingTemplate = template.Must(template.New("booking").Parse(`<h2>New booking request</h2>
<table>
  <tr><td><strong>Name</strong></td><td>{{.Name}}</td></tr>
  <tr><td><strong>Email</strong></td><td>{{.Email}}</td></tr>
  <tr><td><strong>Phone</strong></td><td>{{if .Phone}}{{.Phone}}{{else}}not provided{{end}}</td></tr>
  <tr><td><strong>Check-in</strong></td><td>{{.CheckIn}}</td></tr>
  <tr><td><strong>Check-out</strong></td><td>{{.CheckOut}}</td></tr>
  <tr><td><strong>Guests</strong></td><td>{{.Guests}}</td></tr>
  <tr><td><strong>Room type</strong></td><td>{{if .RoomType}}{{.RoomType}}{{else}}any{{end}}</td></tr>
</table>
{{if .Message}}<p><strong>Message</strong></p><p>{{.Message}}</p>{{end}}
`))

// RenderBooking builds the subject and escaped HTML body for a booking request.
func RenderBooking(b types.BookingRequest) (string, string, error) {
	var buf bytes.Buffer
	if err := bookingTemplate.Execute(&buf, b); err != nil {
		return "", "", fmt.Errorf("render booking email: %w", err)
	}
	subject := fmt.Sprintf("Booking request from %s (%s to %s)", b.Name, b.CheckIn, b.CheckOut)
	return subject, buf.String(), nil
}

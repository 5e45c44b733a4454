package email

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/ErlanBelekov/bloodbank/internal/domain"
)

const categoryExpiry = "expiry-report"

// ExpiryReport lists the units a sweep marked EXPIRED, grouped by blood type
// with a per-type total.
func ExpiryReport(to []string, units []*domain.BloodUnit, now time.Time) Message {
	byType := make(map[domain.BloodType][]*domain.BloodUnit)
	for _, u := range units {
		byType[u.BloodType] = append(byType[u.BloodType], u)
	}

	var h, t strings.Builder
	stamp := now.UTC().Format(time.RFC3339)
	fmt.Fprintf(&h, "<p>Expiry sweep at %s marked %d unit(s) as EXPIRED.</p>", stamp, len(units))
	fmt.Fprintf(&t, "Expiry sweep at %s marked %d unit(s) as EXPIRED.\n", stamp, len(units))

	for _, bt := range domain.BloodTypes {
		group := byType[bt]
		if len(group) == 0 {
			continue
		}
		total := 0
		for _, u := range group {
			total += u.Quantity
		}

		fmt.Fprintf(&h, "<h3>%s (%d)</h3>", bt.Display(), total)
		h.WriteString("<table><tr><th>Batch</th><th>Quantity</th><th>Expired</th></tr>")
		fmt.Fprintf(&t, "\n%s, total %d\n", bt.Display(), total)
		for _, u := range group {
			expiry := u.ExpiryDate.UTC().Format(time.RFC3339)
			fmt.Fprintf(&h, "<tr><td>%s</td><td>%d %s</td><td>%s</td></tr>",
				html.EscapeString(u.BatchNumber),
				u.Quantity,
				html.EscapeString(u.UnitOfMeasure),
				expiry,
			)
			fmt.Fprintf(&t, "  %s  %d %s  expired %s\n", u.BatchNumber, u.Quantity, u.UnitOfMeasure, expiry)
		}
		h.WriteString("</table>")
	}

	return Message{
		To:       to,
		Subject:  fmt.Sprintf("Blood inventory: %d unit(s) expired", len(units)),
		HTML:     h.String(),
		Text:     t.String(),
		Category: categoryExpiry,
	}
}

package alerting

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/uptix/hub/internal/models"
)

// DefaultSubjectPrefix is prepended to every alert subject.
const DefaultSubjectPrefix = "[Uptix Alert]"

// Format renders an alert intent for the transport.
func Format(prefix, hostName string, intent models.AlertIntent, firedAt time.Time) models.Notification {
	var subject, body string
	switch intent.Category {
	case models.CategorySite:
		subject = fmt.Sprintf("Site %s is %s on %s", intent.Target, intent.To, hostName)
		body = fmt.Sprintf("Site %s on server %s changed from %s to %s.", intent.Target, hostName, intent.From, intent.To)
	default:
		label := gaugeLabel(intent.Category)
		subject = fmt.Sprintf("High %s usage on %s", label, hostName)
		body = fmt.Sprintf("%s usage on %s is %.1f%% (threshold %.0f%%).", label, hostName, intent.Value, intent.Threshold)
	}
	if prefix != "" {
		subject = prefix + " " + subject
	}
	return models.Notification{
		Subject:  singleLine(subject),
		Body:     body,
		HostName: hostName,
		Category: intent.Category,
		FiredAt:  firedAt.UTC(),
	}
}

func gaugeLabel(category string) string {
	switch category {
	case models.CategoryRAM:
		return "RAM"
	case models.CategoryDisk:
		return "Disk"
	default:
		return strings.ToUpper(category)
	}
}

// singleLine replaces control characters, CR and LF included, with spaces.
// Subjects end up in mail headers and carry agent-supplied urls and statuses.
func singleLine(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
}

package formatter

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mixelka/otprelay/pkg/models"
)

// TelegramFormatter formats lifecycle notifications for Telegram (HTML parse mode)
type TelegramFormatter struct {
	maxLength int
}

// Status is a point-in-time view of the relay for the /status command
type Status struct {
	Pending []models.PendingRequest
	Cursors []models.Cursor
	Now     time.Time
}

// NewTelegramFormatter creates a new Telegram formatter
func NewTelegramFormatter() *TelegramFormatter {
	return &TelegramFormatter{
		maxLength: 4000, // Leave room for markup
	}
}

// FormatEvent formats a lifecycle event. Events never carry code material.
func (f *TelegramFormatter) FormatEvent(event models.LifecycleEvent) string {
	var sb strings.Builder

	switch event.Type {
	case models.EventDelivered:
		sb.WriteString("✅ <b>Code delivered</b>\n")
	case models.EventDeliveryFailed:
		sb.WriteString("❌ <b>Delivery failed</b>\n")
	case models.EventExpired:
		sb.WriteString("⌛ <b>Request expired</b>\n")
	default:
		sb.WriteString(fmt.Sprintf("<b>%s</b>\n", f.escapeHTML(string(event.Type))))
	}

	sb.WriteString(fmt.Sprintf("<b>Request:</b> <code>%s</code>\n", f.escapeHTML(event.RequestID)))
	if event.Source != "" {
		sb.WriteString(fmt.Sprintf("<b>Source:</b> %s\n", f.escapeHTML(event.Source)))
	}
	if event.Reason != "" {
		sb.WriteString(fmt.Sprintf("<b>Reason:</b> %s\n", f.escapeHTML(event.Reason)))
	}
	sb.WriteString(fmt.Sprintf("<b>At:</b> %s", event.At.UTC().Format("02.01.2006 15:04:05")))

	return sb.String()
}

// FormatStatus formats the /status reply
func (f *TelegramFormatter) FormatStatus(status Status) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("<b>Pending requests:</b> %d\n", len(status.Pending)))
	for _, req := range status.Pending {
		left := req.ExpiresAt.Sub(status.Now).Round(time.Second)
		if left < 0 {
			left = 0
		}
		sb.WriteString(fmt.Sprintf("• <code>%s</code> %s, expires in %s\n",
			f.escapeHTML(req.RequestID),
			f.escapeHTML(strings.Join(req.AcceptedSources, "/")),
			left,
		))
	}

	sb.WriteString("\n<b>Cursors:</b>\n")
	if len(status.Cursors) == 0 {
		sb.WriteString("none yet\n")
	}
	for _, c := range status.Cursors {
		sb.WriteString(fmt.Sprintf("• %s: <code>%s</code>\n", f.escapeHTML(c.Source), f.escapeHTML(c.HistoryID)))
	}

	return f.truncate(strings.TrimRight(sb.String(), "\n"), f.maxLength)
}

// escapeHTML escapes HTML special characters for Telegram
func (f *TelegramFormatter) escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// truncate keeps whole lines up to maxLen characters so HTML tags are never split
func (f *TelegramFormatter) truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 100
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}

	var sb strings.Builder
	length := 0
	for _, line := range strings.Split(s, "\n") {
		n := utf8.RuneCountInString(line) + 1
		if length+n > maxLen {
			break
		}
		sb.WriteString(line)
		sb.WriteString("\n")
		length += n
	}
	return sb.String() + "\n<i>... (truncated)</i>"
}

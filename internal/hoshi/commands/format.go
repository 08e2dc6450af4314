package commands

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/igorvasilek/hoshi/common/redact"
	"github.com/igorvasilek/hoshi/internal/hoshi/apperr"
	"github.com/igorvasilek/hoshi/internal/hoshi/ratelimit"
)

// FormatUptime renders d as "1d 02h 03m 04s". Days are omitted when zero,
// hours when both days and hours are zero.
func FormatUptime(d time.Duration) string {
	total := int64(d / time.Second)
	if total < 0 {
		total = 0
	}
	days, rem := total/86400, total%86400
	hours, rem := rem/3600, rem%3600
	minutes, seconds := rem/60, rem%60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%02dh", hours))
	}
	parts = append(parts, fmt.Sprintf("%02dm", minutes), fmt.Sprintf("%02ds", seconds))
	return strings.Join(parts, " ")
}

// mention renders a clickable, escaped reference to the sender.
func mention(msg *Message) string {
	name := msg.FirstName
	if name == "" {
		name = msg.Username
	}
	if name == "" {
		name = strconv.FormatInt(msg.UserID, 10)
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, msg.UserID, html.EscapeString(name))
}

// senderLine describes the sender for operators: name, @username and id.
func senderLine(msg *Message) string {
	line := mention(msg)
	if msg.Username != "" {
		line += " (@" + html.EscapeString(msg.Username) + ")"
	}
	return line + fmt.Sprintf(", id <code>%d</code>", msg.UserID)
}

func truncate(s string, maxRunes int) string {
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes]) + "…"
}

// escapeWithin HTML-escapes s and shortens the result to at most maxRunes
// runes, ellipsis included. Whole runes are dropped so no entity is cut.
func escapeWithin(s string, maxRunes int) string {
	full := html.EscapeString(s)
	if utf8.RuneCountInString(full) <= maxRunes {
		return full
	}
	var b strings.Builder
	n := 0
	for _, r := range s {
		e := html.EscapeString(string(r))
		l := utf8.RuneCountInString(e)
		if n+l > maxRunes-1 {
			break
		}
		b.WriteString(e)
		n += l
	}
	return b.String() + "…"
}

func backendError(err error, secrets []string) error {
	return apperr.Backend(html.EscapeString(redact.Snippet(err.Error(), 160, secrets...)), err)
}

func imagineKey(userID int64) string {
	return ratelimit.Key(ratelimit.OpImagine, userID)
}

func feedbackKey(userID int64) string {
	return ratelimit.Key(ratelimit.OpFeedback, userID)
}

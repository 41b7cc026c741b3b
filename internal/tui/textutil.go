package tui

import (
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// truncateEnd shortens s to at most max characters, appending an ellipsis
// if truncation occurs. Handles negative or tiny limits gracefully.
func truncateEnd(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 1 {
		return "…"
	}
	return string(r[:limit-1]) + "…"
}

// truncateMiddle shortens s to at most limit characters by preserving the
// start and end of the string with a single ellipsis in the middle.
// Useful for URLs where both ends carry meaning.
func truncateMiddle(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	n := len(r)
	if n <= limit {
		return s
	}
	if limit <= 1 {
		return "…"
	}
	keep := limit - 1
	left := keep / 2
	right := keep - left
	if left <= 0 {
		return "…" + string(r[n-right:])
	}
	return string(r[:left]) + "…" + string(r[n-right:])
}

// formatPrice renders amount with thousands separators after the currency
// symbol. Whole amounts drop the decimals.
func formatPrice(amount float64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	var digits string
	if amount == math.Trunc(amount) {
		digits = humanize.Comma(int64(amount))
	} else {
		digits = humanize.FormatFloat("#,###.##", amount)
	}
	return sign + currency + digits
}

// relativeTime describes t relative to now, switching to a calendar date
// after a week.
func relativeTime(t, now time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute && d > -time.Minute:
		return "just now"
	case d < 7*24*time.Hour:
		return humanize.RelTime(t, now, "ago", "from now")
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("Jan 2, 2006")
}

// singleLine collapses whitespace so a description fits one list row.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

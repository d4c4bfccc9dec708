// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatQuantity formats a quantity with thousands separators.
func FormatQuantity(qty int) string {
	s := strconv.Itoa(qty)
	negative := qty < 0
	if negative {
		s = s[1:]
	}

	n := len(s)
	if n > 3 {
		// First group from the left, then groups of 3
		head := n % 3
		if head == 0 {
			head = 3
		}
		out := s[:head]
		for i := head; i < n; i += 3 {
			out += "," + s[i:i+3]
		}
		s = out
	}

	if negative {
		return "-" + s
	}
	return s
}

// FormatDelta formats a quantity change with sign.
func FormatDelta(delta int) string {
	if delta > 0 {
		return "+" + FormatQuantity(delta)
	}
	return FormatQuantity(delta)
}

// FormatDay formats a calendar day as YYYY-MM-DD.
func FormatDay(day time.Time) string {
	return day.Format("2006-01-02")
}

// FormatAge formats how long ago t was, relative to now.
func FormatAge(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < 0:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// MaskCredential masks a secret for display, keeping only its edges.
func MaskCredential(value string) string {
	switch {
	case len(value) == 0:
		return ""
	case len(value) <= 4:
		return strings.Repeat("*", len(value))
	case len(value) <= 8:
		return value[:2] + strings.Repeat("*", len(value)-2)
	default:
		return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
	}
}

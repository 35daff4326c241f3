package deliveries

import (
	"fmt"
	"math"
	"time"
)

// ETALabel renders the time left until eta, e.g. "ETA 5h 3m" or "ETA -12m" when overdue.
func ETALabel(eta, now time.Time) string {
	if eta.IsZero() {
		return "ETA —"
	}
	diff := eta.Sub(now)
	sign := ""
	if diff < 0 {
		sign = "-"
		diff = -diff
	}
	mins := int(math.Round(diff.Minutes()))
	h, m := mins/60, mins%60
	if h == 0 {
		return fmt.Sprintf("ETA %s%dm", sign, m)
	}
	return fmt.Sprintf("ETA %s%dh %dm", sign, h, m)
}

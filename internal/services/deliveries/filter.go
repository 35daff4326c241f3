package deliveries

import (
	"slices"
	"strings"

	"github.com/BearBump/TrackSync/internal/models"
)

// Filter returns the deliveries matching every criterion of spec, in input order.
// A delivery with a zero (unparseable) ETA passes the date range.
func Filter(ds []*models.Delivery, spec models.FilterSpec) []*models.Delivery {
	out := make([]*models.Delivery, 0, len(ds))
	q := strings.ToLower(strings.TrimSpace(spec.Query))
	courier := strings.TrimSpace(spec.Courier)

	for _, d := range ds {
		if d == nil {
			continue
		}
		if len(spec.Statuses) > 0 && !slices.Contains(spec.Statuses, d.Status) {
			continue
		}
		if courier != "" && d.Courier != courier {
			continue
		}
		if spec.MineOnly && !d.Mine {
			continue
		}
		if !etaInRange(d, spec) {
			continue
		}
		if q != "" && !matchesQuery(d, q) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func etaInRange(d *models.Delivery, spec models.FilterSpec) bool {
	if spec.From == nil && spec.To == nil {
		return true
	}
	if d.ETA.IsZero() {
		return true
	}
	if spec.From != nil && d.ETA.Before(*spec.From) {
		return false
	}
	if spec.To != nil && d.ETA.After(*spec.To) {
		return false
	}
	return true
}

func matchesQuery(d *models.Delivery, q string) bool {
	for _, field := range []string{d.ID, d.Recipient, d.Address, d.Courier} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// Couriers returns the sorted set of couriers present in ds.
func Couriers(ds []*models.Delivery) []string {
	seen := make(map[string]struct{}, len(ds))
	out := []string{}
	for _, d := range ds {
		if d == nil || d.Courier == "" {
			continue
		}
		if _, ok := seen[d.Courier]; ok {
			continue
		}
		seen[d.Courier] = struct{}{}
		out = append(out, d.Courier)
	}
	slices.Sort(out)
	return out
}

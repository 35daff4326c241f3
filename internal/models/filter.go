package models

import (
	"net/url"
	"slices"
	"strings"
	"time"
)

// FilterSpec describes which deliveries are visible. An empty Statuses set means
// "no restriction". From/To are inclusive bounds on ETA.
type FilterSpec struct {
	Query    string           `json:"query,omitempty"`
	Statuses []DeliveryStatus `json:"statuses,omitempty"`
	Courier  string           `json:"courier,omitempty"`
	MineOnly bool             `json:"mineOnly,omitempty"`
	From     *time.Time       `json:"from,omitempty"`
	To       *time.Time       `json:"to,omitempty"`
}

// DefaultFilterSpec selects every status, which is what "Clear" restores.
func DefaultFilterSpec() FilterSpec {
	return FilterSpec{Statuses: slices.Clone(AllStatuses)}
}

// Intersect combines two specs so that filtering by the result equals filtering by both.
// ok is false when the pair cannot be expressed as a single spec: disjoint non-empty status
// sets, different couriers or different non-empty queries.
func (f FilterSpec) Intersect(o FilterSpec) (FilterSpec, bool) {
	out := FilterSpec{MineOnly: f.MineOnly || o.MineOnly}

	switch {
	case len(f.Statuses) == 0:
		out.Statuses = slices.Clone(o.Statuses)
	case len(o.Statuses) == 0:
		out.Statuses = slices.Clone(f.Statuses)
	default:
		for _, s := range f.Statuses {
			if slices.Contains(o.Statuses, s) && !slices.Contains(out.Statuses, s) {
				out.Statuses = append(out.Statuses, s)
			}
		}
		if len(out.Statuses) == 0 {
			return FilterSpec{}, false
		}
	}

	fc, oc := strings.TrimSpace(f.Courier), strings.TrimSpace(o.Courier)
	switch {
	case fc == "":
		out.Courier = oc
	case oc == "" || oc == fc:
		out.Courier = fc
	default:
		return FilterSpec{}, false
	}

	fq, oq := strings.ToLower(strings.TrimSpace(f.Query)), strings.ToLower(strings.TrimSpace(o.Query))
	switch {
	case fq == "":
		out.Query = oq
	case oq == "" || oq == fq:
		out.Query = fq
	default:
		return FilterSpec{}, false
	}

	out.From = laterOf(f.From, o.From)
	out.To = earlierOf(f.To, o.To)
	return out, true
}

func laterOf(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	default:
		return a
	}
}

func earlierOf(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.Before(*a):
		return b
	default:
		return a
	}
}

// Values encodes the filter as list query parameters:
// query, status (CSV), courier, mine, from, to.
func (f FilterSpec) Values() url.Values {
	q := url.Values{}
	if f.Query != "" {
		q.Set("query", f.Query)
	}
	if len(f.Statuses) > 0 {
		parts := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			parts = append(parts, string(s))
		}
		q.Set("status", strings.Join(parts, ","))
	}
	if f.Courier != "" {
		q.Set("courier", f.Courier)
	}
	if f.MineOnly {
		q.Set("mine", "true")
	}
	if f.From != nil {
		q.Set("from", f.From.UTC().Format(time.RFC3339))
	}
	if f.To != nil {
		q.Set("to", f.To.UTC().Format(time.RFC3339))
	}
	return q
}

// ParseFilterSpec reads the list query parameters. Status names go through the same
// synonyms as inbound payloads; unknown names are kept lowercased and simply never match.
// A date-only "to" covers the whole calendar day.
func ParseFilterSpec(q url.Values) FilterSpec {
	f := FilterSpec{
		Query:   strings.TrimSpace(q.Get("query")),
		Courier: strings.TrimSpace(q.Get("courier")),
	}
	if raw := q.Get("status"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			st, ok := LookupStatus(p)
			if !ok {
				st = DeliveryStatus(strings.ToLower(p))
			}
			if !slices.Contains(f.Statuses, st) {
				f.Statuses = append(f.Statuses, st)
			}
		}
	}
	switch strings.ToLower(q.Get("mine")) {
	case "true", "1", "yes":
		f.MineOnly = true
	}
	if t, _, ok := parseBound(q.Get("from")); ok {
		f.From = &t
	}
	if t, dateOnly, ok := parseBound(q.Get("to")); ok {
		if dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		f.To = &t
	}
	return f
}

func parseBound(s string) (time.Time, bool, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, false
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), true, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), false, true
	}
	return time.Time{}, false, false
}

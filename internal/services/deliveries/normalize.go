package deliveries

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/TrackSync/internal/models"
)

// Field aliases, in priority order: the first non-empty value wins.
var (
	idKeys        = []string{"id", "orderId", "trackingId"}
	recipientKeys = []string{"recipient", "customer", "recipientName"}
	addressKeys   = []string{"address", "destination", "deliveryAddress"}
	courierKeys   = []string{"courier", "carrier"}
	etaKeys       = []string{"eta", "estimatedDelivery", "estimatedArrival"}
	mineKeys      = []string{"mine", "isMine"}
	timelineKeys  = []string{"timeline", "events"}

	eventTimeKeys    = []string{"timestamp", "time", "createdAt"}
	eventMessageKeys = []string{"message", "note", "description"}
)

// NormalizeStatus maps a raw status case-insensitively onto the closed status set.
// Anything unrecognised becomes in-transit.
func NormalizeStatus(raw string) models.DeliveryStatus {
	if st, ok := models.LookupStatus(raw); ok {
		return st
	}
	return models.StatusInTransit
}

// Normalize maps a raw REST or push payload onto the canonical delivery shape.
// Returns nil for a nil payload. Descriptive fields never come back empty.
func Normalize(raw map[string]any, now time.Time) *models.Delivery {
	if raw == nil {
		return nil
	}

	id := firstString(raw, idKeys...)
	d := &models.Delivery{
		ID:        id,
		Recipient: stringOr(raw, models.UnknownRecipient, recipientKeys...),
		Address:   stringOr(raw, models.Placeholder, addressKeys...),
		Courier:   stringOr(raw, models.Placeholder, courierKeys...),
		Status:    NormalizeStatus(firstString(raw, "status")),
		Mine:      firstBool(raw, mineKeys...),
		Timeline:  []models.DeliveryEvent{},
	}

	if etaRaw, ok := firstPresent(raw, etaKeys...); ok {
		// Непарсящийся ETA оставляем нулевым: фильтр по датам его пропускает.
		d.ETA, _ = parseTime(etaRaw)
	} else {
		d.ETA = now
	}

	parent := id
	if parent == "" {
		parent = "evt"
	}
	for i, ev := range eventsOf(raw) {
		d.Timeline = append(d.Timeline, normalizeEvent(ev, parent, i, now))
	}
	return d
}

// NormalizeUpdate maps a raw partial payload onto an update: only keys present in the
// payload produce fields. Timeline events get the same treatment as in Normalize.
func NormalizeUpdate(raw map[string]any, now time.Time) *models.DeliveryUpdate {
	if raw == nil {
		return nil
	}

	u := &models.DeliveryUpdate{ID: firstString(raw, idKeys...)}
	if v := firstString(raw, recipientKeys...); v != "" {
		u.Recipient = &v
	}
	if v := firstString(raw, addressKeys...); v != "" {
		u.Address = &v
	}
	if v := firstString(raw, courierKeys...); v != "" {
		u.Courier = &v
	}
	if v := firstString(raw, "status"); v != "" {
		s := string(NormalizeStatus(v))
		u.Status = &s
	}
	if v, ok := firstPresent(raw, etaKeys...); ok {
		if t, ok := parseTime(v); ok {
			u.ETA = &t
		}
	}
	if _, ok := firstPresent(raw, mineKeys...); ok {
		b := firstBool(raw, mineKeys...)
		u.Mine = &b
	}

	if _, ok := firstPresent(raw, timelineKeys...); ok {
		parent := u.ID
		if parent == "" {
			parent = "evt"
		}
		u.Timeline = []models.EventUpdate{}
		for i, ev := range eventsOf(raw) {
			e := normalizeEvent(ev, parent, i, now)
			u.Timeline = append(u.Timeline, models.EventUpdate{
				ID:        e.ID,
				Timestamp: e.Timestamp,
				Status:    string(e.Status),
				Message:   e.Message,
				Location:  e.Location,
			})
		}
	}
	return u
}

func normalizeEvent(raw map[string]any, parent string, idx int, now time.Time) models.DeliveryEvent {
	e := models.DeliveryEvent{
		ID:      firstString(raw, "id"),
		Status:  NormalizeStatus(firstString(raw, "status")),
		Message: stringOr(raw, models.DefaultMessage, eventMessageKeys...),
	}
	if e.ID == "" {
		e.ID = fmt.Sprintf("%s-%d", parent, idx)
	}
	e.Timestamp = now
	if v, ok := firstPresent(raw, eventTimeKeys...); ok {
		if t, ok := parseTime(v); ok {
			e.Timestamp = t
		}
	}
	if loc := firstString(raw, "location"); loc != "" {
		e.Location = &loc
	}
	return e
}

func eventsOf(raw map[string]any) []map[string]any {
	v, ok := firstPresent(raw, timelineKeys...)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func firstPresent(raw map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
				continue
			}
			return v, true
		}
	}
	return nil, false
}

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := asString(raw[k]); s != "" {
			return s
		}
	}
	return ""
}

func stringOr(raw map[string]any, def string, keys ...string) string {
	if s := firstString(raw, keys...); s != "" {
		return s
	}
	return def
}

// firstBool takes the first non-null value, the way a nullish fallback chain would.
func firstBool(raw map[string]any, keys ...string) bool {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		switch b := v.(type) {
		case bool:
			return b
		case string:
			parsed, _ := strconv.ParseBool(strings.TrimSpace(b))
			return parsed
		case float64:
			return b != 0
		default:
			return false
		}
	}
	return false
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	default:
		return ""
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// parseTime accepts ISO-8601 strings or epoch milliseconds.
func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
	case float64:
		return time.UnixMilli(int64(t)).UTC(), true
	case time.Time:
		return t.UTC(), true
	}
	return time.Time{}, false
}

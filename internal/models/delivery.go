package models

import (
	"strings"
	"time"
)

type DeliveryStatus string

// Нормализованные статусы доставки. Набор закрыт.
const (
	StatusInTransit DeliveryStatus = "in-transit"
	StatusDelivered DeliveryStatus = "delivered"
	StatusDelayed   DeliveryStatus = "delayed"
)

// AllStatuses is the closed status set in display order.
var AllStatuses = []DeliveryStatus{StatusInTransit, StatusDelivered, StatusDelayed}

var statusSynonyms = map[string]DeliveryStatus{
	"in-transit": StatusInTransit,
	"in_transit": StatusInTransit,
	"intransit":  StatusInTransit,
	"in transit": StatusInTransit,
	"delivered":  StatusDelivered,
	"delayed":    StatusDelayed,
	"delay":      StatusDelayed,
	"exception":  StatusDelayed,
}

// LookupStatus maps a raw status name case-insensitively onto the closed set.
// Reports false when the name is not recognised.
func LookupStatus(raw string) (DeliveryStatus, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if st, ok := statusSynonyms[s]; ok {
		return st, true
	}
	if strings.HasPrefix(s, "exception") {
		return StatusDelayed, true
	}
	return "", false
}

// Placeholders for descriptive fields missing from input.
const (
	UnknownRecipient = "Unknown"
	Placeholder      = "—"
	DefaultMessage   = "Status update"
)

type DeliveryEvent struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Status    DeliveryStatus `json:"status"`
	Message   string         `json:"message"`
	Location  *string        `json:"location,omitempty"`
}

// Delivery is the canonical record of a tracked shipment. Timeline is ascending by
// Timestamp with unique event ids. A zero ETA means the source value could not be parsed.
type Delivery struct {
	ID        string          `json:"id"`
	Recipient string          `json:"recipient"`
	Address   string          `json:"address"`
	Courier   string          `json:"courier"`
	Status    DeliveryStatus  `json:"status"`
	ETA       time.Time       `json:"eta"`
	Mine      bool            `json:"mine"`
	Timeline  []DeliveryEvent `json:"timeline"`
}

// Clone returns a deep copy, so callers can hand out deliveries without aliasing the timeline.
func (d *Delivery) Clone() *Delivery {
	if d == nil {
		return nil
	}
	out := *d
	if d.Timeline != nil {
		out.Timeline = make([]DeliveryEvent, len(d.Timeline))
		copy(out.Timeline, d.Timeline)
	}
	return &out
}

// EventUpdate is a timeline entry carried by a partial update. Empty ID and zero Timestamp
// mean the source omitted them.
type EventUpdate struct {
	ID        string
	Timestamp time.Time
	Status    string
	Message   string
	Location  *string
}

// DeliveryUpdate is a partial delivery: nil fields are absent from the update.
// A nil Timeline means the update carries no timeline at all.
type DeliveryUpdate struct {
	ID        string
	Recipient *string
	Address   *string
	Courier   *string
	Status    *string
	ETA       *time.Time
	Mine      *bool
	Timeline  []EventUpdate
}

// UpdateFromDelivery turns a full delivery (e.g. a poll result) into an update carrying
// every field.
func UpdateFromDelivery(d *Delivery) *DeliveryUpdate {
	if d == nil {
		return nil
	}
	status := string(d.Status)
	eta := d.ETA
	u := &DeliveryUpdate{
		ID:        d.ID,
		Recipient: ptr(d.Recipient),
		Address:   ptr(d.Address),
		Courier:   ptr(d.Courier),
		Status:    &status,
		ETA:       &eta,
		Mine:      ptr(d.Mine),
		Timeline:  make([]EventUpdate, 0, len(d.Timeline)),
	}
	for _, e := range d.Timeline {
		u.Timeline = append(u.Timeline, EventUpdate{
			ID:        e.ID,
			Timestamp: e.Timestamp,
			Status:    string(e.Status),
			Message:   e.Message,
			Location:  e.Location,
		})
	}
	return u
}

func ptr[T any](v T) *T { return &v }

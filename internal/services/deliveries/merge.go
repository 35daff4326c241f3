package deliveries

import (
	"fmt"
	"hash/fnv"
	"slices"
	"strconv"
	"time"

	"github.com/BearBump/TrackSync/internal/models"
)

// Merge combines a canonical delivery with a partial update and returns a new delivery.
// Neither argument is modified.
//
// Scalars present in the update overwrite the existing ones. The timeline is upserted by
// event id (the inbound event replaces the stored one) and re-sorted by timestamp, so
// re-applying the same update yields the same result.
func Merge(existing *models.Delivery, update *models.DeliveryUpdate) *models.Delivery {
	if existing == nil {
		return FromUpdate(update)
	}
	if update == nil {
		return existing
	}

	merged := existing.Clone()
	if update.ID != "" {
		merged.ID = update.ID
	}
	if update.Recipient != nil {
		merged.Recipient = *update.Recipient
	}
	if update.Address != nil {
		merged.Address = *update.Address
	}
	if update.Courier != nil {
		merged.Courier = *update.Courier
	}
	if update.Status != nil && *update.Status != "" {
		merged.Status = NormalizeStatus(*update.Status)
	}
	if update.ETA != nil {
		merged.ETA = *update.ETA
	}
	if update.Mine != nil {
		merged.Mine = *update.Mine
	}

	if len(update.Timeline) > 0 {
		merged.Timeline = upsertTimeline(existing.Timeline, update.Timeline, merged.ID)
	}
	return merged
}

// FromUpdate materialises an update that has nothing to merge into. Fields are taken
// as they are; timeline entries only get ids and statuses filled in.
func FromUpdate(u *models.DeliveryUpdate) *models.Delivery {
	if u == nil {
		return nil
	}
	d := &models.Delivery{ID: u.ID}
	if u.Recipient != nil {
		d.Recipient = *u.Recipient
	}
	if u.Address != nil {
		d.Address = *u.Address
	}
	if u.Courier != nil {
		d.Courier = *u.Courier
	}
	if u.Status != nil {
		d.Status = NormalizeStatus(*u.Status)
	}
	if u.ETA != nil {
		d.ETA = *u.ETA
	}
	if u.Mine != nil {
		d.Mine = *u.Mine
	}
	if u.Timeline != nil {
		d.Timeline = make([]models.DeliveryEvent, 0, len(u.Timeline))
		for i, e := range u.Timeline {
			d.Timeline = append(d.Timeline, toEvent(e, u.ID, i, nil))
		}
	}
	return d
}

func upsertTimeline(existing []models.DeliveryEvent, incoming []models.EventUpdate, deliveryID string) []models.DeliveryEvent {
	order := make([]string, 0, len(existing)+len(incoming))
	byID := make(map[string]models.DeliveryEvent, len(existing)+len(incoming))
	for _, e := range existing {
		if _, seen := byID[e.ID]; !seen {
			order = append(order, e.ID)
		}
		byID[e.ID] = e
	}

	for i, in := range incoming {
		id := in.ID
		if id == "" {
			id = syntheticEventID(deliveryID, i)
		}
		var prev *models.DeliveryEvent
		if old, ok := byID[id]; ok {
			prev = &old
		} else {
			order = append(order, id)
		}
		in.ID = id
		e := toEvent(in, deliveryID, i, prev)
		if e.Timestamp.IsZero() && prev == nil {
			e.Timestamp = latest(byID)
		}
		byID[id] = e
	}

	out := make([]models.DeliveryEvent, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	slices.SortStableFunc(out, func(a, b models.DeliveryEvent) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out
}

// toEvent fills the defaults of an inbound event. A missing timestamp inherits the one of
// the event being replaced.
func toEvent(in models.EventUpdate, deliveryID string, idx int, prev *models.DeliveryEvent) models.DeliveryEvent {
	e := models.DeliveryEvent{
		ID:        in.ID,
		Timestamp: in.Timestamp,
		Status:    NormalizeStatus(in.Status),
		Message:   in.Message,
		Location:  in.Location,
	}
	if e.ID == "" {
		e.ID = syntheticEventID(deliveryID, idx)
	}
	if e.Message == "" {
		e.Message = models.DefaultMessage
	}
	if e.Timestamp.IsZero() && prev != nil {
		e.Timestamp = prev.Timestamp
	}
	return e
}

// syntheticEventID is deterministic in (delivery id, position in the update), so two
// merges of the same id-less update dedup identically.
func syntheticEventID(deliveryID string, idx int) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(deliveryID))
	_, _ = h.Write([]byte("#"))
	_, _ = h.Write([]byte(strconv.Itoa(idx)))
	return fmt.Sprintf("%s-%08x", deliveryID, h.Sum32())
}

// latest places an undated new event after everything already known.
func latest(events map[string]models.DeliveryEvent) time.Time {
	var t time.Time
	for _, e := range events {
		if e.Timestamp.After(t) {
			t = e.Timestamp
		}
	}
	return t
}

package messages

import (
	"time"

	"github.com/BearBump/TrackSync/internal/models"
)

// DeliveryMerged is published after every applied update. Its shape is a valid push frame,
// so another watcher can consume the mirror topic as its push source.
type DeliveryMerged struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id"`
	MergedAt  time.Time        `json:"merged_at"`
	Source    string           `json:"source"`
	Delivery  *models.Delivery `json:"delivery"`
}

func NewDeliveryMerged(sessionID, source string, d *models.Delivery, at time.Time) DeliveryMerged {
	return DeliveryMerged{
		Type:      TypeDeliveryUpdated,
		SessionID: sessionID,
		MergedAt:  at,
		Source:    source,
		Delivery:  d,
	}
}

package backend

import (
	"context"

	"github.com/BearBump/TrackSync/internal/models"
)

// Source is where deliveries come from: the REST backend or the in-memory mock dataset.
type Source interface {
	// ListDeliveries returns normalized deliveries matching spec.
	ListDeliveries(ctx context.Context, spec models.FilterSpec) ([]*models.Delivery, error)
	// GetDelivery returns (nil, nil) when the id is unknown.
	GetDelivery(ctx context.Context, id string) (*models.Delivery, error)
}

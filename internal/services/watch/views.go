package watch

import (
	"sync"

	"github.com/BearBump/TrackSync/internal/models"
)

// ListView is the loaded delivery list plus its load status.
type ListView struct {
	mu      sync.RWMutex
	items   []*models.Delivery
	loading bool
	err     string
}

func (v *ListView) Entry(id string) *models.Delivery {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, d := range v.items {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func (v *ListView) ReplaceEntry(d *models.Delivery) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, cur := range v.items {
		if cur.ID == d.ID {
			v.items[i] = d
			return
		}
	}
}

func (v *ListView) setLoading() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.loading = true
	v.err = ""
}

func (v *ListView) set(items []*models.Delivery) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.items = items
	v.loading = false
	v.err = ""
}

func (v *ListView) fail(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.loading = false
	v.err = msg
}

func (v *ListView) snapshot() ([]*models.Delivery, bool, string) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]*models.Delivery, len(v.items))
	copy(out, v.items)
	return out, v.loading, v.err
}

// DetailView is the delivery open for inspection; nil means nothing selected or not found.
type DetailView struct {
	mu sync.RWMutex
	d  *models.Delivery
}

func (v *DetailView) Detail() *models.Delivery {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.d
}

func (v *DetailView) ReplaceDetail(d *models.Delivery) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.d != nil && d != nil && v.d.ID == d.ID {
		v.d = d
	}
}

func (v *DetailView) set(d *models.Delivery) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.d = d
}

// Package registry holds the process-wide lookup from town identifier to
// its live coordinators. Towns are created explicitly and torn down by
// disconnecting every player first.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/pixil98/go-log"
	"github.com/pixil98/go-town/internal/annotation"
	"github.com/pixil98/go-town/internal/town"
)

// Town pairs a town coordinator with its optional annotation pipeline.
// A town created without a store has no annotation support; annotation
// requests against it fail with town.ErrNotFound.
type Town struct {
	Coordinator *town.Coordinator
	Annotations *annotation.Coordinator
}

// Summary is the listing view of a public town.
type Summary struct {
	ID           string `json:"townId"`
	FriendlyName string `json:"friendlyName"`
	Occupancy    int    `json:"currentOccupancy"`
	Capacity     int    `json:"maximumOccupancy"`
}

// Registry is the process-wide town table. It is safe for concurrent use;
// each town's own lock serializes mutations within the town, the registry
// lock only guards the table itself.
type Registry struct {
	mu    sync.RWMutex
	towns map[string]*Town

	store          annotation.Store
	capacity       int
	annotationOpts []annotation.CoordinatorOpt
}

// NewRegistry creates an empty registry. The store backs every town's
// annotation pipeline; pass nil to create towns without annotation support.
func NewRegistry(store annotation.Store, capacity int, opts ...annotation.CoordinatorOpt) *Registry {
	return &Registry{
		towns:          make(map[string]*Town),
		store:          store,
		capacity:       capacity,
		annotationOpts: opts,
	}
}

// CreateTown creates a town and returns its live handle. The coordinator
// carries the update password that gates destruction.
func (r *Registry) CreateTown(friendlyName string, public bool) (*Town, error) {
	if friendlyName == "" {
		return nil, fmt.Errorf("%w: friendly name must be set", town.ErrInvalidInput)
	}

	coord := town.NewCoordinator(friendlyName, public, r.capacity)
	t := &Town{Coordinator: coord}
	if r.store != nil {
		t.Annotations = annotation.NewCoordinator(coord, r.store, r.annotationOpts...)
	}

	r.mu.Lock()
	r.towns[coord.ID()] = t
	r.mu.Unlock()
	return t, nil
}

// GetTown resolves a town identifier.
func (r *Registry) GetTown(id string) (*Town, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.towns[id]
	if !ok {
		return nil, fmt.Errorf("%w: town %s", town.ErrNotFound, id)
	}
	return t, nil
}

// ListPublic returns summaries of every publicly listed town.
func (r *Registry) ListPublic() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Summary, 0, len(r.towns))
	for id, t := range r.towns {
		if !t.Coordinator.IsPublic() {
			continue
		}
		out = append(out, Summary{
			ID:           id,
			FriendlyName: t.Coordinator.FriendlyName(),
			Occupancy:    t.Coordinator.Occupancy(),
			Capacity:     t.Coordinator.Capacity(),
		})
	}
	return out
}

// DeleteTown destroys a town after checking the update password: every
// session is disconnected, a single townClosing event fires, and the town
// disappears from the table.
func (r *Registry) DeleteTown(id, password string) error {
	r.mu.Lock()
	t, ok := r.towns[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: town %s", town.ErrNotFound, id)
	}
	if t.Coordinator.UpdatePassword() != password {
		r.mu.Unlock()
		return fmt.Errorf("%w: wrong update password for town %s", town.ErrForbidden, id)
	}
	delete(r.towns, id)
	r.mu.Unlock()

	t.Coordinator.DisconnectAllPlayers()
	return nil
}

// Tick runs the post expiry sweep across every town with annotation
// support. It satisfies the driver's Manager interface.
func (r *Registry) Tick(ctx context.Context) error {
	r.mu.RLock()
	towns := make([]*Town, 0, len(r.towns))
	for _, t := range r.towns {
		towns = append(towns, t)
	}
	r.mu.RUnlock()

	logger := log.GetLogger(ctx)
	for _, t := range towns {
		if t.Annotations == nil {
			continue
		}
		swept, err := t.Annotations.SweepExpired(ctx)
		if err != nil {
			logger.WithError(err).Errorf("sweeping town %s", t.Coordinator.ID())
			continue
		}
		if swept > 0 {
			logger.Infof("swept %d expired posts in town %s", swept, t.Coordinator.ID())
		}
	}
	return nil
}

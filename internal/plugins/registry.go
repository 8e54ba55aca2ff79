// Package plugins provides the domain-facing plugin/channel registry used
// by the ingestion pipeline (§4.I): which event public_ids are currently
// the target of an enabled ChannelMapping.
package plugins

import "context"

// ActiveEventsStore is the persistence gateway's single registry method.
type ActiveEventsStore interface {
	ActiveEventIDs(ctx context.Context, eventPublicIDs []string) (map[string]bool, error)
}

// Registry answers "is this event active" questions for the ingestion
// pipeline's filtering stage.
type Registry struct {
	store ActiveEventsStore
}

// New constructs a Registry over the persistence gateway.
func New(store ActiveEventsStore) *Registry {
	return &Registry{store: store}
}

// ActiveEventIDs returns the subset of eventPublicIDs that are linked via
// an enabled ChannelMapping.
func (r *Registry) ActiveEventIDs(ctx context.Context, eventPublicIDs []string) (map[string]bool, error) {
	return r.store.ActiveEventIDs(ctx, eventPublicIDs)
}

// Partition splits datapoints into accepted (active event) and rejected
// (inactive/unmapped event) counts' worth of public_ids, without needing
// the caller to know the registry's storage representation.
func (r *Registry) Partition(ctx context.Context, eventPublicIDs []string) (active map[string]bool, err error) {
	unique := make(map[string]struct{}, len(eventPublicIDs))
	dedup := make([]string, 0, len(eventPublicIDs))
	for _, id := range eventPublicIDs {
		if _, ok := unique[id]; ok {
			continue
		}
		unique[id] = struct{}{}
		dedup = append(dedup, id)
	}
	return r.store.ActiveEventIDs(ctx, dedup)
}

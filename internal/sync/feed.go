package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/AhsanAkhlaq/skewplay/internal/store"
)

// queryTimeout bounds the collection read triggered by a store notification.
const queryTimeout = 5 * time.Second

// Feed turns store change notifications into full-collection snapshots.
// Wire it with store.SetNotify(feed.Notify).
type Feed struct {
	store  store.Store
	broker *Broker
	logger *slog.Logger
}

// NewFeed creates a feed publishing through the given broker.
func NewFeed(s store.Store, b *Broker, logger *slog.Logger) *Feed {
	return &Feed{store: s, broker: b, logger: logger}
}

// Notify re-reads the changed collection and publishes its current state.
// A failed read drops the snapshot; the next write publishes complete state
// again, so subscribers self-heal.
func (f *Feed) Notify(collection, ownerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var entities []Entity
	switch collection {
	case store.CollectionDatasets:
		datasets, err := f.store.ListDatasets(ctx, ownerID)
		if err != nil {
			f.logger.Error("failed to read datasets for snapshot", "user_id", ownerID, "error", err)
			return
		}
		entities = make([]Entity, 0, len(datasets))
		for _, d := range datasets {
			entities = append(entities, d)
		}
	case store.CollectionWorkflows:
		workflows, err := f.store.ListWorkflows(ctx, ownerID)
		if err != nil {
			f.logger.Error("failed to read workflows for snapshot", "user_id", ownerID, "error", err)
			return
		}
		entities = make([]Entity, 0, len(workflows))
		for _, w := range workflows {
			entities = append(entities, w)
		}
	default:
		return
	}

	f.broker.Publish(Snapshot{
		Collection: collection,
		OwnerID:    ownerID,
		ServerTime: serverTime(entities),
		Entities:   entities,
	})
}

// serverTime is the newest revision in the snapshot. An empty collection
// (for example after the last delete) is stamped with the current time so
// reconcilers still observe progress.
func serverTime(entities []Entity) time.Time {
	if len(entities) == 0 {
		return time.Now().UTC()
	}
	newest := entities[0].Revision()
	for _, e := range entities[1:] {
		if r := e.Revision(); r.After(newest) {
			newest = r
		}
	}
	return newest
}

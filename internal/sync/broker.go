// Package sync maintains live per-user mirrors of the dataset and workflow
// collections. The store pushes change notifications into a Feed, the Feed
// publishes full-collection snapshots through a Broker, and a Reconciler
// merges those snapshots with locally staged optimistic writes.
package sync

import (
	gosync "sync"
	"time"
)

// subscriberBufferSize is the channel buffer for each snapshot subscriber.
// Snapshots carry full collection state, so a dropped snapshot is superseded
// by the next one rather than lost.
const subscriberBufferSize = 16

// Entity is a record that can appear in a collection snapshot.
type Entity interface {
	EntityID() string
	Revision() time.Time
}

// Snapshot is the full state of one user's collection at a point in time.
type Snapshot struct {
	Collection string
	OwnerID    string
	ServerTime time.Time
	Entities   []Entity
}

// Broker fans collection snapshots out to per-user subscribers.
// It is safe for concurrent use.
type Broker struct {
	mu     gosync.Mutex
	topics map[topicKey]*topic
}

type topicKey struct {
	owner      string
	collection string
}

type topic struct {
	subs   map[int]chan Snapshot
	nextID int
}

// NewBroker creates a snapshot broker.
func NewBroker() *Broker {
	return &Broker{
		topics: make(map[topicKey]*topic),
	}
}

// Subscribe returns a channel receiving snapshots of one user's collection
// and an unsubscribe function.
func (b *Broker) Subscribe(ownerID, collection string) (<-chan Snapshot, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := topicKey{owner: ownerID, collection: collection}
	t, ok := b.topics[key]
	if !ok {
		t = &topic{subs: make(map[int]chan Snapshot)}
		b.topics[key] = t
	}

	ch := make(chan Snapshot, subscriberBufferSize)
	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(ch)
		}
	}
}

// Publish delivers a snapshot to all subscribers of its owner and collection.
// Snapshots are dropped for subscribers whose buffers are full; the next
// publish carries the complete state anyway.
func (b *Broker) Publish(s Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[topicKey{owner: s.OwnerID, collection: s.Collection}]
	if !ok {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// Detach closes and removes every subscription belonging to the given user.
// Called on logout so a later session starts from a clean subscription set.
func (b *Broker) Detach(ownerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, t := range b.topics {
		if key.owner != ownerID {
			continue
		}
		for id, ch := range t.subs {
			close(ch)
			delete(t.subs, id)
		}
		delete(b.topics, key)
	}
}

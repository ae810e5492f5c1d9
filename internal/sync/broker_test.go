package sync_test

import (
	"testing"
	"time"

	"github.com/AhsanAkhlaq/skewplay/internal/model"
	"github.com/AhsanAkhlaq/skewplay/internal/sync"
)

func datasetSnapshot(owner string, at time.Time, datasets ...*model.Dataset) sync.Snapshot {
	entities := make([]sync.Entity, 0, len(datasets))
	for _, d := range datasets {
		entities = append(entities, d)
	}
	return sync.Snapshot{
		Collection: "datasets",
		OwnerID:    owner,
		ServerTime: at,
		Entities:   entities,
	}
}

func TestBrokerDeliversToSubscriber(t *testing.T) {
	b := sync.NewBroker()
	ch, unsub := b.Subscribe("u1", "datasets")
	defer unsub()

	want := datasetSnapshot("u1", time.Now(), &model.Dataset{ID: "d1"})
	b.Publish(want)

	select {
	case got := <-ch:
		if len(got.Entities) != 1 || got.Entities[0].EntityID() != "d1" {
			t.Errorf("snapshot = %+v, want one entity d1", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func TestBrokerScopesByOwnerAndCollection(t *testing.T) {
	b := sync.NewBroker()
	ch, unsub := b.Subscribe("u1", "datasets")
	defer unsub()

	b.Publish(datasetSnapshot("u2", time.Now(), &model.Dataset{ID: "foreign"}))
	b.Publish(sync.Snapshot{Collection: "workflows", OwnerID: "u1"})

	select {
	case s := <-ch:
		t.Errorf("got snapshot %+v, want none across owner or collection", s)
	default:
	}
}

func TestBrokerMultipleSubscribers(t *testing.T) {
	b := sync.NewBroker()
	ch1, unsub1 := b.Subscribe("u1", "datasets")
	defer unsub1()
	ch2, unsub2 := b.Subscribe("u1", "datasets")
	defer unsub2()

	b.Publish(datasetSnapshot("u1", time.Now(), &model.Dataset{ID: "d1"}))

	for i, ch := range []<-chan sync.Snapshot{ch1, ch2} {
		select {
		case got := <-ch:
			if got.Entities[0].EntityID() != "d1" {
				t.Errorf("subscriber %d got %+v", i+1, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d got nothing", i+1)
		}
	}
}

func TestBrokerUnsubscribeStopsDelivery(t *testing.T) {
	b := sync.NewBroker()
	ch, unsub := b.Subscribe("u1", "datasets")
	unsub()

	b.Publish(datasetSnapshot("u1", time.Now(), &model.Dataset{ID: "d1"}))

	if _, ok := <-ch; ok {
		t.Error("channel should be closed with no snapshots after unsubscribe")
	}
}

func TestBrokerDetachClosesAllUserChannels(t *testing.T) {
	b := sync.NewBroker()
	datasets, unsub1 := b.Subscribe("u1", "datasets")
	defer unsub1()
	workflows, unsub2 := b.Subscribe("u1", "workflows")
	defer unsub2()
	other, unsub3 := b.Subscribe("u2", "datasets")
	defer unsub3()

	b.Detach("u1")

	if _, ok := <-datasets; ok {
		t.Error("datasets channel should be closed after Detach")
	}
	if _, ok := <-workflows; ok {
		t.Error("workflows channel should be closed after Detach")
	}

	// The other user's subscription keeps working.
	b.Publish(datasetSnapshot("u2", time.Now(), &model.Dataset{ID: "d2"}))
	select {
	case got := <-other:
		if got.Entities[0].EntityID() != "d2" {
			t.Errorf("snapshot = %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("other user's subscription stopped delivering")
	}
}

func TestBrokerSlowSubscriberDropsSnapshots(t *testing.T) {
	b := sync.NewBroker()
	ch, unsub := b.Subscribe("u1", "datasets")
	defer unsub()

	// Overflow the buffer without reading; Publish must never block.
	for i := 0; i < 100; i++ {
		b.Publish(datasetSnapshot("u1", time.Now(), &model.Dataset{ID: "d1"}))
	}

	drained := 0
	for {
		select {
		case <-ch:
			drained++
			continue
		default:
		}
		break
	}
	if drained == 0 || drained >= 100 {
		t.Errorf("drained %d snapshots, want a bounded non-zero backlog", drained)
	}
}

package sync_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/AhsanAkhlaq/skewplay/internal/model"
	"github.com/AhsanAkhlaq/skewplay/internal/store"
	"github.com/AhsanAkhlaq/skewplay/internal/sync"
)

func newFeedFixture(t *testing.T) (*store.SQLiteStore, *sync.Broker) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	b := sync.NewBroker()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	s.SetNotify(sync.NewFeed(s, b, logger).Notify)
	return s, b
}

func receive(t *testing.T, ch <-chan sync.Snapshot) sync.Snapshot {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
		return sync.Snapshot{}
	}
}

func TestFeedPublishesDatasetWrites(t *testing.T) {
	s, b := newFeedFixture(t)
	ch, unsub := b.Subscribe("u1", store.CollectionDatasets)
	defer unsub()

	ctx := context.Background()
	d := &model.Dataset{ID: model.NewID(), OwnerID: "u1", FileName: "churn.csv", SizeBytes: 10}
	if err := s.CreateDataset(ctx, d); err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}

	snap := receive(t, ch)
	if snap.Collection != store.CollectionDatasets || snap.OwnerID != "u1" {
		t.Errorf("snapshot scope = %s/%s", snap.Collection, snap.OwnerID)
	}
	if len(snap.Entities) != 1 || snap.Entities[0].EntityID() != d.ID {
		t.Fatalf("snapshot entities = %+v, want the created dataset", snap.Entities)
	}
	if snap.ServerTime.IsZero() {
		t.Error("snapshot has no server time")
	}

	// A rename publishes the full collection again.
	if err := s.RenameDataset(ctx, d.ID, "renamed.csv"); err != nil {
		t.Fatalf("RenameDataset: %v", err)
	}
	snap = receive(t, ch)
	if got := snap.Entities[0].(*model.Dataset).FileName; got != "renamed.csv" {
		t.Errorf("file name = %q, want renamed.csv", got)
	}
}

func TestFeedPublishesWorkflowDelete(t *testing.T) {
	s, b := newFeedFixture(t)
	ctx := context.Background()

	w := &model.Workflow{ID: model.NewID(), OwnerID: "u1", Name: "wf", Status: model.StatusDraft}
	if err := s.CreateWorkflow(ctx, w); err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}

	ch, unsub := b.Subscribe("u1", store.CollectionWorkflows)
	defer unsub()

	if err := s.DeleteWorkflow(ctx, w.ID); err != nil {
		t.Fatalf("DeleteWorkflow: %v", err)
	}

	snap := receive(t, ch)
	if len(snap.Entities) != 0 {
		t.Errorf("entities = %+v, want empty collection after delete", snap.Entities)
	}
	if snap.ServerTime.IsZero() {
		t.Error("empty snapshot still needs a server time")
	}
}

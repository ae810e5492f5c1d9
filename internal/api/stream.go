package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/AhsanAkhlaq/skewplay/internal/model"
	"github.com/AhsanAkhlaq/skewplay/internal/store"
	"github.com/AhsanAkhlaq/skewplay/internal/sync"
)

// streamMessage is one reconciled collection state pushed to the client.
type streamMessage struct {
	Collection string        `json:"collection"`
	ServerTime time.Time     `json:"server_time"`
	Entries    []streamEntry `json:"entries"`
}

type streamEntry struct {
	Origin string `json:"origin"`
	Value  any    `json:"value"`
}

// stageRequest is an inbound client message recording an optimistic write
// ahead of its snapshot confirmation.
type stageRequest struct {
	Collection string          `json:"collection"`
	Entity     json.RawMessage `json:"entity"`
}

// handleStream serves the push channel: a websocket that delivers the
// reconciled dataset and workflow collections, starting with their current
// state and then on every store write. Clients may send stage requests to
// overlay optimistic writes until a confirming snapshot arrives.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	uid, err := s.session(r).UserID()
	if err != nil {
		s.writeDomainError(w, err, "failed to open stream")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Error("websocket accept", "user_id", uid, "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ctx := r.Context()
	rec := sync.NewReconciler()
	rec.Attach(uid)

	datasetCh, unsubDatasets := s.broker.Subscribe(uid, store.CollectionDatasets)
	defer unsubDatasets()
	workflowCh, unsubWorkflows := s.broker.Subscribe(uid, store.CollectionWorkflows)
	defer unsubWorkflows()

	// Prime the mirrors so the client starts from full state instead of
	// waiting for the first write.
	for _, collection := range []string{store.CollectionDatasets, store.CollectionWorkflows} {
		snap, err := s.currentSnapshot(ctx, uid, collection)
		if err != nil {
			s.logger.Error("prime stream", "user_id", uid, "collection", collection, "error", err)
			conn.Close(websocket.StatusInternalError, "failed to load initial state")
			return
		}
		rec.ApplySnapshot(snap)
		if err := writeMirror(ctx, conn, rec, collection, snap.ServerTime); err != nil {
			return
		}
	}

	stageCh := make(chan stageRequest)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			var req stageRequest
			if err := wsjson.Read(ctx, conn, &req); err != nil {
				return
			}
			select {
			case stageCh <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case snap, ok := <-datasetCh:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "session detached")
				return
			}
			rec.ApplySnapshot(snap)
			if err := writeMirror(ctx, conn, rec, snap.Collection, snap.ServerTime); err != nil {
				return
			}
		case snap, ok := <-workflowCh:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "session detached")
				return
			}
			rec.ApplySnapshot(snap)
			if err := writeMirror(ctx, conn, rec, snap.Collection, snap.ServerTime); err != nil {
				return
			}
		case req := <-stageCh:
			entity, err := decodeStageEntity(req)
			if err != nil {
				s.logger.Warn("bad stage request", "user_id", uid, "error", err)
				continue
			}
			now := time.Now().UTC()
			rec.StageOptimistic(req.Collection, entity, now)
			if err := writeMirror(ctx, conn, rec, req.Collection, now); err != nil {
				return
			}
		case <-readDone:
			conn.Close(websocket.StatusNormalClosure, "client closed")
			return
		case <-ctx.Done():
			return
		}
	}
}

// currentSnapshot reads a collection's present state for priming a new stream.
func (s *Server) currentSnapshot(ctx context.Context, uid, collection string) (sync.Snapshot, error) {
	snap := sync.Snapshot{Collection: collection, OwnerID: uid, ServerTime: time.Now().UTC()}
	switch collection {
	case store.CollectionDatasets:
		datasets, err := s.store.ListDatasets(ctx, uid)
		if err != nil {
			return sync.Snapshot{}, err
		}
		for _, d := range datasets {
			snap.Entities = append(snap.Entities, d)
		}
	case store.CollectionWorkflows:
		workflows, err := s.store.ListWorkflows(ctx, uid)
		if err != nil {
			return sync.Snapshot{}, err
		}
		for _, w := range workflows {
			snap.Entities = append(snap.Entities, w)
		}
	}
	return snap, nil
}

func decodeStageEntity(req stageRequest) (sync.Entity, error) {
	switch req.Collection {
	case store.CollectionDatasets:
		var d model.Dataset
		if err := json.Unmarshal(req.Entity, &d); err != nil {
			return nil, err
		}
		return &d, nil
	case store.CollectionWorkflows:
		var w model.Workflow
		if err := json.Unmarshal(req.Entity, &w); err != nil {
			return nil, err
		}
		return &w, nil
	default:
		return nil, fmt.Errorf("unknown collection %q", req.Collection)
	}
}

func writeMirror(ctx context.Context, conn *websocket.Conn, rec *sync.Reconciler, collection string, at time.Time) error {
	entries := rec.Collection(collection)
	msg := streamMessage{
		Collection: collection,
		ServerTime: at,
		Entries:    make([]streamEntry, 0, len(entries)),
	}
	for _, e := range entries {
		msg.Entries = append(msg.Entries, streamEntry{Origin: string(e.Origin), Value: e.Value})
	}
	return wsjson.Write(ctx, conn, msg)
}

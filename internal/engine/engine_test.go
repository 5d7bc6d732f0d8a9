package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/daylists/internal/changelog"
	"github.com/louisbranch/daylists/internal/storage"
)

// fakeStore is an in-memory event store with switchable failure modes.
type fakeStore struct {
	mu         sync.Mutex
	events     []changelog.Event
	fetchErr   error
	appendErr  error
	fetchCount int
}

func (f *fakeStore) Fetch(ctx context.Context, list changelog.ListID) ([]changelog.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCount++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]changelog.Event{}, f.events...), nil
}

func (f *fakeStore) Append(ctx context.Context, list changelog.ListID, evt changelog.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	for _, existing := range f.events {
		if existing.MergeKey() == evt.MergeKey() {
			return nil
		}
	}
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeStore) setFetchErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

func (f *fakeStore) setAppendErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendErr = err
}

func (f *fakeStore) addRemote(evt changelog.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
}

func (f *fakeStore) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCount
}

// fakeSnapshots is an in-memory snapshot store.
type fakeSnapshots struct {
	mu    sync.Mutex
	slots map[string][]changelog.Event
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{slots: make(map[string][]changelog.Event)}
}

func (f *fakeSnapshots) Save(ctx context.Context, list changelog.ListID, events []changelog.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slots[list.Key()] = append([]changelog.Event{}, events...)
	return nil
}

func (f *fakeSnapshots) Load(ctx context.Context, list changelog.ListID) ([]changelog.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	events, ok := f.slots[list.Key()]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]changelog.Event{}, events...), nil
}

// recorder captures render calls.
type recorder struct {
	mu    sync.Mutex
	calls []renderCall
}

type renderCall struct {
	entities []changelog.Entity
	change   Change
}

func (r *recorder) Render(entities []changelog.Entity, change Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, renderCall{entities: entities, change: change})
}

func (r *recorder) last(t *testing.T) renderCall {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		t.Fatal("no render calls recorded")
	}
	return r.calls[len(r.calls)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func testList() changelog.ListID {
	return changelog.ListID{Owner: "ana", Kind: changelog.KindShopping, Day: "2026-08-27"}
}

func newTestEngine(t *testing.T, store *fakeStore, fallback storage.SnapshotStore) (*Engine, *recorder) {
	t.Helper()
	rec := &recorder{}
	eng, err := New(Config{
		List:     testList(),
		Store:    store,
		Fallback: fallback,
		Renderer: rec,
		WriterID: "test-writer",
		Clock: func() time.Time {
			return time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return eng, rec
}

func TestNew_Validation(t *testing.T) {
	rec := &recorder{}
	if _, err := New(Config{Store: &fakeStore{}, Renderer: rec}); err == nil {
		t.Fatal("expected error for invalid list id")
	}
	if _, err := New(Config{List: testList(), Renderer: rec}); err == nil {
		t.Fatal("expected error for missing store")
	}
	if _, err := New(Config{List: testList(), Store: &fakeStore{}}); err == nil {
		t.Fatal("expected error for missing renderer")
	}
}

func TestLoad_FetchesAndRenders(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{events: []changelog.Event{
		{Op: changelog.OpAdded, ID: "1", TS: "2026-08-27T09:00:00.000Z", Text: "milk"},
	}}
	eng, rec := newTestEngine(t, store, nil)

	if err := eng.Load(ctx); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	call := rec.last(t)
	if call.change != ChangeStructural {
		t.Fatalf("initial render change = %q, want structural", call.change)
	}
	if len(call.entities) != 1 || call.entities[0].Text != "milk" {
		t.Fatalf("rendered entities = %+v", call.entities)
	}
	if eng.Status() != StatusOK {
		t.Fatalf("status = %q, want ok", eng.Status())
	}
}

func TestLoad_FallsBackToSnapshotWhenStoreUnreachable(t *testing.T) {
	ctx := context.Background()
	snapshots := newFakeSnapshots()
	snapshots.Save(ctx, testList(), []changelog.Event{
		{Op: changelog.OpAdded, ID: "1", TS: "2026-08-27T08:00:00.000Z", Text: "from snapshot"},
	})

	store := &fakeStore{fetchErr: storage.ErrUnavailable}
	eng, rec := newTestEngine(t, store, snapshots)

	if err := eng.Load(ctx); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	call := rec.last(t)
	if len(call.entities) != 1 || call.entities[0].Text != "from snapshot" {
		t.Fatalf("rendered entities = %+v, want snapshot contents", call.entities)
	}
	if eng.Status() != StatusOffline {
		t.Fatalf("status = %q, want offline", eng.Status())
	}
}

func TestLoad_EmptyFallbackStillRenders(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{fetchErr: storage.ErrUnavailable}
	eng, rec := newTestEngine(t, store, newFakeSnapshots())

	if err := eng.Load(ctx); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if call := rec.last(t); len(call.entities) != 0 {
		t.Fatalf("rendered entities = %+v, want empty", call.entities)
	}
}

func TestSubmit_OptimisticRenderBeforeDurability(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{appendErr: storage.ErrUnavailable}
	eng, rec := newTestEngine(t, store, nil)
	if err := eng.Load(ctx); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	entities, err := eng.Submit(ctx, changelog.Event{Op: changelog.OpAdded, ID: "1", Text: "milk"})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if len(entities) != 1 || entities[0].Text != "milk" {
		t.Fatalf("optimistic entities = %+v", entities)
	}
	if call := rec.last(t); call.change != ChangeStructural {
		t.Fatalf("render change = %q, want structural", call.change)
	}

	eng.appends.Wait()
	if eng.Pending() != 1 {
		t.Fatalf("pending = %d, want 1 while the store is down", eng.Pending())
	}
}

func TestSubmit_StampsProvisionalTimestampAndWriter(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	eng, _ := newTestEngine(t, store, nil)
	if err := eng.Load(ctx); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if _, err := eng.Submit(ctx, changelog.Event{Op: changelog.OpAdded, ID: "1"}); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	eng.appends.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.events) != 1 {
		t.Fatalf("durable events = %d, want 1", len(store.events))
	}
	if store.events[0].TS != "2026-08-27T12:00:00.000Z" {
		t.Fatalf("ts = %q, want the engine clock value", store.events[0].TS)
	}
	if store.events[0].Writer != "test-writer" {
		t.Fatalf("writer = %q, want test-writer", store.events[0].Writer)
	}
}

func TestSubmit_RejectsUnknownOp(t *testing.T) {
	eng, _ := newTestEngine(t, &fakeStore{}, nil)
	if _, err := eng.Submit(context.Background(), changelog.Event{Op: "archived", ID: "1"}); err == nil {
		t.Fatal("expected error for op outside the vocabulary")
	}
}

func TestReconcile_SelfCausedCountIsSuppressed(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	eng, rec := newTestEngine(t, store, nil)
	if err := eng.Load(ctx); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if _, err := eng.Submit(ctx, changelog.Event{Op: changelog.OpAdded, ID: "1", Text: "milk"}); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	eng.appends.Wait()

	renders := rec.count()
	eng.reconcile(ctx)
	if rec.count() != renders {
		t.Fatalf("reconcile re-rendered the engine's own write: %d calls, want %d", rec.count(), renders)
	}
}

func TestReconcile_ExternalEventTriggersRender(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	eng, rec := newTestEngine(t, store, nil)
	if err := eng.Load(ctx); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	store.addRemote(changelog.Event{Op: changelog.OpAdded, ID: "9", TS: "2026-08-27T10:00:00.000Z", Writer: "other", Text: "eggs"})
	eng.reconcile(ctx)

	call := rec.last(t)
	if call.change != ChangeStructural {
		t.Fatalf("render change = %q, want structural", call.change)
	}
	if len(call.entities) != 1 || call.entities[0].ID != "9" {
		t.Fatalf("rendered entities = %+v", call.entities)
	}
}

func TestReconcile_StatusOnlyHint(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{events: []changelog.Event{
		{Op: changelog.OpAdded, ID: "1", TS: "2026-08-27T09:00:00.000Z", Writer: "other", Text: "milk"},
	}}
	eng, rec := newTestEngine(t, store, nil)
	if err := eng.Load(ctx); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	store.addRemote(changelog.Event{Op: changelog.OpChecked, ID: "1", TS: "2026-08-27T10:00:00.000Z", Writer: "other"})
	eng.reconcile(ctx)

	call := rec.last(t)
	if call.change != ChangeStatusOnly {
		t.Fatalf("render change = %q, want status-only", call.change)
	}
	if !call.entities[0].Checked {
		t.Fatalf("entity = %+v, want checked", call.entities[0])
	}
}

func TestReconcile_FetchFailureKeepsCache(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{events: []changelog.Event{
		{Op: changelog.OpAdded, ID: "1", TS: "2026-08-27T09:00:00.000Z", Text: "milk"},
	}}
	eng, rec := newTestEngine(t, store, nil)
	if err := eng.Load(ctx); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	store.setFetchErr(fmt.Errorf("remote down"))
	renders := rec.count()
	eng.reconcile(ctx)

	if eng.Status() != StatusError {
		t.Fatalf("status = %q, want error", eng.Status())
	}
	if rec.count() != renders {
		t.Fatal("failed fetch must not trigger a render")
	}
	if got := eng.Entities(); len(got) != 1 {
		t.Fatalf("cache entities = %+v, want the last good projection", got)
	}
}

func TestReconcile_RetriesPendingAppends(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{appendErr: storage.ErrUnavailable}
	eng, _ := newTestEngine(t, store, nil)
	if err := eng.Load(ctx); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if _, err := eng.Submit(ctx, changelog.Event{Op: changelog.OpAdded, ID: "1", Text: "milk"}); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	eng.appends.Wait()
	if eng.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", eng.Pending())
	}

	store.setAppendErr(nil)
	eng.reconcile(ctx)

	if eng.Pending() != 0 {
		t.Fatalf("pending = %d, want 0 after retry", eng.Pending())
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.events) != 1 {
		t.Fatalf("durable events = %d, want 1", len(store.events))
	}
}

func TestTick_SkippedWhileDragging(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	eng, _ := newTestEngine(t, store, nil)

	eng.SetDragging(true)
	eng.tick(ctx)
	if store.fetches() != 0 {
		t.Fatal("tick must not fetch while a drag is active")
	}

	eng.SetDragging(false)
	eng.tick(ctx)
	if store.fetches() != 1 {
		t.Fatalf("fetches = %d, want 1 after drag ends", store.fetches())
	}
}

func TestTick_SkippedWhilePreviousTickInFlight(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	eng, _ := newTestEngine(t, store, nil)

	eng.syncing.Store(true)
	eng.tick(ctx)
	if store.fetches() != 0 {
		t.Fatal("tick must not overlap an in-flight reconciliation")
	}
}

func TestClose_FlushesPending(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{appendErr: storage.ErrUnavailable}
	eng, _ := newTestEngine(t, store, nil)
	if err := eng.Load(ctx); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if _, err := eng.Submit(ctx, changelog.Event{Op: changelog.OpAdded, ID: "1"}); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	eng.appends.Wait()
	store.setAppendErr(nil)

	closeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := eng.Close(closeCtx); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if eng.Pending() != 0 {
		t.Fatalf("pending = %d, want 0 after close flush", eng.Pending())
	}
}

func TestStart_LoopPolls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &fakeStore{}
	rec := &recorder{}
	eng, err := New(Config{
		List:         testList(),
		Store:        store,
		Renderer:     rec,
		PollInterval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	eng.Start(ctx)
	deadline := time.After(2 * time.Second)
	for store.fetches() < 2 {
		select {
		case <-deadline:
			t.Fatal("loop did not poll within the deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}

	closeCtx, cancelClose := context.WithTimeout(context.Background(), time.Second)
	defer cancelClose()
	if err := eng.Close(closeCtx); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}

func TestDegradedMode_ResumesAfterStoreRecovers(t *testing.T) {
	ctx := context.Background()
	snapshots := newFakeSnapshots()
	snapshots.Save(ctx, testList(), []changelog.Event{
		{Op: changelog.OpAdded, ID: "1", TS: "2026-08-27T08:00:00.000Z", Writer: "w0", Text: "offline item"},
	})

	store := &fakeStore{fetchErr: storage.ErrUnavailable, appendErr: storage.ErrUnavailable}
	eng, rec := newTestEngine(t, store, snapshots)
	if err := eng.Load(ctx); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	// Writes keep working against the snapshot while offline.
	if _, err := eng.Submit(ctx, changelog.Event{Op: changelog.OpAdded, ID: "2", Text: "written offline"}); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	eng.appends.Wait()

	store.setFetchErr(nil)
	store.setAppendErr(nil)
	store.addRemote(changelog.Event{Op: changelog.OpAdded, ID: "3", TS: "2026-08-27T11:00:00.000Z", Writer: "other", Text: "remote item"})
	eng.reconcile(ctx)

	if eng.Status() != StatusOK {
		t.Fatalf("status = %q, want ok after recovery", eng.Status())
	}
	ids := map[string]bool{}
	for _, entity := range rec.last(t).entities {
		ids[entity.ID] = true
	}
	for _, want := range []string{"1", "2", "3"} {
		if !ids[want] {
			t.Fatalf("entity %s missing after recovery merge: %v", want, ids)
		}
	}
	if eng.Pending() != 0 {
		t.Fatalf("pending = %d, want offline write flushed on recovery", eng.Pending())
	}
}

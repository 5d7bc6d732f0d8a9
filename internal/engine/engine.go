package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/louisbranch/daylists/internal/changelog"
	"github.com/louisbranch/daylists/internal/storage"
)

const defaultPollInterval = 3 * time.Second

// Status is the engine's sync health, surfaced as a non-blocking
// indicator. No store failure is ever fatal; the worst outcome is a stale
// but internally consistent view.
type Status string

const (
	// StatusOK means the last store round trip succeeded.
	StatusOK Status = "ok"
	// StatusError means the last fetch or append failed; the engine keeps
	// serving the last good cache.
	StatusError Status = "error"
	// StatusOffline means the remote store was unreachable at load time
	// and the engine is running against the local fallback snapshot.
	StatusOffline Status = "offline"
)

// Config assembles an engine for one list identity.
type Config struct {
	List     changelog.ListID
	Store    storage.EventStore
	Renderer Renderer
	// Fallback is the durable local snapshot slot. Optional: without it
	// the engine still works, it just has nothing to degrade to.
	Fallback storage.SnapshotStore
	// PollInterval is the reconciliation cadence. Defaults to 3s.
	PollInterval time.Duration
	// WriterID identifies this writer connection in event merge
	// identities. Defaults to a fresh uuid.
	WriterID string
	// Clock stamps provisional timestamps. Defaults to time.Now.
	Clock func() time.Time
}

// Engine owns the changelog cache, sync flags, and write path for one
// list instance. All cache mutation goes through the engine; there are no
// ambient globals, so independent lists run independent engines.
type Engine struct {
	list     changelog.ListID
	store    storage.EventStore
	fallback storage.SnapshotStore
	renderer Renderer
	writer   string
	interval time.Duration
	clock    func() time.Time

	// syncing guards against overlapping reconciliation ticks; dragging
	// is set by the caller around reorder gestures and makes the loop
	// skip its tick entirely. Cooperative exclusion, not locking.
	syncing  atomic.Bool
	dragging atomic.Bool
	flushing atomic.Bool

	mu sync.Mutex
	// cache is the working event set, the source of truth until the next
	// successful fetch.
	cache     *changelog.Log
	projected []changelog.Entity
	// lastRemoteCount is the event count last observed at (or confirmed
	// by) the store. A successful local append bumps it so the next poll
	// does not read the engine's own write as an external change.
	lastRemoteCount int
	pending         []changelog.Event
	status          Status

	appends  sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  atomic.Bool
}

// New creates an engine. It does not touch the store; call Load to
// populate the cache and Start to begin reconciliation.
func New(cfg Config) (*Engine, error) {
	if err := cfg.List.Validate(); err != nil {
		return nil, err
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("event store is required")
	}
	if cfg.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.WriterID == "" {
		cfg.WriterID = uuid.NewString()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Engine{
		list:     cfg.List,
		store:    cfg.Store,
		fallback: cfg.Fallback,
		renderer: cfg.Renderer,
		writer:   cfg.WriterID,
		interval: cfg.PollInterval,
		clock:    cfg.Clock,
		cache:    changelog.NewLog(nil),
		status:   StatusOK,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Load populates the cache from the remote store, or from the local
// fallback snapshot when the store is unreachable, and performs the
// initial render.
func (e *Engine) Load(ctx context.Context) error {
	events, err := e.store.Fetch(ctx, e.list)

	e.mu.Lock()
	switch {
	case err == nil:
		e.cache.Replace(events)
		e.lastRemoteCount = len(events)
		e.status = StatusOK
	default:
		// Degraded mode: the local snapshot is just another input event
		// set; reconciliation resumes normal operation transparently once
		// the store is reachable again.
		e.status = StatusOffline
		if e.fallback != nil {
			snapshot, loadErr := e.fallback.Load(ctx, e.list)
			if loadErr == nil {
				e.cache.Replace(snapshot)
			} else if !errors.Is(loadErr, storage.ErrNotFound) {
				log.Printf("load fallback snapshot %s: %v", e.list.Key(), loadErr)
			}
		}
	}
	entities := changelog.Replay(e.cache.Events())
	e.projected = entities
	e.mu.Unlock()

	if err == nil {
		e.saveSnapshot(ctx)
	}
	e.renderer.Render(entities, ChangeStructural)
	return nil
}

// Submit accepts a user intent, applies it optimistically, and forwards
// the event to the store in the background. The returned entity sequence
// reflects the optimistic state so callers can render instantly.
func (e *Engine) Submit(ctx context.Context, evt changelog.Event) ([]changelog.Entity, error) {
	if err := evt.Validate(); err != nil {
		return nil, err
	}
	if evt.TS == "" {
		evt.TS = changelog.Timestamp(e.clock())
	}
	evt.Writer = e.writer

	e.mu.Lock()
	e.cache.Add(evt)
	e.pending = append(e.pending, evt)
	previous := e.projected
	entities := changelog.Replay(e.cache.Events())
	e.projected = entities
	e.mu.Unlock()

	e.saveSnapshot(ctx)
	e.renderer.Render(entities, diffChange(previous, entities))

	// Durable append is fire-and-forget; the optimistic copy and the
	// durable copy share a merge identity, so the next fetch converges
	// either way.
	e.appends.Add(1)
	go func(ctx context.Context) {
		defer e.appends.Done()
		e.flushPending(ctx)
	}(context.WithoutCancel(ctx))

	return entities, nil
}

// Start launches the reconciliation loop. It returns immediately; the
// loop stops when ctx is cancelled or Close is called.
func (e *Engine) Start(ctx context.Context) {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(e.doneCh)
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stopCh:
				return
			case <-ticker.C:
				e.tick(ctx)
			}
		}
	}()
}

// tick runs one reconciliation cycle unless a drag gesture is active or
// the previous cycle is still in flight.
func (e *Engine) tick(ctx context.Context) {
	if e.dragging.Load() {
		return
	}
	if !e.syncing.CompareAndSwap(false, true) {
		return
	}
	defer e.syncing.Store(false)
	e.reconcile(ctx)
}

// reconcile retries pending appends, re-fetches the remote collection,
// and re-renders when the store has grown or shrunk since the last
// observation.
func (e *Engine) reconcile(ctx context.Context) {
	e.flushPending(ctx)

	remote, err := e.store.Fetch(ctx, e.list)
	if err != nil {
		// Keep the last good cache; a failed poll is a status change,
		// never a destructive fallback.
		e.mu.Lock()
		e.status = StatusError
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	e.status = StatusOK
	changed := len(remote) != e.lastRemoteCount
	e.lastRemoteCount = len(remote)
	var previous, entities []changelog.Entity
	if changed {
		e.cache.Add(remote...)
		previous = e.projected
		entities = changelog.Replay(e.cache.Events())
		e.projected = entities
	}
	e.mu.Unlock()

	if !changed {
		return
	}
	e.saveSnapshot(ctx)
	e.renderer.Render(entities, diffChange(previous, entities))
}

// flushPending appends queued events in order, stopping at the first
// failure. Each confirmed append bumps the last observed count so the
// engine's own writes are not reported back to it as external changes.
// One flusher runs at a time; a skipped flush is retried on the next
// store touch.
func (e *Engine) flushPending(ctx context.Context) {
	if !e.flushing.CompareAndSwap(false, true) {
		return
	}
	defer e.flushing.Store(false)
	for {
		e.mu.Lock()
		if len(e.pending) == 0 {
			e.mu.Unlock()
			return
		}
		next := e.pending[0]
		e.mu.Unlock()

		if err := e.store.Append(ctx, e.list, next); err != nil {
			// Best effort: the event stays pending and is retried when a
			// later write or reconciliation cycle touches the store.
			e.mu.Lock()
			e.status = StatusError
			e.mu.Unlock()
			return
		}

		e.mu.Lock()
		e.pending = e.pending[1:]
		e.lastRemoteCount++
		e.status = StatusOK
		e.mu.Unlock()
	}
}

// SetDragging marks a reorder gesture in progress. While set, the
// reconciliation loop skips its tick entirely so a poll cannot visually
// revert the user's in-progress action.
func (e *Engine) SetDragging(dragging bool) {
	e.dragging.Store(dragging)
}

// Status returns the current sync health.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Entities returns the current projection.
func (e *Engine) Entities() []changelog.Entity {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]changelog.Entity, len(e.projected))
	copy(out, e.projected)
	return out
}

// Pending reports how many events await durable confirmation.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Close stops the reconciliation loop and attempts a bounded-time flush
// of pending appends. Abandoning an in-flight flush at the caller's
// deadline is the accepted outcome, not an error.
func (e *Engine) Close(ctx context.Context) error {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
	if e.started.Load() {
		select {
		case <-e.doneCh:
		case <-ctx.Done():
		}
	}

	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		e.appends.Wait()
		e.flushPending(ctx)
	}()
	select {
	case <-flushed:
	case <-ctx.Done():
	}
	return nil
}

// saveSnapshot persists the cache to the local fallback slot, best
// effort.
func (e *Engine) saveSnapshot(ctx context.Context) {
	if e.fallback == nil {
		return
	}
	e.mu.Lock()
	events := e.cache.Events()
	e.mu.Unlock()
	if err := e.fallback.Save(ctx, e.list, events); err != nil {
		log.Printf("save fallback snapshot %s: %v", e.list.Key(), err)
	}
}

// diffChange classifies how the projection changed: a different id
// sequence is structural, differing fields on the same sequence are
// status-only.
func diffChange(previous, current []changelog.Entity) Change {
	if len(previous) != len(current) {
		return ChangeStructural
	}
	statusChanged := false
	for i := range current {
		if previous[i].ID != current[i].ID {
			return ChangeStructural
		}
		if previous[i] != current[i] {
			statusChanged = true
		}
	}
	if statusChanged {
		return ChangeStatusOnly
	}
	return ChangeNone
}

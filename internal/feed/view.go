package feed

import (
	"context"
	"sync"
	"time"

	"github.com/trollcity/wallsync/internal/wall"
	"go.uber.org/zap"
)

// DefaultFlushInterval is the fixed cadence at which buffered change
// events are drained into the window.
const DefaultFlushInterval = 150 * time.Millisecond

// ViewConfig describes one mounted feed view.
type ViewConfig struct {
	Backend       Backend
	Realtime      Realtime
	ViewerID      wall.UserID // empty for an anonymous viewer
	Capacity      int
	FlushInterval time.Duration
	Jitter        func() time.Duration
	Logger        *zap.Logger
}

// View assembles the window, buffer, driver, loader and mutator for one
// feed lifetime: Start populates and subscribes, Close releases the
// subscription and flush loop deterministically. All window writes
// funnel through the flush loop and mutation reconciliation; nothing
// else touches it.
type View struct {
	store   *Store
	buffer  *ChangeEventBuffer
	driver  *SubscriptionDriver
	loader  *Loader
	mutator *Mutator

	viewerID      wall.UserID
	flushInterval time.Duration
	logger        *zap.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	loading bool
	lastErr error
	stopCh  chan struct{}
	done    chan struct{}
}

// NewView validates dependencies and assembles a feed view.
func NewView(cfg ViewConfig) (*View, error) {
	if cfg.Backend == nil {
		return nil, newServiceError("feed.view.new", "missing_backend", errMissingBackend)
	}
	if cfg.Realtime == nil {
		return nil, newServiceError("feed.view.new", "missing_realtime", errMissingRealtime)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}

	store := NewStore(cfg.Capacity)
	buffer := NewChangeEventBuffer()
	driver, err := NewSubscriptionDriver(cfg.Realtime, buffer, logger)
	if err != nil {
		return nil, err
	}
	loader, err := NewLoader(LoaderConfig{
		Backend:  cfg.Backend,
		Capacity: store.Capacity(),
		Jitter:   cfg.Jitter,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	mutator, err := NewMutator(MutatorConfig{
		Backend:      cfg.Backend,
		Store:        store,
		ViewerID:     cfg.ViewerID,
		ViewerWindow: true,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	return &View{
		store:         store,
		buffer:        buffer,
		driver:        driver,
		loader:        loader,
		mutator:       mutator,
		viewerID:      cfg.ViewerID,
		flushInterval: flushInterval,
		logger:        logger,
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
	}, nil
}

// Start performs the cold-start load, opens the realtime subscription
// and launches the flush loop. Events that arrive while the initial
// load is still in flight queue in the buffer and merge on the first
// ticks after it completes.
func (v *View) Start(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrViewClosed
	}
	if v.started {
		v.mu.Unlock()
		return errAlreadySubscribed
	}
	v.started = true
	v.loading = true
	v.mu.Unlock()

	if err := v.driver.Start(); err != nil {
		v.mu.Lock()
		v.started = false
		v.loading = false
		v.lastErr = err
		v.mu.Unlock()
		return err
	}

	posts, err := v.loader.Load(ctx, v.viewerID)
	if err != nil {
		v.setLoadState(false, err)
		// The subscription stays open: the prior (empty) window remains
		// valid and Refresh can recover.
	} else {
		v.store.Replace(posts)
		v.setLoadState(false, nil)
	}

	go v.flushLoop()
	return err
}

// Refresh fully resynchronizes the window from the store, replacing it
// atomically on success and leaving it untouched on failure.
func (v *View) Refresh(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrViewClosed
	}
	v.loading = true
	v.mu.Unlock()

	posts, err := v.loader.Load(ctx, v.viewerID)
	if err != nil {
		v.setLoadState(false, err)
		return err
	}
	v.store.Replace(posts)
	v.setLoadState(false, nil)
	return nil
}

// Close releases the subscription and stops the flush loop. It is
// idempotent. In-flight mutation calls are not cancelled; the detached
// mutator turns their late resolutions into no-ops.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	started := v.started
	v.mu.Unlock()

	v.driver.Stop()
	v.mutator.Detach()
	close(v.stopCh)
	if started {
		<-v.done
	} else {
		close(v.done)
	}
}

// Posts returns the current ordered window snapshot.
func (v *View) Posts() []wall.Post {
	return v.store.Snapshot()
}

// Store exposes the window for read access and tests.
func (v *View) Store() *Store {
	return v.store
}

// Mutator returns the viewer mutation surface of this view.
func (v *View) Mutator() *Mutator {
	return v.mutator
}

// Loading reports whether a bulk load is in progress.
func (v *View) Loading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loading
}

// Err returns the most recent load error, nil after a successful load.
func (v *View) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastErr
}

func (v *View) setLoadState(loading bool, err error) {
	v.mu.Lock()
	v.loading = loading
	v.lastErr = err
	v.mu.Unlock()
}

// flushLoop drains the buffer on a fixed cadence. Ticks are strictly
// sequential: a tick's batch application finishes before the next drain
// begins. An empty drain skips the window entirely.
func (v *View) flushLoop() {
	defer close(v.done)
	ticker := time.NewTicker(v.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-v.stopCh:
			return
		case <-ticker.C:
			if events := v.buffer.Drain(); len(events) > 0 {
				v.store.ApplyBatch(events)
			}
		}
	}
}

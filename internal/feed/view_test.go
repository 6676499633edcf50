package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/trollcity/wallsync/internal/wall"
)

func newTestView(t *testing.T, backend Backend, realtime Realtime) *View {
	t.Helper()
	view, err := NewView(ViewConfig{
		Backend:       backend,
		Realtime:      realtime,
		ViewerID:      "viewer-1",
		Capacity:      10,
		FlushInterval: 5 * time.Millisecond,
		Jitter:        zeroJitter,
	})
	if err != nil {
		t.Fatalf("unexpected view error: %v", err)
	}
	return view
}

func TestViewStartLoadsAndFlushesChangeEvents(t *testing.T) {
	backend := &fakeBackend{
		fetchFeedPage: func(ctx context.Context, limit int, pinnedFirst bool) ([]wall.Post, error) {
			return []wall.Post{makePost("post-1", 1700000000)}, nil
		},
	}
	realtime := &fakeRealtime{}
	view := newTestView(t, backend, realtime)

	if err := view.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	defer view.Close()

	if len(view.Posts()) != 1 {
		t.Fatalf("expected loaded window, got %d posts", len(view.Posts()))
	}
	if view.Loading() {
		t.Fatalf("expected loading to be finished")
	}

	realtime.emit(wall.ChangeEvent{Kind: wall.EventUpdate, Patch: wall.PostPatch{ID: "post-1", LikeCount: wall.Int64Ptr(4)}})

	deadline := time.After(time.Second)
	for {
		if post, ok := view.Store().Get("post-1"); ok && post.LikeCount == 4 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("change event never flushed into the window")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestViewStartFailsWhenSubscriptionCannotOpen(t *testing.T) {
	realtime := &fakeRealtime{openErr: errors.New("broker down")}
	view := newTestView(t, &fakeBackend{}, realtime)

	if err := view.Start(context.Background()); err == nil {
		t.Fatalf("expected start to fail")
	}
	// Close must not wedge even though the flush loop never ran.
	view.Close()
}

func TestViewKeepsSubscriptionWhenInitialLoadFails(t *testing.T) {
	loadAttempts := 0
	backend := &fakeBackend{
		fetchFeedPage: func(ctx context.Context, limit int, pinnedFirst bool) ([]wall.Post, error) {
			loadAttempts++
			if loadAttempts == 1 {
				return nil, errors.New("store timeout")
			}
			return []wall.Post{makePost("post-1", 1700000000)}, nil
		},
	}
	realtime := &fakeRealtime{}
	view := newTestView(t, backend, realtime)

	if err := view.Start(context.Background()); err == nil {
		t.Fatalf("expected initial load failure to surface")
	}
	defer view.Close()

	if view.Err() == nil {
		t.Fatalf("expected load error to be recorded")
	}
	if len(view.Posts()) != 0 {
		t.Fatalf("failed load must leave the window empty")
	}

	if err := view.Refresh(context.Background()); err != nil {
		t.Fatalf("expected refresh to recover, got %v", err)
	}
	if len(view.Posts()) != 1 || view.Err() != nil {
		t.Fatalf("expected recovered window, got %d posts err %v", len(view.Posts()), view.Err())
	}
}

func TestViewCloseIsIdempotentAndReleasesSubscription(t *testing.T) {
	realtime := &fakeRealtime{}
	view := newTestView(t, &fakeBackend{}, realtime)

	if err := view.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	view.Close()
	view.Close()

	if realtime.cleanupCount() != 1 {
		t.Fatalf("expected exactly one subscription release, got %d", realtime.cleanupCount())
	}
	if err := view.Refresh(context.Background()); !errors.Is(err, ErrViewClosed) {
		t.Fatalf("expected closed-view rejection, got %v", err)
	}
	if err := view.Start(context.Background()); !errors.Is(err, ErrViewClosed) {
		t.Fatalf("expected closed-view rejection on restart, got %v", err)
	}
}

func TestViewMutationsAfterCloseAreNoOps(t *testing.T) {
	backend := &fakeBackend{
		fetchFeedPage: func(ctx context.Context, limit int, pinnedFirst bool) ([]wall.Post, error) {
			return []wall.Post{makePost("post-1", 1700000000)}, nil
		},
		toggleLike: func(ctx context.Context, postID wall.PostID, viewerID wall.UserID) (LikeResult, error) {
			return LikeResult{LikeCount: 3, Liked: true}, nil
		},
	}
	realtime := &fakeRealtime{}
	view := newTestView(t, backend, realtime)

	if err := view.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	mutator := view.Mutator()
	view.Close()

	if _, err := mutator.ToggleLike(context.Background(), "post-1"); err != nil {
		t.Fatalf("late resolution must not error, got %v", err)
	}
	if post, ok := view.Store().Get("post-1"); ok && post.LikeCount != 0 {
		t.Fatalf("closed view window must not change, got %+v", post)
	}
}

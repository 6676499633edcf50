package feed

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/trollcity/wallsync/internal/wall"
)

func newTestMutator(t *testing.T, backend Backend, store *Store, viewerID string) *Mutator {
	t.Helper()
	mutator, err := NewMutator(MutatorConfig{
		Backend:      backend,
		Store:        store,
		ViewerID:     wall.UserID(viewerID),
		ViewerWindow: true,
	})
	if err != nil {
		t.Fatalf("unexpected mutator error: %v", err)
	}
	return mutator
}

func TestMutationsRequireAuthenticatedViewer(t *testing.T) {
	store := NewStore(10)
	mutator := newTestMutator(t, &fakeBackend{}, store, "")

	if _, err := mutator.ToggleLike(context.Background(), "post-1"); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected not-authenticated error, got %v", err)
	}
	if err := mutator.DeletePost(context.Background(), "post-1"); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected not-authenticated error, got %v", err)
	}
}

func TestToggleLikeAppliesConfirmedResultOnly(t *testing.T) {
	store := NewStore(10)
	store.Replace([]wall.Post{makePost("post-1", 1700000000)})

	backend := &fakeBackend{
		toggleLike: func(ctx context.Context, postID wall.PostID, viewerID wall.UserID) (LikeResult, error) {
			return LikeResult{LikeCount: 8, Liked: true}, nil
		},
	}
	mutator := newTestMutator(t, backend, store, "viewer-1")

	result, err := mutator.ToggleLike(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.LikeCount != 8 || !result.Liked {
		t.Fatalf("unexpected result %+v", result)
	}

	stored, _ := store.Get("post-1")
	if stored.LikeCount != 8 || !stored.ViewerLiked {
		t.Fatalf("expected confirmed result in window, got %+v", stored)
	}
}

func TestToggleLikeLeavesWindowUntouchedOnFailure(t *testing.T) {
	store := NewStore(10)
	post := makePost("post-1", 1700000000)
	post.LikeCount = 3
	store.Replace([]wall.Post{post})

	backend := &fakeBackend{
		toggleLike: func(ctx context.Context, postID wall.PostID, viewerID wall.UserID) (LikeResult, error) {
			return LikeResult{}, errors.New("store unavailable")
		},
	}
	mutator := newTestMutator(t, backend, store, "viewer-1")

	if _, err := mutator.ToggleLike(context.Background(), "post-1"); err == nil {
		t.Fatalf("expected failure")
	}
	stored, _ := store.Get("post-1")
	if stored.LikeCount != 3 || stored.ViewerLiked {
		t.Fatalf("failed mutation must not change the window, got %+v", stored)
	}
}

func TestDuplicateInFlightMutationIsRejected(t *testing.T) {
	store := NewStore(10)
	store.Replace([]wall.Post{makePost("post-1", 1700000000)})

	entered := make(chan struct{})
	proceed := make(chan struct{})
	var enteredOnce sync.Once
	backend := &fakeBackend{
		toggleLike: func(ctx context.Context, postID wall.PostID, viewerID wall.UserID) (LikeResult, error) {
			enteredOnce.Do(func() { close(entered) })
			<-proceed
			return LikeResult{LikeCount: 1, Liked: true}, nil
		},
	}
	mutator := newTestMutator(t, backend, store, "viewer-1")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := mutator.ToggleLike(context.Background(), "post-1"); err != nil {
			t.Errorf("unexpected first toggle error: %v", err)
		}
	}()

	<-entered
	if _, err := mutator.ToggleLike(context.Background(), "post-1"); !errors.Is(err, ErrMutationInFlight) {
		t.Fatalf("expected in-flight rejection, got %v", err)
	}

	// A different post is independent, as is a different mutation kind
	// on the same post.
	store.Replace([]wall.Post{makePost("post-1", 1700000000), makePost("post-2", 1699990000)})
	if _, err := mutator.TogglePin(context.Background(), "post-1"); err != nil {
		t.Fatalf("different mutation kind must not be blocked: %v", err)
	}

	close(proceed)
	wg.Wait()

	// After resolution the same mutation can run again.
	if _, err := mutator.ToggleLike(context.Background(), "post-1"); err != nil {
		t.Fatalf("expected released mutation to run, got %v", err)
	}
}

func TestToggleReactionClearsViewerOverlayOnRemoval(t *testing.T) {
	store := NewStore(10)
	post := makePost("post-1", 1700000000)
	post.ViewerReaction = wall.ReactionFire
	store.Replace([]wall.Post{post})

	backend := &fakeBackend{
		toggleReaction: func(ctx context.Context, postID wall.PostID, viewerID wall.UserID, kind wall.ReactionKind) (ReactionResult, error) {
			return ReactionResult{Removed: true, Tally: map[wall.ReactionKind]int64{}}, nil
		},
	}
	mutator := newTestMutator(t, backend, store, "viewer-1")

	result, err := mutator.ToggleReaction(context.Background(), "post-1", wall.ReactionFire)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Removed {
		t.Fatalf("expected removal, got %+v", result)
	}
	stored, _ := store.Get("post-1")
	if stored.ViewerReaction != "" {
		t.Fatalf("expected viewer reaction cleared, got %q", stored.ViewerReaction)
	}
}

func TestToggleReactionRejectsUnknownKind(t *testing.T) {
	mutator := newTestMutator(t, &fakeBackend{}, NewStore(10), "viewer-1")
	if _, err := mutator.ToggleReaction(context.Background(), "post-1", "meh"); !errors.Is(err, wall.ErrInvalidReactionKind) {
		t.Fatalf("expected invalid reaction error, got %v", err)
	}
}

func TestSendGiftFailureIsANormalOutcome(t *testing.T) {
	store := NewStore(10)
	store.Replace([]wall.Post{makePost("post-1", 1700000000)})

	backend := &fakeBackend{
		sendGift: func(ctx context.Context, postID wall.PostID, viewerID wall.UserID, kind wall.GiftKind, quantity int64) (GiftResult, error) {
			return GiftResult{Success: false, Reason: "insufficient_balance"}, nil
		},
	}
	mutator := newTestMutator(t, backend, store, "viewer-1")

	result, err := mutator.SendGift(context.Background(), "post-1", wall.GiftRocket, 1)
	if err != nil {
		t.Fatalf("insufficient balance must not be an error, got %v", err)
	}
	if result.Success || result.Reason != "insufficient_balance" {
		t.Fatalf("unexpected result %+v", result)
	}

	stored, _ := store.Get("post-1")
	if len(stored.GiftTally) != 0 {
		t.Fatalf("failed gift must not change the window, got %+v", stored.GiftTally)
	}
}

func TestSendGiftRejectsOutOfRangeQuantity(t *testing.T) {
	backendCalled := false
	backend := &fakeBackend{
		sendGift: func(ctx context.Context, postID wall.PostID, viewerID wall.UserID, kind wall.GiftKind, quantity int64) (GiftResult, error) {
			backendCalled = true
			return GiftResult{Success: true}, nil
		},
	}
	mutator := newTestMutator(t, backend, NewStore(10), "viewer-1")

	// 368934881474191033 * 25 wraps int64 negative; it must be rejected
	// before any cost arithmetic happens.
	for _, quantity := range []int64{0, -5, wall.MaxGiftQuantity + 1, 368934881474191033} {
		_, err := mutator.SendGift(context.Background(), "post-1", wall.GiftBeer, quantity)
		if !errors.Is(err, wall.ErrInvalidGiftQuantity) {
			t.Fatalf("expected quantity rejection for %d, got %v", quantity, err)
		}
	}
	if backendCalled {
		t.Fatalf("rejected quantities must never reach the backend")
	}
}

func TestDeletePostChecksFreshRole(t *testing.T) {
	store := NewStore(10)
	foreign := makePost("post-1", 1700000000)
	foreign.AuthorID = "someone-else"
	store.Replace([]wall.Post{foreign})

	roleCalls := 0
	backend := &fakeBackend{
		fetchViewerRole: func(ctx context.Context, viewerID wall.UserID) (ViewerRole, error) {
			roleCalls++
			return ViewerRole{}, nil
		},
	}
	mutator := newTestMutator(t, backend, store, "viewer-1")

	if err := mutator.DeletePost(context.Background(), "post-1"); !errors.Is(err, ErrDeleteForbidden) {
		t.Fatalf("expected delete rejection, got %v", err)
	}
	if roleCalls != 1 {
		t.Fatalf("expected one fresh role fetch, got %d", roleCalls)
	}
	if _, ok := store.Get("post-1"); !ok {
		t.Fatalf("rejected delete must not touch the window")
	}
}

func TestDeletePostRemovesFromWindowOnConfirmation(t *testing.T) {
	store := NewStore(10)
	own := makePost("post-1", 1700000000)
	own.AuthorID = "viewer-1"
	store.Replace([]wall.Post{own})

	mutator := newTestMutator(t, &fakeBackend{}, store, "viewer-1")
	if err := mutator.DeletePost(context.Background(), "post-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.Get("post-1"); ok {
		t.Fatalf("expected post removed from window")
	}
}

func TestDetachedMutatorLeavesWindowAlone(t *testing.T) {
	store := NewStore(10)
	store.Replace([]wall.Post{makePost("post-1", 1700000000)})

	backend := &fakeBackend{
		toggleLike: func(ctx context.Context, postID wall.PostID, viewerID wall.UserID) (LikeResult, error) {
			return LikeResult{LikeCount: 5, Liked: true}, nil
		},
	}
	mutator := newTestMutator(t, backend, store, "viewer-1")
	mutator.Detach()

	if _, err := mutator.ToggleLike(context.Background(), "post-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := store.Get("post-1")
	if stored.LikeCount != 0 {
		t.Fatalf("detached mutator must not write the window, got %+v", stored)
	}
}

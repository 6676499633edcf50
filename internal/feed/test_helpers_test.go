package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/trollcity/wallsync/internal/wall"
)

func mustPostID(t *testing.T, value string) wall.PostID {
	t.Helper()
	id, err := wall.NewPostID(value)
	if err != nil {
		t.Fatalf("unexpected post id error: %v", err)
	}
	return id
}

func mustUserID(t *testing.T, value string) wall.UserID {
	t.Helper()
	id, err := wall.NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func zeroJitter() time.Duration { return 0 }

// fakeBackend scripts store responses per test. Unassigned hooks return
// zero values.
type fakeBackend struct {
	fetchFeedPage      func(ctx context.Context, limit int, pinnedFirst bool) ([]wall.Post, error)
	fetchLikeOverlay   func(ctx context.Context, postIDs []wall.PostID, viewerID wall.UserID) (map[wall.PostID]struct{}, error)
	fetchReactionOver  func(ctx context.Context, postIDs []wall.PostID, viewerID wall.UserID) (map[wall.PostID]wall.ReactionKind, error)
	fetchReactionSum   func(ctx context.Context, postIDs []wall.PostID) (map[wall.PostID]map[wall.ReactionKind]int64, error)
	fetchGiftSummaries func(ctx context.Context, postIDs []wall.PostID) (map[wall.PostID]map[wall.GiftKind]wall.GiftStat, error)
	createPost         func(ctx context.Context, draft PostDraft) (wall.Post, error)
	toggleLike         func(ctx context.Context, postID wall.PostID, viewerID wall.UserID) (LikeResult, error)
	toggleReaction     func(ctx context.Context, postID wall.PostID, viewerID wall.UserID, kind wall.ReactionKind) (ReactionResult, error)
	sendGift           func(ctx context.Context, postID wall.PostID, viewerID wall.UserID, kind wall.GiftKind, quantity int64) (GiftResult, error)
	togglePin          func(ctx context.Context, postID wall.PostID, viewerID wall.UserID) (bool, error)
	deletePost         func(ctx context.Context, postID wall.PostID, viewerID wall.UserID) error
	fetchViewerRole    func(ctx context.Context, viewerID wall.UserID) (ViewerRole, error)
}

func (f *fakeBackend) FetchFeedPage(ctx context.Context, limit int, pinnedFirst bool) ([]wall.Post, error) {
	if f.fetchFeedPage == nil {
		return nil, nil
	}
	return f.fetchFeedPage(ctx, limit, pinnedFirst)
}

func (f *fakeBackend) FetchViewerLikeOverlay(ctx context.Context, postIDs []wall.PostID, viewerID wall.UserID) (map[wall.PostID]struct{}, error) {
	if f.fetchLikeOverlay == nil {
		return map[wall.PostID]struct{}{}, nil
	}
	return f.fetchLikeOverlay(ctx, postIDs, viewerID)
}

func (f *fakeBackend) FetchViewerReactionOverlay(ctx context.Context, postIDs []wall.PostID, viewerID wall.UserID) (map[wall.PostID]wall.ReactionKind, error) {
	if f.fetchReactionOver == nil {
		return map[wall.PostID]wall.ReactionKind{}, nil
	}
	return f.fetchReactionOver(ctx, postIDs, viewerID)
}

func (f *fakeBackend) FetchReactionSummaries(ctx context.Context, postIDs []wall.PostID) (map[wall.PostID]map[wall.ReactionKind]int64, error) {
	if f.fetchReactionSum == nil {
		return map[wall.PostID]map[wall.ReactionKind]int64{}, nil
	}
	return f.fetchReactionSum(ctx, postIDs)
}

func (f *fakeBackend) FetchGiftSummaries(ctx context.Context, postIDs []wall.PostID) (map[wall.PostID]map[wall.GiftKind]wall.GiftStat, error) {
	if f.fetchGiftSummaries == nil {
		return map[wall.PostID]map[wall.GiftKind]wall.GiftStat{}, nil
	}
	return f.fetchGiftSummaries(ctx, postIDs)
}

func (f *fakeBackend) CreatePost(ctx context.Context, draft PostDraft) (wall.Post, error) {
	if f.createPost == nil {
		return wall.Post{}, nil
	}
	return f.createPost(ctx, draft)
}

func (f *fakeBackend) ToggleLike(ctx context.Context, postID wall.PostID, viewerID wall.UserID) (LikeResult, error) {
	if f.toggleLike == nil {
		return LikeResult{}, nil
	}
	return f.toggleLike(ctx, postID, viewerID)
}

func (f *fakeBackend) ToggleReaction(ctx context.Context, postID wall.PostID, viewerID wall.UserID, kind wall.ReactionKind) (ReactionResult, error) {
	if f.toggleReaction == nil {
		return ReactionResult{}, nil
	}
	return f.toggleReaction(ctx, postID, viewerID, kind)
}

func (f *fakeBackend) SendGift(ctx context.Context, postID wall.PostID, viewerID wall.UserID, kind wall.GiftKind, quantity int64) (GiftResult, error) {
	if f.sendGift == nil {
		return GiftResult{}, nil
	}
	return f.sendGift(ctx, postID, viewerID, kind, quantity)
}

func (f *fakeBackend) TogglePin(ctx context.Context, postID wall.PostID, viewerID wall.UserID) (bool, error) {
	if f.togglePin == nil {
		return false, nil
	}
	return f.togglePin(ctx, postID, viewerID)
}

func (f *fakeBackend) DeletePost(ctx context.Context, postID wall.PostID, viewerID wall.UserID) error {
	if f.deletePost == nil {
		return nil
	}
	return f.deletePost(ctx, postID, viewerID)
}

func (f *fakeBackend) FetchViewerRole(ctx context.Context, viewerID wall.UserID) (ViewerRole, error) {
	if f.fetchViewerRole == nil {
		return ViewerRole{}, nil
	}
	return f.fetchViewerRole(ctx, viewerID)
}

// fakeRealtime records the subscribed handler so tests can inject
// change events synchronously.
type fakeRealtime struct {
	mu       sync.Mutex
	handler  func(wall.ChangeEvent)
	openErr  error
	cleanups int
}

func (f *fakeRealtime) SubscribeToFeedChanges(handler func(wall.ChangeEvent)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.handler = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cleanups++
		f.handler = nil
	}, nil
}

func (f *fakeRealtime) emit(event wall.ChangeEvent) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		handler(event)
	}
}

func (f *fakeRealtime) cleanupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleanups
}

func makePost(id string, createdAt int64) wall.Post {
	return wall.Post{
		ID:        wall.PostID(id),
		AuthorID:  "author-1",
		PostType:  wall.PostTypeText,
		Content:   "content " + id,
		CreatedAt: time.Unix(createdAt, 0).UTC(),
	}
}

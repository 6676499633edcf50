package feed

import (
	"context"

	"github.com/trollcity/wallsync/internal/wall"
)

// LikeResult is the authoritative outcome of a like toggle.
type LikeResult struct {
	LikeCount int64
	Liked     bool
}

// ReactionResult is the authoritative outcome of a reaction toggle.
// Tally carries the post's full reaction tally so reconciliation never
// has to guess a delta.
type ReactionResult struct {
	ReactionCount int64
	Removed       bool
	Tally         map[wall.ReactionKind]int64
}

// GiftResult is the outcome of a gift send. A failed send (for example
// insufficient coin balance) is a normal outcome, reported through
// Success/Reason rather than an error.
type GiftResult struct {
	Success bool
	Reason  string
	Tally   map[wall.GiftKind]wall.GiftStat
}

// PostDraft is the author-supplied portion of a new wall post. The
// store assigns the identifier and creation timestamp.
type PostDraft struct {
	AuthorID wall.UserID
	PostType wall.PostType
	Content  string
	Metadata map[string]string
}

// ViewerRole carries the privilege flags of one viewer.
type ViewerRole struct {
	IsAdmin   bool
	IsOfficer bool
}

// Privileged reports whether the role grants elevated wall moderation rights.
func (r ViewerRole) Privileged() bool {
	return r.IsAdmin || r.IsOfficer
}

// Backend is the capability boundary to the backing store. Counter
// mutations are store-side atomic procedures; the feed engine only
// applies the authoritative results they return.
type Backend interface {
	FetchFeedPage(ctx context.Context, limit int, pinnedFirst bool) ([]wall.Post, error)
	FetchViewerLikeOverlay(ctx context.Context, postIDs []wall.PostID, viewerID wall.UserID) (map[wall.PostID]struct{}, error)
	FetchViewerReactionOverlay(ctx context.Context, postIDs []wall.PostID, viewerID wall.UserID) (map[wall.PostID]wall.ReactionKind, error)
	FetchReactionSummaries(ctx context.Context, postIDs []wall.PostID) (map[wall.PostID]map[wall.ReactionKind]int64, error)
	FetchGiftSummaries(ctx context.Context, postIDs []wall.PostID) (map[wall.PostID]map[wall.GiftKind]wall.GiftStat, error)

	CreatePost(ctx context.Context, draft PostDraft) (wall.Post, error)
	ToggleLike(ctx context.Context, postID wall.PostID, viewerID wall.UserID) (LikeResult, error)
	ToggleReaction(ctx context.Context, postID wall.PostID, viewerID wall.UserID, kind wall.ReactionKind) (ReactionResult, error)
	SendGift(ctx context.Context, postID wall.PostID, viewerID wall.UserID, kind wall.GiftKind, quantity int64) (GiftResult, error)
	TogglePin(ctx context.Context, postID wall.PostID, viewerID wall.UserID) (bool, error)
	DeletePost(ctx context.Context, postID wall.PostID, viewerID wall.UserID) error

	FetchViewerRole(ctx context.Context, viewerID wall.UserID) (ViewerRole, error)
}

// Realtime is the push channel delivering insert/update change events with
// at-least-once, unordered semantics.
type Realtime interface {
	SubscribeToFeedChanges(handler func(wall.ChangeEvent)) (func(), error)
}

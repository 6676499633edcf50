package feed

import (
	"context"
	"math/rand"
	"time"

	"github.com/trollcity/wallsync/internal/wall"
	"go.uber.org/zap"
)

const (
	// DefaultLoadJitter spreads simultaneous cold starts over a uniform
	// 0-800ms window so shared reloads do not stampede the store.
	DefaultLoadJitter = 800 * time.Millisecond

	opLoad = "feed.load"

	reasonPageFetchFailed         = "page_fetch_failed"
	reasonLikeOverlayFailed       = "like_overlay_failed"
	reasonReactionOverlayFailed   = "reaction_overlay_failed"
	reasonReactionSummariesFailed = "reaction_summaries_failed"
	reasonGiftSummariesFailed     = "gift_summaries_failed"
)

// UniformJitter returns a jitter source drawing uniformly from
// [0, max). A non-positive max yields no delay.
func UniformJitter(max time.Duration) func() time.Duration {
	if max <= 0 {
		return func() time.Duration { return 0 }
	}
	return func() time.Duration {
		return time.Duration(rand.Int63n(int64(max)))
	}
}

// LoaderConfig wires the bulk-fetch path.
type LoaderConfig struct {
	Backend  Backend
	Capacity int
	// Jitter returns the randomized delay applied before the bulk fetch.
	// Nil selects a uniform draw from [0, DefaultLoadJitter).
	Jitter func() time.Duration
	Logger *zap.Logger
}

// Loader performs cold-start and full-refresh population: one jittered
// bulk fetch plus per-post enrichment, producing a display-ready list
// that replaces the window atomically. Any lookup failure surfaces one
// error and leaves the prior window untouched; a partial fetch is never
// applied.
type Loader struct {
	backend  Backend
	capacity int
	jitter   func() time.Duration
	logger   *zap.Logger
}

// NewLoader validates dependencies and builds a Loader.
func NewLoader(cfg LoaderConfig) (*Loader, error) {
	if cfg.Backend == nil {
		return nil, newServiceError("feed.loader.new", "missing_backend", errMissingBackend)
	}
	capacity := cfg.Capacity
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	jitter := cfg.Jitter
	if jitter == nil {
		jitter = UniformJitter(DefaultLoadJitter)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		backend:  cfg.Backend,
		capacity: capacity,
		jitter:   jitter,
		logger:   logger,
	}, nil
}

// Load fetches the authoritative feed snapshot for a viewer. An empty
// viewer id skips the per-viewer overlay lookups entirely.
func (l *Loader) Load(ctx context.Context, viewerID wall.UserID) ([]wall.Post, error) {
	if err := l.sleepJitter(ctx); err != nil {
		return nil, err
	}

	posts, err := l.backend.FetchFeedPage(ctx, l.capacity, true)
	if err != nil {
		l.logError(opLoad, reasonPageFetchFailed, err)
		return nil, newServiceError(opLoad, reasonPageFetchFailed, err)
	}
	if len(posts) == 0 {
		return nil, nil
	}

	postIDs := make([]wall.PostID, 0, len(posts))
	for _, post := range posts {
		postIDs = append(postIDs, post.ID)
	}

	var likedPosts map[wall.PostID]struct{}
	var viewerReactions map[wall.PostID]wall.ReactionKind
	if viewerID != "" {
		likedPosts, err = l.backend.FetchViewerLikeOverlay(ctx, postIDs, viewerID)
		if err != nil {
			l.logError(opLoad, reasonLikeOverlayFailed, err, zap.String("viewer_id", viewerID.String()))
			return nil, newServiceError(opLoad, reasonLikeOverlayFailed, err)
		}
		viewerReactions, err = l.backend.FetchViewerReactionOverlay(ctx, postIDs, viewerID)
		if err != nil {
			l.logError(opLoad, reasonReactionOverlayFailed, err, zap.String("viewer_id", viewerID.String()))
			return nil, newServiceError(opLoad, reasonReactionOverlayFailed, err)
		}
	}

	reactionSummaries, err := l.backend.FetchReactionSummaries(ctx, postIDs)
	if err != nil {
		l.logError(opLoad, reasonReactionSummariesFailed, err)
		return nil, newServiceError(opLoad, reasonReactionSummariesFailed, err)
	}
	giftSummaries, err := l.backend.FetchGiftSummaries(ctx, postIDs)
	if err != nil {
		l.logError(opLoad, reasonGiftSummariesFailed, err)
		return nil, newServiceError(opLoad, reasonGiftSummariesFailed, err)
	}

	merged := make([]wall.Post, 0, len(posts))
	for _, post := range posts {
		enriched := post.Clone()
		if tally, ok := reactionSummaries[post.ID]; ok {
			enriched.ReactionTally = tally
		}
		if tally, ok := giftSummaries[post.ID]; ok {
			enriched.GiftTally = tally
		}
		if likedPosts != nil {
			_, enriched.ViewerLiked = likedPosts[post.ID]
		}
		if viewerReactions != nil {
			enriched.ViewerReaction = viewerReactions[post.ID]
		}
		merged = append(merged, enriched)
	}
	return merged, nil
}

func (l *Loader) sleepJitter(ctx context.Context) error {
	delay := l.jitter()
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loader) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	l.logger.Error("feed loader error", attrs...)
}

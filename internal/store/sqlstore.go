package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trollcity/wallsync/internal/cache"
	"github.com/trollcity/wallsync/internal/feed"
	"github.com/trollcity/wallsync/internal/wall"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a dotted operation.reason code alongside its cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the operation.reason identifier.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

const (
	opStoreNew        = "wall.store.new"
	opCreatePost      = "wall.create_post"
	opFetchFeedPage   = "wall.fetch_feed_page"
	opLikeOverlay     = "wall.fetch_like_overlay"
	opReactionOverlay = "wall.fetch_reaction_overlay"
	opReactionSummary = "wall.fetch_reaction_summaries"
	opGiftSummary     = "wall.fetch_gift_summaries"
	opToggleLike      = "wall.toggle_like"
	opToggleReaction  = "wall.toggle_reaction"
	opSendGift        = "wall.send_gift"
	opTogglePin       = "wall.toggle_pin"
	opDeletePost      = "wall.delete_post"
	opFetchViewerRole = "wall.fetch_viewer_role"

	giftFailInsufficientBalance = "insufficient_balance"
)

// Config wires the SQL store's collaborators. Dispatcher and Cache are
// optional; a store without them neither publishes change events nor
// caches feed pages.
type Config struct {
	Database   *gorm.DB
	Dispatcher *Dispatcher
	Cache      *cache.FeedPageCache
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// SQLStore is the authoritative wall backend. Every counter mutation is a
// row-locked transaction returning the post-mutation truth, and each
// committed mutation is announced on the change feed and invalidates the
// cached feed page.
type SQLStore struct {
	db         *gorm.DB
	dispatcher *Dispatcher
	cache      *cache.FeedPageCache
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewSQLStore validates the configuration and builds the store.
func NewSQLStore(cfg Config) (*SQLStore, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opStoreNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opStoreNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &SQLStore{
		db:         cfg.Database,
		dispatcher: cfg.Dispatcher,
		cache:      cfg.Cache,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

var _ feed.Backend = (*SQLStore)(nil)

// FetchFeedPage returns the newest posts, pinned rows first when asked,
// enriched with author display data. Reaction and gift tallies ride on
// their own fetches.
func (s *SQLStore) FetchFeedPage(ctx context.Context, limit int, pinnedFirst bool) ([]wall.Post, error) {
	if limit <= 0 {
		limit = feed.DefaultCapacity
	}

	if pinnedFirst {
		if cached, ok := s.cache.GetPage(ctx, limit); ok {
			return cached, nil
		}
	}

	order := "created_at_s DESC, post_id DESC"
	if pinnedFirst {
		order = "is_pinned DESC, " + order
	}

	var rows []WallPost
	if err := s.db.WithContext(ctx).
		Order(order).
		Limit(limit).
		Find(&rows).Error; err != nil {
		s.logError(opFetchFeedPage, "query_failed", err, zap.Int("limit", limit))
		return nil, newServiceError(opFetchFeedPage, "query_failed", err)
	}

	profiles, err := s.fetchAuthorProfiles(ctx, rows)
	if err != nil {
		s.logError(opFetchFeedPage, "author_query_failed", err)
		return nil, newServiceError(opFetchFeedPage, "author_query_failed", err)
	}

	posts := make([]wall.Post, 0, len(rows))
	for _, row := range rows {
		posts = append(posts, s.rowToPost(row, profiles))
	}

	if pinnedFirst {
		s.cache.SetPage(ctx, limit, posts)
	}
	return posts, nil
}

// FetchViewerLikeOverlay returns the set of listed posts the viewer has liked.
func (s *SQLStore) FetchViewerLikeOverlay(ctx context.Context, postIDs []wall.PostID, viewerID wall.UserID) (map[wall.PostID]struct{}, error) {
	overlay := make(map[wall.PostID]struct{}, len(postIDs))
	if len(postIDs) == 0 || viewerID == "" {
		return overlay, nil
	}

	var liked []string
	if err := s.db.WithContext(ctx).
		Model(&WallLike{}).
		Where("user_id = ? AND post_id IN ?", viewerID.String(), postIDStrings(postIDs)).
		Pluck("post_id", &liked).Error; err != nil {
		s.logError(opLikeOverlay, "query_failed", err, zap.String("viewer_id", viewerID.String()))
		return nil, newServiceError(opLikeOverlay, "query_failed", err)
	}

	for _, id := range liked {
		overlay[wall.PostID(id)] = struct{}{}
	}
	return overlay, nil
}

// FetchViewerReactionOverlay returns the viewer's single reaction per listed post.
func (s *SQLStore) FetchViewerReactionOverlay(ctx context.Context, postIDs []wall.PostID, viewerID wall.UserID) (map[wall.PostID]wall.ReactionKind, error) {
	overlay := make(map[wall.PostID]wall.ReactionKind, len(postIDs))
	if len(postIDs) == 0 || viewerID == "" {
		return overlay, nil
	}

	var rows []WallReaction
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND post_id IN ?", viewerID.String(), postIDStrings(postIDs)).
		Find(&rows).Error; err != nil {
		s.logError(opReactionOverlay, "query_failed", err, zap.String("viewer_id", viewerID.String()))
		return nil, newServiceError(opReactionOverlay, "query_failed", err)
	}

	for _, row := range rows {
		overlay[wall.PostID(row.PostID)] = wall.ReactionKind(row.Kind)
	}
	return overlay, nil
}

type reactionCountRow struct {
	PostID string
	Kind   string
	Total  int64
}

// FetchReactionSummaries returns the per-kind reaction tallies for the listed posts.
func (s *SQLStore) FetchReactionSummaries(ctx context.Context, postIDs []wall.PostID) (map[wall.PostID]map[wall.ReactionKind]int64, error) {
	summaries := make(map[wall.PostID]map[wall.ReactionKind]int64, len(postIDs))
	if len(postIDs) == 0 {
		return summaries, nil
	}

	var rows []reactionCountRow
	if err := s.db.WithContext(ctx).
		Model(&WallReaction{}).
		Select("post_id, kind, COUNT(*) AS total").
		Where("post_id IN ?", postIDStrings(postIDs)).
		Group("post_id, kind").
		Scan(&rows).Error; err != nil {
		s.logError(opReactionSummary, "query_failed", err)
		return nil, newServiceError(opReactionSummary, "query_failed", err)
	}

	for _, row := range rows {
		postID := wall.PostID(row.PostID)
		tally := summaries[postID]
		if tally == nil {
			tally = make(map[wall.ReactionKind]int64)
			summaries[postID] = tally
		}
		tally[wall.ReactionKind(row.Kind)] = row.Total
	}
	return summaries, nil
}

// FetchGiftSummaries returns the per-kind gift tallies for the listed posts.
func (s *SQLStore) FetchGiftSummaries(ctx context.Context, postIDs []wall.PostID) (map[wall.PostID]map[wall.GiftKind]wall.GiftStat, error) {
	summaries := make(map[wall.PostID]map[wall.GiftKind]wall.GiftStat, len(postIDs))
	if len(postIDs) == 0 {
		return summaries, nil
	}

	var rows []WallGift
	if err := s.db.WithContext(ctx).
		Where("post_id IN ?", postIDStrings(postIDs)).
		Find(&rows).Error; err != nil {
		s.logError(opGiftSummary, "query_failed", err)
		return nil, newServiceError(opGiftSummary, "query_failed", err)
	}

	for _, row := range rows {
		postID := wall.PostID(row.PostID)
		tally := summaries[postID]
		if tally == nil {
			tally = make(map[wall.GiftKind]wall.GiftStat)
			summaries[postID] = tally
		}
		tally[wall.GiftKind(row.Kind)] = wall.GiftStat{Count: row.Count, Coins: row.Coins}
	}
	return summaries, nil
}

// CreatePost persists a new post and announces it on the change feed.
func (s *SQLStore) CreatePost(ctx context.Context, draft feed.PostDraft) (wall.Post, error) {
	if draft.AuthorID == "" {
		s.logError(opCreatePost, "missing_author", wall.ErrInvalidUserID)
		return wall.Post{}, newServiceError(opCreatePost, "missing_author", wall.ErrInvalidUserID)
	}
	if err := wall.ValidateContent(draft.Content); err != nil {
		s.logError(opCreatePost, "invalid_content", err, zap.String("author_id", draft.AuthorID.String()))
		return wall.Post{}, newServiceError(opCreatePost, "invalid_content", err)
	}
	postType := draft.PostType
	if postType == "" {
		postType = wall.PostTypeText
	}

	rawID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreatePost, "id_generation_failed", err)
		return wall.Post{}, newServiceError(opCreatePost, "id_generation_failed", err)
	}

	metadataJSON := ""
	if len(draft.Metadata) > 0 {
		encoded, marshalErr := json.Marshal(draft.Metadata)
		if marshalErr != nil {
			s.logError(opCreatePost, "metadata_encode_failed", marshalErr)
			return wall.Post{}, newServiceError(opCreatePost, "metadata_encode_failed", marshalErr)
		}
		metadataJSON = string(encoded)
	}

	createdAt := s.clock().UTC()
	row := WallPost{
		PostID:           rawID,
		AuthorID:         draft.AuthorID.String(),
		PostType:         string(postType),
		Content:          draft.Content,
		MetadataJSON:     metadataJSON,
		CreatedAtSeconds: createdAt.Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.logError(opCreatePost, "insert_failed", err, zap.String("post_id", rawID))
		return wall.Post{}, newServiceError(opCreatePost, "insert_failed", err)
	}

	profiles, err := s.fetchAuthorProfiles(ctx, []WallPost{row})
	if err != nil {
		s.logError(opCreatePost, "author_query_failed", err, zap.String("post_id", rawID))
		return wall.Post{}, newServiceError(opCreatePost, "author_query_failed", err)
	}
	post := s.rowToPost(row, profiles)

	s.cache.Invalidate(ctx)
	s.publish(wall.ChangeEvent{Kind: wall.EventInsert, Patch: wall.PatchFromPost(post)})
	return post, nil
}

// ToggleLike flips the viewer's like on a post and returns the recounted
// total, so repeated application cannot drift the counter.
func (s *SQLStore) ToggleLike(ctx context.Context, postID wall.PostID, viewerID wall.UserID) (feed.LikeResult, error) {
	var result feed.LikeResult
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.lockPost(tx, opToggleLike, postID); err != nil {
			return err
		}

		var existing WallLike
		err := tx.Where("post_id = ? AND user_id = ?", postID.String(), viewerID.String()).
			Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			like := WallLike{
				PostID:           postID.String(),
				UserID:           viewerID.String(),
				CreatedAtSeconds: s.clock().UTC().Unix(),
			}
			if err := tx.Create(&like).Error; err != nil {
				s.logError(opToggleLike, "like_insert_failed", err, zap.String("post_id", postID.String()))
				return newServiceError(opToggleLike, "like_insert_failed", err)
			}
			result.Liked = true
		case err != nil:
			s.logError(opToggleLike, "like_select_failed", err, zap.String("post_id", postID.String()))
			return newServiceError(opToggleLike, "like_select_failed", err)
		default:
			if err := tx.Delete(&existing).Error; err != nil {
				s.logError(opToggleLike, "like_delete_failed", err, zap.String("post_id", postID.String()))
				return newServiceError(opToggleLike, "like_delete_failed", err)
			}
			result.Liked = false
		}

		var total int64
		if err := tx.Model(&WallLike{}).
			Where("post_id = ?", postID.String()).
			Count(&total).Error; err != nil {
			s.logError(opToggleLike, "like_count_failed", err, zap.String("post_id", postID.String()))
			return newServiceError(opToggleLike, "like_count_failed", err)
		}
		result.LikeCount = total

		if err := tx.Model(&WallPost{}).
			Where("post_id = ?", postID.String()).
			UpdateColumn("like_count", total).Error; err != nil {
			s.logError(opToggleLike, "counter_update_failed", err, zap.String("post_id", postID.String()))
			return newServiceError(opToggleLike, "counter_update_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return feed.LikeResult{}, txErr
	}

	s.cache.Invalidate(ctx)
	s.publish(wall.ChangeEvent{Kind: wall.EventUpdate, Patch: wall.PostPatch{
		ID:        postID,
		LikeCount: wall.Int64Ptr(result.LikeCount),
	}})
	return result, nil
}

// ToggleReaction applies single-reaction semantics: same kind removes,
// a different kind replaces. It returns the post's full tally.
func (s *SQLStore) ToggleReaction(ctx context.Context, postID wall.PostID, viewerID wall.UserID, kind wall.ReactionKind) (feed.ReactionResult, error) {
	var result feed.ReactionResult
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.lockPost(tx, opToggleReaction, postID); err != nil {
			return err
		}

		var existing WallReaction
		err := tx.Where("post_id = ? AND user_id = ?", postID.String(), viewerID.String()).
			Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			reaction := WallReaction{
				PostID:           postID.String(),
				UserID:           viewerID.String(),
				Kind:             string(kind),
				CreatedAtSeconds: s.clock().UTC().Unix(),
			}
			if err := tx.Create(&reaction).Error; err != nil {
				s.logError(opToggleReaction, "reaction_insert_failed", err, zap.String("post_id", postID.String()))
				return newServiceError(opToggleReaction, "reaction_insert_failed", err)
			}
		case err != nil:
			s.logError(opToggleReaction, "reaction_select_failed", err, zap.String("post_id", postID.String()))
			return newServiceError(opToggleReaction, "reaction_select_failed", err)
		case existing.Kind == string(kind):
			if err := tx.Delete(&existing).Error; err != nil {
				s.logError(opToggleReaction, "reaction_delete_failed", err, zap.String("post_id", postID.String()))
				return newServiceError(opToggleReaction, "reaction_delete_failed", err)
			}
			result.Removed = true
		default:
			if err := tx.Model(&WallReaction{}).
				Where("post_id = ? AND user_id = ?", postID.String(), viewerID.String()).
				Updates(map[string]interface{}{
					"kind":         string(kind),
					"created_at_s": s.clock().UTC().Unix(),
				}).Error; err != nil {
				s.logError(opToggleReaction, "reaction_replace_failed", err, zap.String("post_id", postID.String()))
				return newServiceError(opToggleReaction, "reaction_replace_failed", err)
			}
		}

		tally, err := s.reactionTally(tx, postID)
		if err != nil {
			s.logError(opToggleReaction, "tally_failed", err, zap.String("post_id", postID.String()))
			return newServiceError(opToggleReaction, "tally_failed", err)
		}
		result.Tally = tally
		result.ReactionCount = tally[kind]
		return nil
	})
	if txErr != nil {
		return feed.ReactionResult{}, txErr
	}

	s.cache.Invalidate(ctx)
	s.publish(wall.ChangeEvent{Kind: wall.EventUpdate, Patch: wall.PostPatch{
		ID:            postID,
		ReactionTally: result.Tally,
	}})
	return result, nil
}

// SendGift moves coins from the sender's balance to the author's earnings
// and bumps the post's gift tally, all inside one transaction. Running out
// of coins is a normal outcome, not an error.
func (s *SQLStore) SendGift(ctx context.Context, postID wall.PostID, viewerID wall.UserID, kind wall.GiftKind, quantity int64) (feed.GiftResult, error) {
	if err := wall.ValidateGiftQuantity(quantity); err != nil {
		s.logError(opSendGift, "invalid_quantity", err, zap.String("post_id", postID.String()))
		return feed.GiftResult{}, newServiceError(opSendGift, "invalid_quantity", err)
	}
	unitCost, err := wall.GiftCost(kind)
	if err != nil {
		s.logError(opSendGift, "invalid_kind", err, zap.String("post_id", postID.String()))
		return feed.GiftResult{}, newServiceError(opSendGift, "invalid_kind", err)
	}
	totalCost := unitCost * quantity

	var result feed.GiftResult
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, err := s.lockPost(tx, opSendGift, postID)
		if err != nil {
			return err
		}

		var sender UserProfile
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", viewerID.String()).
			Take(&sender).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logError(opSendGift, "sender_select_failed", err, zap.String("viewer_id", viewerID.String()))
			return newServiceError(opSendGift, "sender_select_failed", err)
		}

		if sender.CoinBalance < totalCost {
			tally, tallyErr := s.giftTally(tx, postID)
			if tallyErr != nil {
				s.logError(opSendGift, "tally_failed", tallyErr, zap.String("post_id", postID.String()))
				return newServiceError(opSendGift, "tally_failed", tallyErr)
			}
			result = feed.GiftResult{Success: false, Reason: giftFailInsufficientBalance, Tally: tally}
			return nil
		}

		if err := tx.Model(&UserProfile{}).
			Where("user_id = ?", viewerID.String()).
			UpdateColumn("coin_balance", gorm.Expr("coin_balance - ?", totalCost)).Error; err != nil {
			s.logError(opSendGift, "debit_failed", err, zap.String("viewer_id", viewerID.String()))
			return newServiceError(opSendGift, "debit_failed", err)
		}

		if post.AuthorID != "" {
			credit := UserProfile{
				UserID:           post.AuthorID,
				EarnedCoins:      totalCost,
				CreatedAtSeconds: s.clock().UTC().Unix(),
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "user_id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"earned_coins": gorm.Expr("earned_coins + ?", totalCost),
				}),
			}).Create(&credit).Error; err != nil {
				s.logError(opSendGift, "credit_failed", err, zap.String("author_id", post.AuthorID))
				return newServiceError(opSendGift, "credit_failed", err)
			}
		}

		gift := WallGift{
			PostID: postID.String(),
			Kind:   string(kind),
			Count:  quantity,
			Coins:  totalCost,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "post_id"}, {Name: "kind"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"gift_count": gorm.Expr("gift_count + ?", quantity),
				"coin_total": gorm.Expr("coin_total + ?", totalCost),
			}),
		}).Create(&gift).Error; err != nil {
			s.logError(opSendGift, "gift_upsert_failed", err, zap.String("post_id", postID.String()))
			return newServiceError(opSendGift, "gift_upsert_failed", err)
		}

		tally, err := s.giftTally(tx, postID)
		if err != nil {
			s.logError(opSendGift, "tally_failed", err, zap.String("post_id", postID.String()))
			return newServiceError(opSendGift, "tally_failed", err)
		}
		result = feed.GiftResult{Success: true, Tally: tally}
		return nil
	})
	if txErr != nil {
		return feed.GiftResult{}, txErr
	}

	if result.Success {
		s.cache.Invalidate(ctx)
		s.publish(wall.ChangeEvent{Kind: wall.EventUpdate, Patch: wall.PostPatch{
			ID:        postID,
			GiftTally: result.Tally,
		}})
	}
	return result, nil
}

// TogglePin flips a post's pinned flag. Only admins and officers may pin.
func (s *SQLStore) TogglePin(ctx context.Context, postID wall.PostID, viewerID wall.UserID) (bool, error) {
	var pinned bool
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		role, err := s.viewerRole(tx, viewerID)
		if err != nil {
			s.logError(opTogglePin, "role_select_failed", err, zap.String("viewer_id", viewerID.String()))
			return newServiceError(opTogglePin, "role_select_failed", err)
		}
		if !role.Privileged() {
			return newServiceError(opTogglePin, "forbidden", feed.ErrPinForbidden)
		}

		post, err := s.lockPost(tx, opTogglePin, postID)
		if err != nil {
			return err
		}

		pinned = !post.IsPinned
		if err := tx.Model(&WallPost{}).
			Where("post_id = ?", postID.String()).
			UpdateColumn("is_pinned", pinned).Error; err != nil {
			s.logError(opTogglePin, "update_failed", err, zap.String("post_id", postID.String()))
			return newServiceError(opTogglePin, "update_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return false, txErr
	}

	s.cache.Invalidate(ctx)
	s.publish(wall.ChangeEvent{Kind: wall.EventUpdate, Patch: wall.PostPatch{
		ID:       postID,
		IsPinned: wall.BoolPtr(pinned),
	}})
	return pinned, nil
}

// DeletePost removes a post and its per-viewer rows. The viewer must be
// the author or privileged. Deletions never ride the change feed; callers
// converge through the confirmed result or a full refresh.
func (s *SQLStore) DeletePost(ctx context.Context, postID wall.PostID, viewerID wall.UserID) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, err := s.lockPost(tx, opDeletePost, postID)
		if err != nil {
			return err
		}

		if post.AuthorID != viewerID.String() {
			role, err := s.viewerRole(tx, viewerID)
			if err != nil {
				s.logError(opDeletePost, "role_select_failed", err, zap.String("viewer_id", viewerID.String()))
				return newServiceError(opDeletePost, "role_select_failed", err)
			}
			if !role.Privileged() {
				return newServiceError(opDeletePost, "forbidden", feed.ErrDeleteForbidden)
			}
		}

		for _, model := range []interface{}{&WallLike{}, &WallReaction{}, &WallGift{}} {
			if err := tx.Where("post_id = ?", postID.String()).Delete(model).Error; err != nil {
				s.logError(opDeletePost, "cascade_failed", err, zap.String("post_id", postID.String()))
				return newServiceError(opDeletePost, "cascade_failed", err)
			}
		}
		if err := tx.Delete(&WallPost{PostID: postID.String()}).Error; err != nil {
			s.logError(opDeletePost, "delete_failed", err, zap.String("post_id", postID.String()))
			return newServiceError(opDeletePost, "delete_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}

	s.cache.Invalidate(ctx)
	return nil
}

// FetchViewerRole returns the viewer's privilege flags; an unknown viewer
// simply has none.
func (s *SQLStore) FetchViewerRole(ctx context.Context, viewerID wall.UserID) (feed.ViewerRole, error) {
	role, err := s.viewerRole(s.db.WithContext(ctx), viewerID)
	if err != nil {
		s.logError(opFetchViewerRole, "query_failed", err, zap.String("viewer_id", viewerID.String()))
		return feed.ViewerRole{}, newServiceError(opFetchViewerRole, "query_failed", err)
	}
	return role, nil
}

func (s *SQLStore) viewerRole(db *gorm.DB, viewerID wall.UserID) (feed.ViewerRole, error) {
	var profile UserProfile
	err := db.Where("user_id = ?", viewerID.String()).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return feed.ViewerRole{}, nil
	}
	if err != nil {
		return feed.ViewerRole{}, err
	}
	return feed.ViewerRole{IsAdmin: profile.IsAdmin, IsOfficer: profile.IsOfficer}, nil
}

func (s *SQLStore) lockPost(tx *gorm.DB, operation string, postID wall.PostID) (WallPost, error) {
	var post WallPost
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("post_id = ?", postID.String()).
		Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return WallPost{}, newServiceError(operation, "post_not_found", feed.ErrPostNotFound)
	}
	if err != nil {
		s.logError(operation, "post_select_failed", err, zap.String("post_id", postID.String()))
		return WallPost{}, newServiceError(operation, "post_select_failed", err)
	}
	return post, nil
}

func (s *SQLStore) reactionTally(tx *gorm.DB, postID wall.PostID) (map[wall.ReactionKind]int64, error) {
	var rows []reactionCountRow
	if err := tx.Model(&WallReaction{}).
		Select("post_id, kind, COUNT(*) AS total").
		Where("post_id = ?", postID.String()).
		Group("post_id, kind").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	tally := make(map[wall.ReactionKind]int64, len(rows))
	for _, row := range rows {
		tally[wall.ReactionKind(row.Kind)] = row.Total
	}
	return tally, nil
}

func (s *SQLStore) giftTally(tx *gorm.DB, postID wall.PostID) (map[wall.GiftKind]wall.GiftStat, error) {
	var rows []WallGift
	if err := tx.Where("post_id = ?", postID.String()).Find(&rows).Error; err != nil {
		return nil, err
	}
	tally := make(map[wall.GiftKind]wall.GiftStat, len(rows))
	for _, row := range rows {
		tally[wall.GiftKind(row.Kind)] = wall.GiftStat{Count: row.Count, Coins: row.Coins}
	}
	return tally, nil
}

func (s *SQLStore) fetchAuthorProfiles(ctx context.Context, rows []WallPost) (map[string]UserProfile, error) {
	authorIDs := make([]string, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if row.AuthorID == "" {
			continue
		}
		if _, ok := seen[row.AuthorID]; ok {
			continue
		}
		seen[row.AuthorID] = struct{}{}
		authorIDs = append(authorIDs, row.AuthorID)
	}

	profiles := make(map[string]UserProfile, len(authorIDs))
	if len(authorIDs) == 0 {
		return profiles, nil
	}

	var records []UserProfile
	if err := s.db.WithContext(ctx).
		Where("user_id IN ?", authorIDs).
		Find(&records).Error; err != nil {
		return nil, err
	}
	for _, record := range records {
		profiles[record.UserID] = record
	}
	return profiles, nil
}

func (s *SQLStore) rowToPost(row WallPost, profiles map[string]UserProfile) wall.Post {
	post := wall.Post{
		ID:        wall.PostID(row.PostID),
		AuthorID:  wall.UserID(row.AuthorID),
		PostType:  wall.PostType(row.PostType),
		Content:   row.Content,
		CreatedAt: time.Unix(row.CreatedAtSeconds, 0).UTC(),
		IsPinned:  row.IsPinned,
		LikeCount: row.LikeCount,
	}
	if row.MetadataJSON != "" {
		metadata := make(map[string]string)
		if err := json.Unmarshal([]byte(row.MetadataJSON), &metadata); err == nil {
			post.Metadata = metadata
		} else {
			s.logger.Warn("wall post metadata corrupt", zap.String("post_id", row.PostID), zap.Error(err))
		}
	}
	if profile, ok := profiles[row.AuthorID]; ok {
		post.AuthorName = profile.Username
		post.AuthorAvatarURL = profile.AvatarURL
	}
	return post
}

func (s *SQLStore) publish(event wall.ChangeEvent) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Publish(event)
}

func postIDStrings(ids []wall.PostID) []string {
	values := make([]string, 0, len(ids))
	for _, id := range ids {
		values = append(values, id.String())
	}
	return values
}

func (s *SQLStore) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("wall store operation failed", attrs...)
}

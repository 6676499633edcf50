package feed

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/trollcity/wallsync/internal/wall"
	"go.uber.org/zap"
)

type mutationKind string

const (
	mutationLike     mutationKind = "like"
	mutationReaction mutationKind = "reaction"
	mutationGift     mutationKind = "gift"
	mutationPin      mutationKind = "pin"
	mutationDelete   mutationKind = "delete"

	opToggleLike     = "feed.toggle_like"
	opToggleReaction = "feed.toggle_reaction"
	opSendGift       = "feed.send_gift"
	opTogglePin      = "feed.toggle_pin"
	opDeletePost     = "feed.delete_post"

	reasonBackendFailed   = "backend_failed"
	reasonRoleFetchFailed = "role_fetch_failed"
	reasonInvalidGift     = "invalid_gift"
	reasonInvalidQuantity = "invalid_quantity"
	reasonInvalidReaction = "invalid_reaction"
)

// MutatorConfig wires viewer-initiated mutations.
type MutatorConfig struct {
	Backend  Backend
	Store    *Store
	ViewerID wall.UserID
	// ViewerWindow marks the store as this viewer's own window, so
	// confirmed viewer overlay fields (liked/reaction) are merged along
	// with the canonical counters. A shared projection window leaves it
	// false and receives only canonical fields.
	ViewerWindow bool
	Logger       *zap.Logger
}

// Mutator runs every viewer mutation through one contract: guard,
// idempotent remote call, confirm-then-apply reconciliation, guaranteed
// in-flight release. No local state is committed before the store
// confirms, so a failed call leaves the window bit-identical.
type Mutator struct {
	backend      Backend
	store        *Store
	viewerID     wall.UserID
	viewerWindow bool
	logger       *zap.Logger

	mu       sync.Mutex
	inFlight map[mutationKind]map[wall.PostID]struct{}

	detached atomic.Bool
}

// NewMutator validates dependencies and builds a Mutator.
func NewMutator(cfg MutatorConfig) (*Mutator, error) {
	if cfg.Backend == nil {
		return nil, newServiceError("feed.mutator.new", "missing_backend", errMissingBackend)
	}
	if cfg.Store == nil {
		return nil, newServiceError("feed.mutator.new", "missing_store", errMissingStore)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mutator{
		backend:      cfg.Backend,
		store:        cfg.Store,
		viewerID:     cfg.ViewerID,
		viewerWindow: cfg.ViewerWindow,
		logger:       logger,
		inFlight:     make(map[mutationKind]map[wall.PostID]struct{}),
	}, nil
}

// Detach disconnects reconciliation from the window. In-flight calls are
// not cancelled; their late resolution becomes a no-op against a window
// nobody observes anymore.
func (m *Mutator) Detach() {
	m.detached.Store(true)
}

// Idle reports whether no mutation is currently in flight.
func (m *Mutator) Idle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pending := range m.inFlight {
		if len(pending) > 0 {
			return false
		}
	}
	return true
}

// ToggleLike flips the viewer's like on a post and reconciles the
// authoritative count.
func (m *Mutator) ToggleLike(ctx context.Context, postID wall.PostID) (LikeResult, error) {
	if err := m.guard(mutationLike, postID); err != nil {
		return LikeResult{}, err
	}
	defer m.release(mutationLike, postID)

	result, err := m.backend.ToggleLike(ctx, postID, m.viewerID)
	if err != nil {
		m.logError(opToggleLike, reasonBackendFailed, err, postID)
		return LikeResult{}, newServiceError(opToggleLike, reasonBackendFailed, err)
	}

	patch := wall.PostPatch{LikeCount: wall.Int64Ptr(result.LikeCount)}
	if m.viewerWindow {
		patch.ViewerLiked = wall.BoolPtr(result.Liked)
	}
	m.applyResult(postID, patch)
	return result, nil
}

// ToggleReaction toggles one reaction kind for the viewer: a repeat of
// the same kind removes it, a different kind replaces the previous one.
func (m *Mutator) ToggleReaction(ctx context.Context, postID wall.PostID, kind wall.ReactionKind) (ReactionResult, error) {
	if _, err := wall.ParseReactionKind(kind.String()); err != nil {
		return ReactionResult{}, newServiceError(opToggleReaction, reasonInvalidReaction, err)
	}
	if err := m.guard(mutationReaction, postID); err != nil {
		return ReactionResult{}, err
	}
	defer m.release(mutationReaction, postID)

	result, err := m.backend.ToggleReaction(ctx, postID, m.viewerID, kind)
	if err != nil {
		m.logError(opToggleReaction, reasonBackendFailed, err, postID)
		return ReactionResult{}, newServiceError(opToggleReaction, reasonBackendFailed, err)
	}

	patch := wall.PostPatch{ReactionTally: result.Tally}
	if m.viewerWindow {
		viewerReaction := kind
		if result.Removed {
			viewerReaction = ""
		}
		patch.ViewerReaction = &viewerReaction
	}
	m.applyResult(postID, patch)
	return result, nil
}

// SendGift spends coins on a catalog gift. Insufficient balance comes
// back as a non-error GiftResult with Success false and no window change.
func (m *Mutator) SendGift(ctx context.Context, postID wall.PostID, kind wall.GiftKind, quantity int64) (GiftResult, error) {
	if _, err := wall.ParseGiftKind(kind.String()); err != nil {
		return GiftResult{}, newServiceError(opSendGift, reasonInvalidGift, err)
	}
	if err := wall.ValidateGiftQuantity(quantity); err != nil {
		return GiftResult{}, newServiceError(opSendGift, reasonInvalidQuantity, err)
	}
	if err := m.guard(mutationGift, postID); err != nil {
		return GiftResult{}, err
	}
	defer m.release(mutationGift, postID)

	result, err := m.backend.SendGift(ctx, postID, m.viewerID, kind, quantity)
	if err != nil {
		m.logError(opSendGift, reasonBackendFailed, err, postID)
		return GiftResult{}, newServiceError(opSendGift, reasonBackendFailed, err)
	}
	if !result.Success {
		return result, nil
	}

	m.applyResult(postID, wall.PostPatch{GiftTally: result.Tally})
	return result, nil
}

// TogglePin flips the operator pin on a post. Privilege is enforced
// store-side; disabling the affordance for ordinary viewers is a UI
// concern, not this guard's.
func (m *Mutator) TogglePin(ctx context.Context, postID wall.PostID) (bool, error) {
	if err := m.guard(mutationPin, postID); err != nil {
		return false, err
	}
	defer m.release(mutationPin, postID)

	pinned, err := m.backend.TogglePin(ctx, postID, m.viewerID)
	if err != nil {
		m.logError(opTogglePin, reasonBackendFailed, err, postID)
		return false, newServiceError(opTogglePin, reasonBackendFailed, err)
	}

	m.applyResult(postID, wall.PostPatch{IsPinned: wall.BoolPtr(pinned)})
	return pinned, nil
}

// DeletePost removes a post the viewer authored, or any post for a
// privileged viewer. The role is fetched fresh immediately before the
// call so a revoked privilege cannot act out of a stale cache.
func (m *Mutator) DeletePost(ctx context.Context, postID wall.PostID) error {
	if err := m.guard(mutationDelete, postID); err != nil {
		return err
	}
	defer m.release(mutationDelete, postID)

	role, err := m.backend.FetchViewerRole(ctx, m.viewerID)
	if err != nil {
		m.logError(opDeletePost, reasonRoleFetchFailed, err, postID)
		return newServiceError(opDeletePost, reasonRoleFetchFailed, err)
	}
	if !role.Privileged() {
		post, known := m.store.Get(postID)
		if known && post.AuthorID != m.viewerID {
			return ErrDeleteForbidden
		}
	}

	if err := m.backend.DeletePost(ctx, postID, m.viewerID); err != nil {
		m.logError(opDeletePost, reasonBackendFailed, err, postID)
		return newServiceError(opDeletePost, reasonBackendFailed, err)
	}

	if !m.detached.Load() {
		m.store.Remove(postID)
	}
	return nil
}

// guard rejects unauthenticated viewers and duplicate in-flight
// mutations for the same post and kind without touching the network.
func (m *Mutator) guard(kind mutationKind, postID wall.PostID) error {
	if m.viewerID == "" {
		return ErrNotAuthenticated
	}
	if postID == "" {
		return wall.ErrInvalidPostID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pending := m.inFlight[kind]
	if pending == nil {
		pending = make(map[wall.PostID]struct{})
		m.inFlight[kind] = pending
	}
	if _, exists := pending[postID]; exists {
		return ErrMutationInFlight
	}
	pending[postID] = struct{}{}
	return nil
}

// release always runs, success or failure, so a finished mutation can be
// reissued immediately.
func (m *Mutator) release(kind mutationKind, postID wall.PostID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pending, ok := m.inFlight[kind]; ok {
		delete(pending, postID)
	}
}

func (m *Mutator) applyResult(postID wall.PostID, patch wall.PostPatch) {
	if m.detached.Load() {
		return
	}
	m.store.ApplyMutationResult(postID, patch)
}

func (m *Mutator) logError(operation, reason string, err error, postID wall.PostID) {
	m.logger.Error("feed mutation error",
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.String("post_id", postID.String()),
		zap.Error(err))
}

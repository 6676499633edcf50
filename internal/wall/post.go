package wall

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxIdentifierLength = 190
	// MaxContentLength bounds author-supplied post text.
	MaxContentLength = 240
)

var (
	// ErrInvalidPostID indicates that a post identifier is empty or exceeds storage bounds.
	ErrInvalidPostID = errors.New("wall: invalid post id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("wall: invalid user id")
	// ErrInvalidPostType indicates an unknown post type tag.
	ErrInvalidPostType = errors.New("wall: invalid post type")
	// ErrContentTooLong indicates post content exceeding MaxContentLength.
	ErrContentTooLong = errors.New("wall: content too long")
)

// PostID represents a validated post identifier.
type PostID string

// NewPostID validates raw input and returns a PostID.
func NewPostID(rawInput string) (PostID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPostID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidPostID, maxIdentifierLength)
	}
	return PostID(trimmed), nil
}

// String returns the underlying string identifier.
func (id PostID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// PostType enumerates the closed tag set driving display affordances.
type PostType string

const (
	PostTypeText           PostType = "text"
	PostTypeStreamAnnounce PostType = "stream_announce"
	PostTypeBattleResult   PostType = "battle_result"
	PostTypeFamilyAnnounce PostType = "family_announce"
	PostTypeBadgeEarned    PostType = "badge_earned"
	PostTypeSystem         PostType = "system"
)

// ParsePostType validates a raw post type tag.
func ParsePostType(rawInput string) (PostType, error) {
	switch PostType(strings.ToLower(strings.TrimSpace(rawInput))) {
	case PostTypeText, PostTypeStreamAnnounce, PostTypeBattleResult, PostTypeFamilyAnnounce, PostTypeBadgeEarned, PostTypeSystem:
		return PostType(strings.ToLower(strings.TrimSpace(rawInput))), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPostType, rawInput)
	}
}

// ValidateContent enforces the post content length bound.
func ValidateContent(content string) error {
	if utf8.RuneCountInString(content) > MaxContentLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrContentTooLong, MaxContentLength)
	}
	return nil
}

// GiftStat aggregates gifts of one kind sent to a post.
type GiftStat struct {
	Count int64
	Coins int64
}

// Post is the display-ready feed entry: an immutable identity carrying
// server-authoritative aggregate counters plus per-viewer overlay fields.
type Post struct {
	ID       PostID
	AuthorID UserID // empty when the author account was removed
	PostType PostType
	Content  string
	Metadata map[string]string

	CreatedAt time.Time
	IsPinned  bool

	LikeCount     int64
	ReactionTally map[ReactionKind]int64
	GiftTally     map[GiftKind]GiftStat

	// Author enrichment resolved at load time, preserved across
	// update-only change events.
	AuthorName      string
	AuthorAvatarURL string

	// Overlay for the current viewer only; never inferred from other
	// viewers' events.
	ViewerLiked    bool
	ViewerReaction ReactionKind
}

// Clone returns a deep copy so window snapshots cannot alias live state.
func (p Post) Clone() Post {
	copied := p
	if p.Metadata != nil {
		copied.Metadata = make(map[string]string, len(p.Metadata))
		for key, value := range p.Metadata {
			copied.Metadata[key] = value
		}
	}
	if p.ReactionTally != nil {
		copied.ReactionTally = make(map[ReactionKind]int64, len(p.ReactionTally))
		for kind, count := range p.ReactionTally {
			copied.ReactionTally[kind] = count
		}
	}
	if p.GiftTally != nil {
		copied.GiftTally = make(map[GiftKind]GiftStat, len(p.GiftTally))
		for kind, stat := range p.GiftTally {
			copied.GiftTally[kind] = stat
		}
	}
	return copied
}

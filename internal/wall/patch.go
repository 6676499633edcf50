package wall

import "time"

// EventKind tags a change-feed event.
type EventKind string

const (
	// EventInsert marks a newly created post row.
	EventInsert EventKind = "insert"
	// EventUpdate marks a mutation of an existing post row.
	EventUpdate EventKind = "update"
)

// PostPatch is a partial view of one post: a change-feed payload or a
// confirmed mutation result. Only non-nil fields are present; merging two
// patches for the same id with disjoint field sets commutes, and applying
// the same patch twice is a no-op after the first application.
type PostPatch struct {
	ID       PostID
	AuthorID *UserID
	PostType *PostType
	Content  *string
	Metadata map[string]string

	CreatedAt *time.Time
	IsPinned  *bool

	LikeCount     *int64
	ReactionTally map[ReactionKind]int64
	GiftTally     map[GiftKind]GiftStat

	AuthorName      *string
	AuthorAvatarURL *string

	ViewerLiked    *bool
	ViewerReaction *ReactionKind
}

// ChangeEvent is one entry on the realtime change feed. Delivery is
// at-least-once with no ordering guarantee.
type ChangeEvent struct {
	Kind  EventKind
	Patch PostPatch
}

// Apply merges the patch into an existing post, overwriting only the
// fields the patch carries. It is total: any patch applied to any post
// yields a defined result.
func (patch PostPatch) Apply(existing Post) Post {
	merged := existing.Clone()
	merged.ID = patch.ID
	if patch.AuthorID != nil {
		merged.AuthorID = *patch.AuthorID
	}
	if patch.PostType != nil {
		merged.PostType = *patch.PostType
	}
	if patch.Content != nil {
		merged.Content = *patch.Content
	}
	if patch.Metadata != nil {
		merged.Metadata = make(map[string]string, len(patch.Metadata))
		for key, value := range patch.Metadata {
			merged.Metadata[key] = value
		}
	}
	if patch.CreatedAt != nil {
		merged.CreatedAt = *patch.CreatedAt
	}
	if patch.IsPinned != nil {
		merged.IsPinned = *patch.IsPinned
	}
	if patch.LikeCount != nil {
		merged.LikeCount = *patch.LikeCount
	}
	if patch.ReactionTally != nil {
		merged.ReactionTally = make(map[ReactionKind]int64, len(patch.ReactionTally))
		for kind, count := range patch.ReactionTally {
			merged.ReactionTally[kind] = count
		}
	}
	if patch.GiftTally != nil {
		merged.GiftTally = make(map[GiftKind]GiftStat, len(patch.GiftTally))
		for kind, stat := range patch.GiftTally {
			merged.GiftTally[kind] = stat
		}
	}
	if patch.AuthorName != nil {
		merged.AuthorName = *patch.AuthorName
	}
	if patch.AuthorAvatarURL != nil {
		merged.AuthorAvatarURL = *patch.AuthorAvatarURL
	}
	if patch.ViewerLiked != nil {
		merged.ViewerLiked = *patch.ViewerLiked
	}
	if patch.ViewerReaction != nil {
		merged.ViewerReaction = *patch.ViewerReaction
	}
	return merged
}

// Materialize builds a post from the patch alone, used when an update
// event arrives for an id the window has never seen. Absent fields keep
// zero values.
func (patch PostPatch) Materialize() Post {
	return patch.Apply(Post{ID: patch.ID})
}

// PatchFromPost converts a full post row into an all-fields patch, the
// shape the store publishes on the change feed.
func PatchFromPost(post Post) PostPatch {
	copied := post.Clone()
	patch := PostPatch{
		ID:        copied.ID,
		Metadata:  copied.Metadata,
		CreatedAt: &copied.CreatedAt,
		IsPinned:  &copied.IsPinned,
		LikeCount: &copied.LikeCount,
	}
	if copied.AuthorID != "" {
		patch.AuthorID = &copied.AuthorID
	}
	if copied.PostType != "" {
		patch.PostType = &copied.PostType
	}
	patch.Content = &copied.Content
	if copied.ReactionTally != nil {
		patch.ReactionTally = copied.ReactionTally
	}
	if copied.GiftTally != nil {
		patch.GiftTally = copied.GiftTally
	}
	return patch
}

// Pointer helpers for building patches.

// BoolPtr returns a pointer to the provided bool.
func BoolPtr(value bool) *bool { return &value }

// Int64Ptr returns a pointer to the provided int64.
func Int64Ptr(value int64) *int64 { return &value }

// StringPtr returns a pointer to the provided string.
func StringPtr(value string) *string { return &value }

// TimePtr returns a pointer to the provided time.
func TimePtr(value time.Time) *time.Time { return &value }

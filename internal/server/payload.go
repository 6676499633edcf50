package server

import (
	"github.com/trollcity/wallsync/internal/wall"
)

type postPayload struct {
	ID               string                     `json:"id"`
	AuthorID         string                     `json:"author_id,omitempty"`
	AuthorName       string                     `json:"author_name,omitempty"`
	AuthorAvatarURL  string                     `json:"author_avatar_url,omitempty"`
	PostType         string                     `json:"post_type"`
	Content          string                     `json:"content"`
	Metadata         map[string]string          `json:"metadata,omitempty"`
	CreatedAtSeconds int64                      `json:"created_at_s"`
	IsPinned         bool                       `json:"is_pinned"`
	LikeCount        int64                      `json:"like_count"`
	Reactions        map[string]int64           `json:"reactions,omitempty"`
	Gifts            map[string]giftStatPayload `json:"gifts,omitempty"`
	ViewerLiked      bool                       `json:"viewer_liked"`
	ViewerReaction   string                     `json:"viewer_reaction,omitempty"`
}

type giftStatPayload struct {
	Count int64 `json:"count"`
	Coins int64 `json:"coins"`
}

func postToPayload(post wall.Post) postPayload {
	return postPayload{
		ID:               post.ID.String(),
		AuthorID:         post.AuthorID.String(),
		AuthorName:       post.AuthorName,
		AuthorAvatarURL:  post.AuthorAvatarURL,
		PostType:         string(post.PostType),
		Content:          post.Content,
		Metadata:         post.Metadata,
		CreatedAtSeconds: post.CreatedAt.Unix(),
		IsPinned:         post.IsPinned,
		LikeCount:        post.LikeCount,
		Reactions:        reactionTallyPayload(post.ReactionTally),
		Gifts:            giftTallyPayload(post.GiftTally),
		ViewerLiked:      post.ViewerLiked,
		ViewerReaction:   string(post.ViewerReaction),
	}
}

func reactionTallyPayload(tally map[wall.ReactionKind]int64) map[string]int64 {
	if len(tally) == 0 {
		return nil
	}
	payload := make(map[string]int64, len(tally))
	for kind, count := range tally {
		payload[string(kind)] = count
	}
	return payload
}

func giftTallyPayload(tally map[wall.GiftKind]wall.GiftStat) map[string]giftStatPayload {
	if len(tally) == 0 {
		return nil
	}
	payload := make(map[string]giftStatPayload, len(tally))
	for kind, stat := range tally {
		payload[string(kind)] = giftStatPayload{Count: stat.Count, Coins: stat.Coins}
	}
	return payload
}

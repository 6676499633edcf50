package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/trollcity/wallsync/internal/wall"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type streamEventPayload struct {
	Kind string       `json:"kind"`
	Post patchPayload `json:"post"`
}

type patchPayload struct {
	ID               string                     `json:"id"`
	AuthorID         *string                    `json:"author_id,omitempty"`
	AuthorName       *string                    `json:"author_name,omitempty"`
	AuthorAvatarURL  *string                    `json:"author_avatar_url,omitempty"`
	PostType         *string                    `json:"post_type,omitempty"`
	Content          *string                    `json:"content,omitempty"`
	Metadata         map[string]string          `json:"metadata,omitempty"`
	CreatedAtSeconds *int64                     `json:"created_at_s,omitempty"`
	IsPinned         *bool                      `json:"is_pinned,omitempty"`
	LikeCount        *int64                     `json:"like_count,omitempty"`
	Reactions        map[string]int64           `json:"reactions,omitempty"`
	Gifts            map[string]giftStatPayload `json:"gifts,omitempty"`
}

func patchToPayload(patch wall.PostPatch) patchPayload {
	payload := patchPayload{
		ID:       patch.ID.String(),
		Metadata: patch.Metadata,
	}
	if patch.AuthorID != nil {
		value := patch.AuthorID.String()
		payload.AuthorID = &value
	}
	if patch.AuthorName != nil {
		payload.AuthorName = patch.AuthorName
	}
	if patch.AuthorAvatarURL != nil {
		payload.AuthorAvatarURL = patch.AuthorAvatarURL
	}
	if patch.PostType != nil {
		value := string(*patch.PostType)
		payload.PostType = &value
	}
	if patch.Content != nil {
		payload.Content = patch.Content
	}
	if patch.CreatedAt != nil {
		value := patch.CreatedAt.Unix()
		payload.CreatedAtSeconds = &value
	}
	if patch.IsPinned != nil {
		payload.IsPinned = patch.IsPinned
	}
	if patch.LikeCount != nil {
		payload.LikeCount = patch.LikeCount
	}
	if patch.ReactionTally != nil {
		payload.Reactions = reactionTallyPayload(patch.ReactionTally)
	}
	if patch.GiftTally != nil {
		payload.Gifts = giftTallyPayload(patch.GiftTally)
	}
	return payload
}

// handleWallStream upgrades the connection and forwards change-feed
// events until the peer goes away. The feed is viewer-agnostic, so the
// socket needs no authentication.
func (h *httpHandler) handleWallStream(c *gin.Context) {
	conn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("wall stream upgrade failed", zap.Error(err))
		return
	}

	events, cancel := h.dispatcher.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(streamPongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			payload := streamEventPayload{
				Kind: string(event.Kind),
				Post: patchToPayload(event.Patch),
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

package server

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trollcity/wallsync/internal/feed"
	"github.com/trollcity/wallsync/internal/store"
	"github.com/trollcity/wallsync/internal/wall"
)

const viewerIDContextKey = "wallsync_viewer_id"

// maxMutatorEntries bounds the per-viewer mutator registry. Entries hold
// only in-flight sets, so idle ones can be dropped and rebuilt on demand.
const maxMutatorEntries = 4096

var (
	errMissingBackend       = errors.New("backend dependency required")
	errMissingDispatcher    = errors.New("dispatcher dependency required")
	errMissingTokens        = errors.New("token manager dependency required")
	errMissingView          = errors.New("feed view dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenValidator checks a bearer token and returns the viewer it names.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// Dependencies wires the HTTP surface to the wall engine. View is the
// shared viewer-agnostic feed window kept warm by the change feed;
// per-viewer mutators are created on demand against its store.
type Dependencies struct {
	Backend        feed.Backend
	Dispatcher     *store.Dispatcher
	Tokens         TokenValidator
	View           *feed.View
	Logger         *zap.Logger
	AllowedOrigins []string
}

// NewHTTPHandler builds the gin router serving the wall API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Backend == nil {
		return nil, errMissingBackend
	}
	if deps.Dispatcher == nil {
		return nil, errMissingDispatcher
	}
	if deps.Tokens == nil {
		return nil, errMissingTokens
	}
	if deps.View == nil {
		return nil, errMissingView
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		backend:    deps.Backend,
		dispatcher: deps.Dispatcher,
		tokens:     deps.Tokens,
		view:       deps.View,
		logger:     logger,
		mutators:   make(map[string]*feed.Mutator),
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/wall", handler.identifyViewer, handler.handleWallPage)
	router.GET("/wall/stream", handler.handleWallStream)

	protected := router.Group("/wall")
	protected.Use(handler.authorizeRequest)
	protected.POST("/posts", handler.handleCreatePost)
	protected.POST("/posts/:id/like", handler.handleToggleLike)
	protected.POST("/posts/:id/reactions", handler.handleToggleReaction)
	protected.POST("/posts/:id/gifts", handler.handleSendGift)
	protected.POST("/posts/:id/pin", handler.handleTogglePin)
	protected.DELETE("/posts/:id", handler.handleDeletePost)

	return router, nil
}

type httpHandler struct {
	backend    feed.Backend
	dispatcher *store.Dispatcher
	tokens     TokenValidator
	view       *feed.View
	logger     *zap.Logger

	mu       sync.Mutex
	mutators map[string]*feed.Mutator
}

// mutatorFor returns the per-viewer mutator bound to the shared window.
// Viewer overlay fields are never written through these, so one viewer's
// like cannot leak into another viewer's page.
func (h *httpHandler) mutatorFor(viewerID string) (*feed.Mutator, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if mutator, ok := h.mutators[viewerID]; ok {
		return mutator, nil
	}
	if len(h.mutators) >= maxMutatorEntries {
		for id, existing := range h.mutators {
			if existing.Idle() {
				delete(h.mutators, id)
			}
		}
	}
	mutator, err := feed.NewMutator(feed.MutatorConfig{
		Backend:  h.backend,
		Store:    h.view.Store(),
		ViewerID: wall.UserID(viewerID),
		Logger:   h.logger,
	})
	if err != nil {
		return nil, err
	}
	h.mutators[viewerID] = mutator
	return mutator, nil
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", errInvalidAuthorization
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errInvalidAuthorization
	}
	return strings.TrimSpace(parts[1]), nil
}

// authorizeRequest requires a valid bearer token.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token, err := bearerToken(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	viewerID, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("bearer token rejected", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(viewerIDContextKey, viewerID)
	c.Next()
}

// identifyViewer resolves the viewer when a token is present but lets
// anonymous requests through.
func (h *httpHandler) identifyViewer(c *gin.Context) {
	token, err := bearerToken(c)
	if err != nil {
		c.Next()
		return
	}
	if viewerID, err := h.tokens.ValidateToken(token); err == nil {
		c.Set(viewerIDContextKey, viewerID)
	}
	c.Next()
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type wallPagePayload struct {
	Posts   []postPayload `json:"posts"`
	Loading bool          `json:"loading"`
}

func (h *httpHandler) handleWallPage(c *gin.Context) {
	posts := h.view.Posts()
	viewerID := c.GetString(viewerIDContextKey)

	if viewerID != "" && len(posts) > 0 {
		postIDs := make([]wall.PostID, 0, len(posts))
		for _, post := range posts {
			postIDs = append(postIDs, post.ID)
		}
		viewer := wall.UserID(viewerID)
		liked, err := h.backend.FetchViewerLikeOverlay(c.Request.Context(), postIDs, viewer)
		if err != nil {
			h.logger.Error("viewer like overlay fetch failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "overlay_failed"})
			return
		}
		reactions, err := h.backend.FetchViewerReactionOverlay(c.Request.Context(), postIDs, viewer)
		if err != nil {
			h.logger.Error("viewer reaction overlay fetch failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "overlay_failed"})
			return
		}
		for index := range posts {
			if _, ok := liked[posts[index].ID]; ok {
				posts[index].ViewerLiked = true
			}
			if kind, ok := reactions[posts[index].ID]; ok {
				posts[index].ViewerReaction = kind
			}
		}
	}

	payload := wallPagePayload{
		Posts:   make([]postPayload, 0, len(posts)),
		Loading: h.view.Loading(),
	}
	for _, post := range posts {
		payload.Posts = append(payload.Posts, postToPayload(post))
	}
	c.JSON(http.StatusOK, payload)
}

type createPostPayload struct {
	Content  string            `json:"content"`
	PostType string            `json:"post_type"`
	Metadata map[string]string `json:"metadata"`
}

func (h *httpHandler) handleCreatePost(c *gin.Context) {
	viewerID := c.GetString(viewerIDContextKey)

	var request createPostPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := wall.ValidateContent(request.Content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_content"})
		return
	}
	postType := wall.PostTypeText
	if request.PostType != "" {
		parsed, err := wall.ParsePostType(request.PostType)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_post_type"})
			return
		}
		postType = parsed
	}

	post, err := h.backend.CreatePost(c.Request.Context(), feed.PostDraft{
		AuthorID: wall.UserID(viewerID),
		PostType: postType,
		Content:  request.Content,
		Metadata: request.Metadata,
	})
	if err != nil {
		h.respondMutationError(c, err)
		return
	}
	c.JSON(http.StatusCreated, postToPayload(post))
}

func (h *httpHandler) handleToggleLike(c *gin.Context) {
	viewerID := c.GetString(viewerIDContextKey)
	postID, ok := h.postIDParam(c)
	if !ok {
		return
	}

	mutator, err := h.mutatorFor(viewerID)
	if err != nil {
		h.respondMutationError(c, err)
		return
	}
	result, err := mutator.ToggleLike(c.Request.Context(), postID)
	if err != nil {
		h.respondMutationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"like_count": result.LikeCount, "liked": result.Liked})
}

type reactionRequestPayload struct {
	Kind string `json:"kind"`
}

func (h *httpHandler) handleToggleReaction(c *gin.Context) {
	viewerID := c.GetString(viewerIDContextKey)
	postID, ok := h.postIDParam(c)
	if !ok {
		return
	}

	var request reactionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	kind, err := wall.ParseReactionKind(request.Kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_reaction"})
		return
	}

	mutator, err := h.mutatorFor(viewerID)
	if err != nil {
		h.respondMutationError(c, err)
		return
	}
	result, err := mutator.ToggleReaction(c.Request.Context(), postID, kind)
	if err != nil {
		h.respondMutationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"removed":   result.Removed,
		"reactions": reactionTallyPayload(result.Tally),
	})
}

type giftRequestPayload struct {
	Kind     string `json:"kind"`
	Quantity int64  `json:"quantity"`
}

func (h *httpHandler) handleSendGift(c *gin.Context) {
	viewerID := c.GetString(viewerIDContextKey)
	postID, ok := h.postIDParam(c)
	if !ok {
		return
	}

	var request giftRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	kind, err := wall.ParseGiftKind(request.Kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_gift"})
		return
	}
	quantity := request.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if err := wall.ValidateGiftQuantity(quantity); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_quantity"})
		return
	}

	mutator, err := h.mutatorFor(viewerID)
	if err != nil {
		h.respondMutationError(c, err)
		return
	}
	result, err := mutator.SendGift(c.Request.Context(), postID, kind, quantity)
	if err != nil {
		h.respondMutationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": result.Success,
		"reason":  result.Reason,
		"gifts":   giftTallyPayload(result.Tally),
	})
}

func (h *httpHandler) handleTogglePin(c *gin.Context) {
	viewerID := c.GetString(viewerIDContextKey)
	postID, ok := h.postIDParam(c)
	if !ok {
		return
	}

	mutator, err := h.mutatorFor(viewerID)
	if err != nil {
		h.respondMutationError(c, err)
		return
	}
	pinned, err := mutator.TogglePin(c.Request.Context(), postID)
	if err != nil {
		h.respondMutationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pinned": pinned})
}

func (h *httpHandler) handleDeletePost(c *gin.Context) {
	viewerID := c.GetString(viewerIDContextKey)
	postID, ok := h.postIDParam(c)
	if !ok {
		return
	}

	mutator, err := h.mutatorFor(viewerID)
	if err != nil {
		h.respondMutationError(c, err)
		return
	}
	if err := mutator.DeletePost(c.Request.Context(), postID); err != nil {
		h.respondMutationError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) postIDParam(c *gin.Context) (wall.PostID, bool) {
	postID, err := wall.NewPostID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_post_id"})
		return "", false
	}
	return postID, true
}

func (h *httpHandler) respondMutationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, feed.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, feed.ErrMutationInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": "mutation_in_flight"})
	case errors.Is(err, feed.ErrDeleteForbidden), errors.Is(err, feed.ErrPinForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, feed.ErrPostNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "post_not_found"})
	case errors.Is(err, wall.ErrInvalidPostID),
		errors.Is(err, wall.ErrInvalidUserID),
		errors.Is(err, wall.ErrInvalidReactionKind),
		errors.Is(err, wall.ErrInvalidGiftKind),
		errors.Is(err, wall.ErrInvalidGiftQuantity),
		errors.Is(err, wall.ErrContentTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
	default:
		h.logger.Error("wall mutation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mutation_failed"})
	}
}

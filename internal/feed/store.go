package feed

import (
	"sort"
	"sync"

	"github.com/trollcity/wallsync/internal/wall"
)

// DefaultCapacity bounds the feed window to the hundred highest-sorted posts.
const DefaultCapacity = 100

// Store holds the capacity-bounded, ordered working set of wall posts.
// It is the only writer to the window: batches arrive from the flush
// loop, single-post patches from mutation reconciliation. Every method
// is total; malformed or stale input degrades to an upsert or a no-op,
// never an error.
type Store struct {
	mu       sync.RWMutex
	capacity int
	posts    []wall.Post
	index    map[wall.PostID]int
}

// NewStore builds an empty window with the provided capacity; values
// below one fall back to DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		index:    make(map[wall.PostID]int),
	}
}

// ApplyBatch merges one flush tick's worth of change events in arrival
// order, then re-sorts (pinned first, then recency) and truncates to
// capacity. An update for an unknown id materializes from the fields
// the event carries.
func (s *Store) ApplyBatch(events []wall.ChangeEvent) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, event := range events {
		s.upsertLocked(event.Patch)
	}
	s.sortLocked()
	s.truncateLocked()
}

// ApplyMutationResult reconciles one post against a confirmed mutation
// outcome. The window is re-sorted only when the patch changed the pin
// flag; count-only patches never disturb ordering.
func (s *Store) ApplyMutationResult(postID wall.PostID, patch wall.PostPatch) {
	if postID == "" {
		return
	}
	patch.ID = postID

	s.mu.Lock()
	defer s.mu.Unlock()

	pinChanged := false
	if position, ok := s.index[postID]; ok {
		before := s.posts[position].IsPinned
		s.upsertLocked(patch)
		pinChanged = patch.IsPinned != nil && *patch.IsPinned != before
	} else {
		s.upsertLocked(patch)
		pinChanged = true
	}

	if pinChanged {
		s.sortLocked()
		s.truncateLocked()
	}
}

// Replace swaps the entire window for an authoritative loader snapshot.
func (s *Store) Replace(posts []wall.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.posts = s.posts[:0]
	s.index = make(map[wall.PostID]int, len(posts))
	for _, post := range posts {
		if post.ID == "" {
			continue
		}
		if _, seen := s.index[post.ID]; seen {
			continue
		}
		s.index[post.ID] = len(s.posts)
		s.posts = append(s.posts, post.Clone())
	}
	s.sortLocked()
	s.truncateLocked()
}

// Remove drops a post after a confirmed delete. Unknown ids are a no-op.
func (s *Store) Remove(postID wall.PostID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	position, ok := s.index[postID]
	if !ok {
		return false
	}
	s.posts = append(s.posts[:position], s.posts[position+1:]...)
	delete(s.index, postID)
	s.reindexLocked()
	return true
}

// Get returns a copy of one windowed post.
func (s *Store) Get(postID wall.PostID) (wall.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	position, ok := s.index[postID]
	if !ok {
		return wall.Post{}, false
	}
	return s.posts[position].Clone(), true
}

// Snapshot returns a copy of the ordered window for rendering.
func (s *Store) Snapshot() []wall.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]wall.Post, 0, len(s.posts))
	for _, post := range s.posts {
		snapshot = append(snapshot, post.Clone())
	}
	return snapshot
}

// Len returns the current window size.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts)
}

// Capacity returns the window bound.
func (s *Store) Capacity() int {
	return s.capacity
}

func (s *Store) upsertLocked(patch wall.PostPatch) {
	if patch.ID == "" {
		return
	}
	if position, ok := s.index[patch.ID]; ok {
		s.posts[position] = patch.Apply(s.posts[position])
		return
	}
	s.index[patch.ID] = len(s.posts)
	s.posts = append(s.posts, patch.Materialize())
}

func (s *Store) sortLocked() {
	sort.SliceStable(s.posts, func(first, second int) bool {
		left, right := s.posts[first], s.posts[second]
		if left.IsPinned != right.IsPinned {
			return left.IsPinned
		}
		if !left.CreatedAt.Equal(right.CreatedAt) {
			return left.CreatedAt.After(right.CreatedAt)
		}
		return left.ID > right.ID
	})
	s.reindexLocked()
}

func (s *Store) truncateLocked() {
	if len(s.posts) <= s.capacity {
		return
	}
	for _, post := range s.posts[s.capacity:] {
		delete(s.index, post.ID)
	}
	s.posts = s.posts[:s.capacity]
}

func (s *Store) reindexLocked() {
	for position, post := range s.posts {
		s.index[post.ID] = position
	}
}

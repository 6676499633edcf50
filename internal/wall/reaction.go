package wall

import (
	"errors"
	"fmt"
	"strings"
)

// ReactionKind enumerates the fixed reaction set.
type ReactionKind string

const (
	ReactionLove      ReactionKind = "love"
	ReactionHaha      ReactionKind = "haha"
	ReactionWow       ReactionKind = "wow"
	ReactionSad       ReactionKind = "sad"
	ReactionAngry     ReactionKind = "angry"
	ReactionFire      ReactionKind = "fire"
	ReactionLol       ReactionKind = "lol"
	ReactionClap      ReactionKind = "clap"
	ReactionMindblown ReactionKind = "mindblown"
)

// ErrInvalidReactionKind indicates a reaction outside the fixed set.
var ErrInvalidReactionKind = errors.New("wall: invalid reaction kind")

var reactionKinds = map[ReactionKind]struct{}{
	ReactionLove:      {},
	ReactionHaha:      {},
	ReactionWow:       {},
	ReactionSad:       {},
	ReactionAngry:     {},
	ReactionFire:      {},
	ReactionLol:       {},
	ReactionClap:      {},
	ReactionMindblown: {},
}

// ParseReactionKind validates a raw reaction tag.
func ParseReactionKind(rawInput string) (ReactionKind, error) {
	kind := ReactionKind(strings.ToLower(strings.TrimSpace(rawInput)))
	if _, ok := reactionKinds[kind]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidReactionKind, rawInput)
	}
	return kind, nil
}

// String returns the underlying reaction tag.
func (k ReactionKind) String() string {
	return string(k)
}

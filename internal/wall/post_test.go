package wall

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewPostIDRejectsEmptyAndOversized(t *testing.T) {
	if _, err := NewPostID(""); !errors.Is(err, ErrInvalidPostID) {
		t.Fatalf("expected invalid post id error, got %v", err)
	}
	if _, err := NewPostID(strings.Repeat("x", 191)); !errors.Is(err, ErrInvalidPostID) {
		t.Fatalf("expected invalid post id error for oversized value, got %v", err)
	}
	id, err := NewPostID("post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.String() != "post-1" {
		t.Fatalf("unexpected id value %q", id.String())
	}
}

func TestNewUserIDRejectsEmpty(t *testing.T) {
	if _, err := NewUserID(""); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected invalid user id error, got %v", err)
	}
}

func TestParsePostTypeAcceptsKnownTags(t *testing.T) {
	cases := []struct {
		raw     string
		want    PostType
		wantErr bool
	}{
		{raw: "text", want: PostTypeText},
		{raw: "stream_announce", want: PostTypeStreamAnnounce},
		{raw: "battle_result", want: PostTypeBattleResult},
		{raw: "family_announce", want: PostTypeFamilyAnnounce},
		{raw: "badge_earned", want: PostTypeBadgeEarned},
		{raw: "system", want: PostTypeSystem},
		{raw: "unknown", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, testCase := range cases {
		parsed, err := ParsePostType(testCase.raw)
		if testCase.wantErr {
			if !errors.Is(err, ErrInvalidPostType) {
				t.Fatalf("expected invalid post type error for %q, got %v", testCase.raw, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", testCase.raw, err)
		}
		if parsed != testCase.want {
			t.Fatalf("expected %q, got %q", testCase.want, parsed)
		}
	}
}

func TestValidateContentCountsRunesNotBytes(t *testing.T) {
	if err := ValidateContent(strings.Repeat("é", MaxContentLength)); err != nil {
		t.Fatalf("expected %d runes to fit, got %v", MaxContentLength, err)
	}
	if err := ValidateContent(strings.Repeat("a", MaxContentLength+1)); !errors.Is(err, ErrContentTooLong) {
		t.Fatalf("expected content too long error, got %v", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	original := Post{
		ID:            "post-1",
		AuthorID:      "user-1",
		PostType:      PostTypeText,
		Content:       "hello",
		Metadata:      map[string]string{"badge": "gold"},
		CreatedAt:     time.Unix(1700000000, 0).UTC(),
		ReactionTally: map[ReactionKind]int64{ReactionFire: 3},
		GiftTally:     map[GiftKind]GiftStat{GiftBeer: {Count: 1, Coins: 25}},
	}

	copied := original.Clone()
	copied.Metadata["badge"] = "silver"
	copied.ReactionTally[ReactionFire] = 99
	copied.GiftTally[GiftBeer] = GiftStat{Count: 7, Coins: 175}

	if original.Metadata["badge"] != "gold" {
		t.Fatalf("metadata aliased between clone and original")
	}
	if original.ReactionTally[ReactionFire] != 3 {
		t.Fatalf("reaction tally aliased between clone and original")
	}
	if original.GiftTally[GiftBeer].Count != 1 {
		t.Fatalf("gift tally aliased between clone and original")
	}
}

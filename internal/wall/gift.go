package wall

import (
	"errors"
	"fmt"
	"strings"
)

// GiftKind names an item from the coin-store catalog.
type GiftKind string

const (
	GiftTrollHeart GiftKind = "troll_heart"
	GiftTrollHorns GiftKind = "troll_horns"
	GiftBeer       GiftKind = "beer"
	GiftCrown      GiftKind = "crown"
	GiftDiamond    GiftKind = "diamond"
	GiftRocket     GiftKind = "rocket"
)

// MaxGiftQuantity bounds a single send. It also keeps the coin cost
// far from int64 overflow, so quantity*cost can never wrap negative.
const MaxGiftQuantity = 100

var (
	// ErrInvalidGiftKind indicates a gift outside the catalog.
	ErrInvalidGiftKind = errors.New("wall: invalid gift kind")
	// ErrInvalidGiftQuantity indicates a quantity outside [1, MaxGiftQuantity].
	ErrInvalidGiftQuantity = errors.New("wall: invalid gift quantity")
)

// giftCatalog maps each gift to its fixed coin cost.
var giftCatalog = map[GiftKind]int64{
	GiftTrollHeart: 5,
	GiftTrollHorns: 15,
	GiftBeer:       25,
	GiftCrown:      100,
	GiftDiamond:    250,
	GiftRocket:     500,
}

// ParseGiftKind validates a raw gift tag against the catalog.
func ParseGiftKind(rawInput string) (GiftKind, error) {
	kind := GiftKind(strings.ToLower(strings.TrimSpace(rawInput)))
	if _, ok := giftCatalog[kind]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidGiftKind, rawInput)
	}
	return kind, nil
}

// ValidateGiftQuantity rejects quantities outside [1, MaxGiftQuantity].
func ValidateGiftQuantity(quantity int64) error {
	if quantity < 1 || quantity > MaxGiftQuantity {
		return fmt.Errorf("%w: %d", ErrInvalidGiftQuantity, quantity)
	}
	return nil
}

// GiftCost returns the fixed coin cost for a catalog gift.
func GiftCost(kind GiftKind) (int64, error) {
	cost, ok := giftCatalog[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidGiftKind, string(kind))
	}
	return cost, nil
}

// String returns the underlying gift tag.
func (k GiftKind) String() string {
	return string(k)
}

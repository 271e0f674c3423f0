package rules

import "github.com/ludorush/ludorush/go/internal/models"

// RingSize is the number of shared squares on the outer ring. Relative
// positions 1-51 map onto the ring; the home stretch (52-56) and the
// finish square (57) are private to each color.
const RingSize = 52

// EntryRoll is the dice value required to move a token out of base.
const EntryRoll = 6

// trackOrigin is the absolute ring coordinate of each color's entry
// square (relative position 1).
var trackOrigin = map[models.PlayerColor]int{
	models.ColorRed:    1,
	models.ColorGreen:  14,
	models.ColorYellow: 27,
	models.ColorBlue:   40,
}

// safeSquares are absolute ring coordinates where tokens cannot be
// captured: the four entry squares plus the four star squares.
var safeSquares = map[int]bool{
	1: true, 9: true, 14: true, 22: true,
	27: true, 35: true, 40: true, 48: true,
}

// AbsoluteCoord maps a relative track position to its absolute ring
// coordinate. ok is false for base, home-stretch, and finished tokens,
// which occupy no shared square.
func AbsoluteCoord(color models.PlayerColor, pos int) (int, bool) {
	if pos < 1 || pos > models.TrackEnd {
		return 0, false
	}
	origin, known := trackOrigin[color]
	if !known {
		return 0, false
	}
	return (origin-1+pos-1)%RingSize + 1, true
}

// IsSafeSquare reports whether the absolute ring coordinate is immune
// to captures.
func IsSafeSquare(coord int) bool {
	return safeSquares[coord]
}

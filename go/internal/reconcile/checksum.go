package reconcile

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/ludorush/ludorush/go/internal/models"
)

// Checksum digests the board state with FNV-1a over a canonical
// serialization: players ordered by id, token positions sorted per
// player, then turn index and dice value. Two peers holding equal
// positions, turn, and dice compute equal checksums regardless of how
// their player arrays happen to be ordered.
func Checksum(players []models.Player, currentTurn, diceValue int) string {
	ordered := make([]models.Player, len(players))
	copy(ordered, players)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	h := fnv.New64a()
	var buf [8]byte
	writeInt := func(v int) {
		binary.BigEndian.PutUint64(buf[:], uint64(int64(v)))
		h.Write(buf[:])
	}

	for _, p := range ordered {
		h.Write([]byte(p.ID))
		h.Write([]byte{0})
		positions := make([]int, len(p.Tokens))
		for i, t := range p.Tokens {
			positions[i] = t.Position
		}
		sort.Ints(positions)
		for _, pos := range positions {
			writeInt(pos)
		}
	}
	writeInt(currentTurn)
	writeInt(diceValue)

	return fmt.Sprintf("%016x", h.Sum64())
}

package models

// PlayerColor identifies which track a player races on.
type PlayerColor string

const (
	ColorRed    PlayerColor = "red"
	ColorGreen  PlayerColor = "green"
	ColorYellow PlayerColor = "yellow"
	ColorBlue   PlayerColor = "blue"
)

// Token position semantics:
//
//	0      in base, unplaced
//	1-51   own track, relative to the player's entry square
//	52-56  home stretch
//	57     finished
const (
	PositionBase     = 0
	TrackEnd         = 51
	HomeStretchStart = 52
	PositionFinished = 57
)

// TokensPerPlayer is fixed by the board layout.
const TokensPerPlayer = 4

// Token is a single piece on the board.
type Token struct {
	ID       int `json:"id"`
	Position int `json:"position"`
}

// Player represents one side of a match.
type Player struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Color    PlayerColor `json:"color"`
	Tokens   []Token     `json:"tokens"`
	Finished int         `json:"finished"`
	IsBot    bool        `json:"is_bot,omitempty"`
}

// NewPlayer returns a player with all four tokens in base.
func NewPlayer(id, name string, color PlayerColor) Player {
	tokens := make([]Token, TokensPerPlayer)
	for i := range tokens {
		tokens[i] = Token{ID: i, Position: PositionBase}
	}
	return Player{ID: id, Name: name, Color: color, Tokens: tokens}
}

// Clone returns a deep copy. Reducers never mutate a shared player list.
func (p Player) Clone() Player {
	out := p
	out.Tokens = make([]Token, len(p.Tokens))
	copy(out.Tokens, p.Tokens)
	return out
}

// ClonePlayers deep-copies a player list.
func ClonePlayers(players []Player) []Player {
	out := make([]Player, len(players))
	for i, p := range players {
		out[i] = p.Clone()
	}
	return out
}

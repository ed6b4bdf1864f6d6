// Package bot picks columns for the automated opponent.
//
// The decision ladder is deliberately probabilistic: a pure minimax bot
// would be unbeatable and unfun, so each rung can be skipped with a
// small chance to keep the opponent strong but fallible.
package bot

import (
	"errors"
	"log"
	"math/rand"
	"sync"

	"github.com/louisbranch/dropfour/internal/game/board"
	"github.com/louisbranch/dropfour/internal/random"
)

// Rung skip thresholds: a roll at or below the threshold skips the rung.
const (
	missWinChance    = 0.05
	missBlockChance  = 0.10
	missBuildChance  = 0.20
	missCenterChance = 0.30
)

// ErrNoLegalMoves indicates a full board.
var ErrNoLegalMoves = errors.New("no legal moves")

// roller is the randomness source for the decision ladder. *rand.Rand
// satisfies it; tests script it.
type roller interface {
	Float64() float64
	Intn(n int) int
}

// Bot selects moves for an automated participant. Safe for concurrent use.
type Bot struct {
	mu  sync.Mutex
	rng roller
}

// New creates a bot seeded from crypto/rand.
func New() (*Bot, error) {
	seed, err := random.NewSeed()
	if err != nil {
		return nil, err
	}
	return &Bot{rng: rand.New(rand.NewSource(seed))}, nil
}

// NewWithRoller creates a bot with an injected randomness source.
func NewWithRoller(rng roller) *Bot {
	return &Bot{rng: rng}
}

// ChooseColumn picks a column for piece on g. The ladder is evaluated in
// strict priority order, each rung short-circuiting on success:
// win now, block the opponent, build a run of three, take the center,
// weighted near-center pick, uniform fallback.
//
// g is the caller's private copy; hypothetical placements made while
// evaluating rungs are restored before returning.
func (b *Bot) ChooseColumn(g *board.Board, piece board.Cell) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	legal := g.LegalMoves()
	if len(legal) == 0 {
		return 0, ErrNoLegalMoves
	}

	opponent := board.Player1
	if piece == board.Player1 {
		opponent = board.Player2
	}

	// Win now, with a small chance to miss it.
	for _, col := range legal {
		if g.WouldWin(col, piece) && b.rng.Float64() > missWinChance {
			log.Printf("bot winning move col=%d", col)
			return col, nil
		}
	}

	// Block the opponent's winning move.
	for _, col := range legal {
		if g.WouldWin(col, opponent) && b.rng.Float64() > missBlockChance {
			log.Printf("bot blocking move col=%d", col)
			return col, nil
		}
	}

	// Build toward a run of three.
	var building []int
	for _, col := range legal {
		if g.WouldRun(col, piece, 3) {
			building = append(building, col)
		}
	}
	if len(building) > 0 && b.rng.Float64() > missBuildChance {
		col := building[b.rng.Intn(len(building))]
		log.Printf("bot building move col=%d", col)
		return col, nil
	}

	// Center bias.
	center := g.Cols() / 2
	if g.CanPlace(center) && b.rng.Float64() > missCenterChance {
		return center, nil
	}

	// Weighted pick preferring columns near the center.
	weights := make([]float64, len(legal))
	total := 0.0
	for i, col := range legal {
		distance := col - center
		if distance < 0 {
			distance = -distance
		}
		w := float64(5 - distance)
		if w < 1 {
			w = 1
		}
		w *= 0.7 + b.rng.Float64()*0.6
		weights[i] = w
		total += w
	}
	pick := b.rng.Float64() * total
	for i, col := range legal {
		pick -= weights[i]
		if pick <= 0 {
			return col, nil
		}
	}

	// Floating point slack can exhaust the loop; fall back to uniform.
	return legal[b.rng.Intn(len(legal))], nil
}

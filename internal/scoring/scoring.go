// Package scoring holds the pure scoring arithmetic. Every other component
// defers to it so that ledger mutations and view previews never diverge.
package scoring

import "rollbook/internal/ledger"

const (
	// MaxTurnScore is the highest score a single turn can record.
	MaxTurnScore = 20000
	// ScoreStep is the granularity enforced at entry time.
	ScoreStep = 50
	// OnBoardThreshold is the single-turn score that puts a player on the board.
	OnBoardThreshold = 500
	// WinningThreshold is the total required to be eligible to win.
	WinningThreshold = 10000
)

// Counts reports whether a turn contributes to its player's total: closed,
// not a bust, and nonzero. A zero-score turn is treated identically to a
// bust regardless of the stored flag.
func Counts(turn ledger.Turn) bool {
	return turn.Closed && !turn.Bust && turn.Score > 0
}

// Total sums the contributing turns.
func Total(turns []ledger.Turn) int {
	total := 0
	for _, turn := range turns {
		if Counts(turn) {
			total += turn.Score
		}
	}
	return total
}

// IsOnBoard reports whether a point value clears the on-board threshold.
// Applied to a single turn's score when it is banked, and to the corrected
// total on edits; the stored flag is a monotonic OR over these checks.
func IsOnBoard(points int) bool {
	return points >= OnBoardThreshold
}

// IsEligibleWinner reports whether a total qualifies to finish the game.
func IsEligibleWinner(total int) bool {
	return total >= WinningThreshold
}

// ValidScore reports whether a score is inside entry bounds and on the
// 50-point grid.
func ValidScore(score int) bool {
	return score >= 0 && score <= MaxTurnScore && score%ScoreStep == 0
}

// Kind distinguishes the three states a (player, round) cell can be in.
// A missing row and a bust row render alike but are handled differently at
// finish time, so the distinction stays explicit.
type Kind int

const (
	// NoScore means no committed row exists for the cell.
	NoScore Kind = iota
	// Busted means a committed row contributes zero.
	Busted
	// Scored means a committed row contributes its score.
	Scored
)

// TurnResult is the tagged per-cell state used by the round grid.
type TurnResult struct {
	Kind   Kind
	Score  int
	TurnID uint
}

// ResultFor classifies a persisted turn. Unclosed rows are placeholders
// and count as missing.
func ResultFor(turn ledger.Turn) TurnResult {
	if !turn.Closed {
		return TurnResult{Kind: NoScore, TurnID: turn.ID}
	}
	if turn.Bust || turn.Score == 0 {
		return TurnResult{Kind: Busted, Score: turn.Score, TurnID: turn.ID}
	}
	return TurnResult{Kind: Scored, Score: turn.Score, TurnID: turn.ID}
}

// Grid lays turns out as one row of TurnResults per player, indexed by
// round number minus one. Cells without a row stay NoScore. Turns beyond
// roundCount are ignored; round numbers need not be contiguous.
func Grid(players []ledger.Player, turns []ledger.Turn, roundCount int) map[uint][]TurnResult {
	grid := make(map[uint][]TurnResult, len(players))
	for _, player := range players {
		grid[player.ID] = make([]TurnResult, roundCount)
	}
	for _, turn := range turns {
		row, ok := grid[turn.PlayerID]
		if !ok {
			continue
		}
		if turn.RoundNumber < 1 || turn.RoundNumber > roundCount {
			continue
		}
		row[turn.RoundNumber-1] = ResultFor(turn)
	}
	return grid
}

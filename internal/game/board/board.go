// Package board implements the pure grid mechanics of the game: piece
// drops, win detection, and draw detection. It performs no I/O and holds
// no locks; callers are responsible for serializing access.
package board

import (
	"errors"
	"fmt"
)

// Cell represents the state of a single grid cell.
type Cell uint8

const (
	// Empty marks an unoccupied cell.
	Empty Cell = iota
	// Player1 marks a cell occupied by the first slot's piece.
	Player1
	// Player2 marks a cell occupied by the second slot's piece.
	Player2
)

// String returns the wire representation of a cell.
func (c Cell) String() string {
	switch c {
	case Player1:
		return "player1"
	case Player2:
		return "player2"
	default:
		return "empty"
	}
}

// MarshalJSON encodes cells as their wire strings so serialized boards
// match the client contract.
func (c Cell) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

var (
	// ErrColumnFull indicates a drop into a column with no empty cell.
	ErrColumnFull = errors.New("column is full")
	// ErrColumnOutOfRange indicates a column index outside the grid.
	ErrColumnOutOfRange = errors.New("column is out of range")
)

// Position is the landing cell of an applied move.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// winLength is the run length required to win.
const winLength = 4

// directions lists one delta per axis pair; runs are counted in both the
// positive and negative direction along each.
var directions = [4][2]int{
	{0, 1},  // horizontal
	{1, 0},  // vertical
	{1, 1},  // diagonal down-right
	{1, -1}, // diagonal down-left
}

// Board is a rectangular grid of cells. Row 0 is the top; pieces fall
// toward the highest row index.
type Board struct {
	rows  int
	cols  int
	cells [][]Cell
}

// New creates an empty board with the given dimensions.
func New(rows, cols int) *Board {
	cells := make([][]Cell, rows)
	for i := range cells {
		cells[i] = make([]Cell, cols)
	}
	return &Board{rows: rows, cols: cols, cells: cells}
}

// FromCells reconstructs a board from a cell grid, copying the input.
func FromCells(cells [][]Cell) (*Board, error) {
	rows := len(cells)
	if rows == 0 {
		return nil, fmt.Errorf("cell grid has no rows")
	}
	cols := len(cells[0])
	if cols == 0 {
		return nil, fmt.Errorf("cell grid has no columns")
	}
	b := New(rows, cols)
	for r := 0; r < rows; r++ {
		if len(cells[r]) != cols {
			return nil, fmt.Errorf("cell grid row %d has %d columns, want %d", r, len(cells[r]), cols)
		}
		copy(b.cells[r], cells[r])
	}
	return b, nil
}

// Rows returns the number of rows.
func (b *Board) Rows() int { return b.rows }

// Cols returns the number of columns.
func (b *Board) Cols() int { return b.cols }

// Cell returns the cell at (row, col).
func (b *Board) Cell(row, col int) Cell {
	return b.cells[row][col]
}

// Cells returns a deep copy of the grid for serialization.
func (b *Board) Cells() [][]Cell {
	out := make([][]Cell, b.rows)
	for r := range b.cells {
		out[r] = make([]Cell, b.cols)
		copy(out[r], b.cells[r])
	}
	return out
}

// MarshalJSON serializes the grid as nested arrays of cell strings.
func (b *Board) MarshalJSON() ([]byte, error) {
	buf := []byte{'['}
	for r := 0; r < b.rows; r++ {
		if r > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '[')
		for c := 0; c < b.cols; c++ {
			if c > 0 {
				buf = append(buf, ',')
			}
			cell, err := b.cells[r][c].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf = append(buf, cell...)
		}
		buf = append(buf, ']')
	}
	return append(buf, ']'), nil
}

// LowestEmptyRow returns the highest row index with an empty cell in col,
// or false when the column is full.
func (b *Board) LowestEmptyRow(col int) (int, bool) {
	for row := b.rows - 1; row >= 0; row-- {
		if b.cells[row][col] == Empty {
			return row, true
		}
	}
	return 0, false
}

// CanPlace reports whether a piece can legally land in col.
func (b *Board) CanPlace(col int) bool {
	if col < 0 || col >= b.cols {
		return false
	}
	return b.cells[0][col] == Empty
}

// Apply drops piece into col and returns the landing position.
// It fails with ErrColumnOutOfRange or ErrColumnFull without mutating
// the grid.
func (b *Board) Apply(col int, piece Cell) (Position, error) {
	if col < 0 || col >= b.cols {
		return Position{}, ErrColumnOutOfRange
	}
	row, ok := b.LowestEmptyRow(col)
	if !ok {
		return Position{}, ErrColumnFull
	}
	b.cells[row][col] = piece
	return Position{Row: row, Col: col}, nil
}

// CheckWin reports whether the piece at (row, col) completes a run of
// four or more along any axis. Runs are counted outward in both
// directions from the placed cell, so a piece landing in the middle of a
// run is detected.
func (b *Board) CheckWin(row, col int, piece Cell) bool {
	for _, d := range directions {
		if b.runLength(row, col, d[0], d[1], piece) >= winLength {
			return true
		}
	}
	return false
}

// IsDraw reports whether every column is full.
func (b *Board) IsDraw() bool {
	for col := 0; col < b.cols; col++ {
		if b.cells[0][col] == Empty {
			return false
		}
	}
	return true
}

// LegalMoves returns every column with room for another piece.
func (b *Board) LegalMoves() []int {
	moves := make([]int, 0, b.cols)
	for col := 0; col < b.cols; col++ {
		if b.cells[0][col] == Empty {
			moves = append(moves, col)
		}
	}
	return moves
}

// WouldWin reports whether dropping piece into col would win. The
// hypothetical piece is removed before returning.
func (b *Board) WouldWin(col int, piece Cell) bool {
	if !b.CanPlace(col) {
		return false
	}
	row, _ := b.LowestEmptyRow(col)
	b.cells[row][col] = piece
	win := b.CheckWin(row, col, piece)
	b.cells[row][col] = Empty
	return win
}

// WouldRun reports whether dropping piece into col would yield a run of
// at least length along any axis. The hypothetical piece is removed
// before returning.
func (b *Board) WouldRun(col int, piece Cell, length int) bool {
	if !b.CanPlace(col) {
		return false
	}
	row, _ := b.LowestEmptyRow(col)
	b.cells[row][col] = piece
	run := false
	for _, d := range directions {
		if b.runLength(row, col, d[0], d[1], piece) >= length {
			run = true
			break
		}
	}
	b.cells[row][col] = Empty
	return run
}

// runLength counts contiguous same-piece cells through (row, col) along
// one axis, scanning both directions. The count starts at 1 for the
// anchor cell.
func (b *Board) runLength(row, col, deltaRow, deltaCol int, piece Cell) int {
	count := 1

	r, c := row+deltaRow, col+deltaCol
	for r >= 0 && r < b.rows && c >= 0 && c < b.cols && b.cells[r][c] == piece {
		count++
		r += deltaRow
		c += deltaCol
	}

	r, c = row-deltaRow, col-deltaCol
	for r >= 0 && r < b.rows && c >= 0 && c < b.cols && b.cells[r][c] == piece {
		count++
		r -= deltaRow
		c -= deltaCol
	}

	return count
}

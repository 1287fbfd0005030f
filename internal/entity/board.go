package entity

import (
	"errors"
	"fmt"
	"strconv"

	"caro-backend/internal/apperror"
)

const (
	SignCircle = "circle"
	SignCross  = "cross"

	// SignDraw is reported as the winner of a drawn game.
	SignDraw = "draw"
)

var ErrInvalidCell = errors.New("invalid cell index")

// scanDirections is the fixed order a winning run is searched in from every
// cell: right, down, down-right, down-left.
var scanDirections = [4][2]int{
	{0, 1},
	{1, 0},
	{1, 1},
	{1, -1},
}

// Result holds the outcome of evaluating a board: the winning sign and the
// run of cell indices that produced it, or SignDraw with an empty run.
type Result struct {
	Winner   string `json:"winner"`
	WinArray []int  `json:"winArray"`
}

func (that *Result) IsDraw() bool {
	return that.Winner == SignDraw
}

// Board is an N×N grid. Unplayed cells carry their 1-based numeric label,
// so occupancy is tested by sign membership rather than emptiness.
type Board struct {
	Size      int      `json:"size"`
	WinLength int      `json:"win_length"`
	Cells     []string `json:"cells"`
}

func NewBoard(size, winLength int) *Board {
	cells := make([]string, size*size)
	for cell := range cells {
		cells[cell] = strconv.Itoa(cell + 1)
	}

	return &Board{
		Size:      size,
		WinLength: winLength,
		Cells:     cells,
	}
}

func (that *Board) IsOccupied(cell int) bool {
	return that.Cells[cell] == SignCircle || that.Cells[cell] == SignCross
}

// ApplyMove places sign on the given cell. Turn and ownership checks are the
// caller's job; only bounds and occupancy are validated here.
func (that *Board) ApplyMove(row, col int, sign string) error {
	if row < 0 || row >= that.Size || col < 0 || col >= that.Size {
		return fmt.Errorf("%w: row %d col %d", ErrInvalidCell, row, col)
	}

	cell := row*that.Size + col
	if that.IsOccupied(cell) {
		return apperror.ErrCellOccupied
	}

	that.Cells[cell] = sign

	return nil
}

// Evaluate scans row-major for the first run of WinLength identical signs,
// trying directions in scanDirections order from each cell. It returns nil
// while the game is still undecided; a full board with no run is a draw.
func (that *Board) Evaluate() *Result {
	for row := 0; row < that.Size; row++ {
		for col := 0; col < that.Size; col++ {
			sign := that.Cells[row*that.Size+col]
			if sign != SignCircle && sign != SignCross {
				continue
			}

			for _, dir := range scanDirections {
				if run, ok := that.runFrom(row, col, dir[0], dir[1], sign); ok {
					return &Result{Winner: sign, WinArray: run}
				}
			}
		}
	}

	for cell := range that.Cells {
		if !that.IsOccupied(cell) {
			return nil
		}
	}

	return &Result{Winner: SignDraw, WinArray: []int{}}
}

func (that *Board) runFrom(row, col, dRow, dCol int, sign string) ([]int, bool) {
	endRow := row + (that.WinLength-1)*dRow
	endCol := col + (that.WinLength-1)*dCol
	if endRow < 0 || endRow >= that.Size || endCol < 0 || endCol >= that.Size {
		return nil, false
	}

	run := make([]int, 0, that.WinLength)
	for step := 0; step < that.WinLength; step++ {
		cell := (row+step*dRow)*that.Size + (col + step*dCol)
		if that.Cells[cell] != sign {
			return nil, false
		}
		run = append(run, cell)
	}

	return run, true
}

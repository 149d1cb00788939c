package ludo

// Canonical 4-color board. The shared ring has 52 cells indexed 0-51,
// each color owns a 6-cell home run and a win slot past its last home cell.
const (
	RingSize        = 52
	HomeRunSize     = 6
	TokensPerPlayer = 4

	// ring cells traveled from the start cell before turning into the home run
	ringTrack = 51

	// total steps from the start cell to the win slot:
	// 51 ring cells + 6 home cells, the next step wins
	WinDistance = ringTrack + HomeRunSize
)

type PlayerColor string

const (
	ColorRed    PlayerColor = "red"
	ColorGreen  PlayerColor = "green"
	ColorYellow PlayerColor = "yellow"
	ColorBlue   PlayerColor = "blue"
)

// Colors lists the canonical colors in ring order (clockwise).
var Colors = []PlayerColor{ColorRed, ColorGreen, ColorYellow, ColorBlue}

// startCell is the base-exit cell of each color on the shared ring.
var startCell = map[PlayerColor]int{
	ColorRed:    0,
	ColorGreen:  13,
	ColorYellow: 26,
	ColorBlue:   39,
}

// safeCell marks the 8 capture-free ring cells: the four start cells
// plus a star cell 8 steps after each start.
var safeCell = map[int]bool{
	0: true, 8: true, 13: true, 21: true, 26: true, 34: true, 39: true, 47: true,
}

// StartCell returns the base-exit ring cell for a color.
func StartCell(c PlayerColor) int {
	return startCell[c]
}

// HomeEntryCell returns the last ring cell a color visits before its home run.
func HomeEntryCell(c PlayerColor) int {
	return (startCell[c] + ringTrack - 1) % RingSize
}

// IsSafeCell reports whether a ring cell is capture-free.
func IsSafeCell(ring int) bool {
	return safeCell[ring]
}

// ValidColor reports whether c is one of the four canonical colors.
func ValidColor(c PlayerColor) bool {
	_, ok := startCell[c]
	return ok
}

// ringCellAt maps a progress offset (steps from the start cell, 0-50)
// to an absolute ring index for the given color.
func ringCellAt(c PlayerColor, progress int) int {
	return (startCell[c] + progress) % RingSize
}

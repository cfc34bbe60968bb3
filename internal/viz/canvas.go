package viz

import (
	"strings"
)

// Braille Patterns: 2x4 dots
// 1 4
// 2 5
// 3 6
// 7 8
//
// Unicode offset 0x2800
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const blank = 0x2800

// Canvas is a Braille pixel grid of Width x Height characters, that is
// Width*2 x Height*4 dots.
type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
	}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Set lights the dot at (x, y); out of range dots are ignored.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}

	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = blank
		}
	}
}

// FillRow lights dots [0, n) of dot row y.
func (c *Canvas) FillRow(y, n int) {
	for x := 0; x < n; x++ {
		c.Set(x, y)
	}
}

// DrawColumn draws one horizontal bar per cell, top cell first, with a
// length proportional to value/max. Every cell gets the same number of
// dot rows, the last of which is left blank as a separator.
func (c *Canvas) DrawColumn(values []float64, max float64) {
	c.Clear()
	if len(values) == 0 || max <= 0 {
		return
	}

	dotsX, dotsY := c.Width*2, c.Height*4
	rows := dotsY / len(values)
	if rows < 1 {
		rows = 1
	}
	fill := rows
	if rows > 1 {
		fill = rows - 1
	}

	for i, v := range values {
		frac := v / max
		if frac > 1 {
			frac = 1
		} else if frac < 0 {
			frac = 0
		}
		n := int(frac * float64(dotsX))
		for r := 0; r < fill; r++ {
			c.FillRow(i*rows+r, n)
		}
	}
}

// DrawMarker draws a vertical line at dot column x.
func (c *Canvas) DrawMarker(x int) {
	for y := 0; y < c.Height*4; y++ {
		c.Set(x, y)
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row) + "\n")
	}
	return b.String()
}

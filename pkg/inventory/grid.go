package inventory

// Grid maps tiles of a rows x columns board to linear slot indexes in
// row-major order.
type Grid struct {
	Rows    int `json:"rows"`
	Columns int `json:"columns"`
}

// Capacity returns the number of slots on the board.
func (g Grid) Capacity() int {
	if g.Rows <= 0 || g.Columns <= 0 {
		return 0
	}
	return g.Rows * g.Columns
}

// TileToIndex returns the linear index of a tile.
func (g Grid) TileToIndex(t Tile) int {
	return t.X + t.Y*g.Columns
}

// IndexToTile returns the tile at a linear index.
func (g Grid) IndexToTile(i int) Tile {
	if g.Columns <= 0 {
		return Tile{}
	}
	return Tile{X: i % g.Columns, Y: i / g.Columns}
}

// IsValid reports whether a tile lies on the board.
func (g Grid) IsValid(t Tile) bool {
	return t.X >= 0 && t.Y >= 0 && t.X < g.Columns && t.Y < g.Rows
}

// footprint returns the indexes covered by a footprint anchored at topLeft.
// ok is false when any cell falls off the board.
func (g Grid) footprint(topLeft int, size Size) ([]int, bool) {
	if topLeft < 0 || topLeft >= g.Capacity() {
		return nil, false
	}
	origin := g.IndexToTile(topLeft)
	size = size.normalized()
	out := make([]int, 0, size.Width*size.Height)
	for x := origin.X; x < origin.X+size.Width; x++ {
		for y := origin.Y; y < origin.Y+size.Height; y++ {
			t := Tile{X: x, Y: y}
			if !g.IsValid(t) {
				return nil, false
			}
			out = append(out, g.TileToIndex(t))
		}
	}
	return out, true
}

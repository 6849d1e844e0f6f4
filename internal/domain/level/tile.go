// Package level defines the core domain entities for levels: tiles, the tile
// grid, elevators and actor poses.
// This package is PURE and must NOT import any infrastructure packages (network, events, platform).
package level

// TileKind identifies the static material of one grid cell.
type TileKind string

const (
	TileEmpty     TileKind = "empty"
	TileBrick1    TileKind = "brick1"
	TileBrick2    TileKind = "brick2"
	TileWood      TileKind = "wood"
	TileHourglass TileKind = "hourglass"
)

// Solid reports whether the tile blocks actor movement.
func (k TileKind) Solid() bool {
	switch k {
	case TileBrick1, TileBrick2, TileWood:
		return true
	default:
		return false
	}
}

// Valid reports whether the kind is one of the known tile kinds.
func (k TileKind) Valid() bool {
	switch k {
	case TileEmpty, TileBrick1, TileBrick2, TileWood, TileHourglass:
		return true
	default:
		return false
	}
}

// GridPos is a discrete tile coordinate. Y grows southward.
type GridPos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add returns the position offset by dx, dy.
func (p GridPos) Add(dx, dy int) GridPos {
	return GridPos{X: p.X + dx, Y: p.Y + dy}
}

// Grid is a sparse tile grid. Unset cells read as TileEmpty.
// The grid is mutated only by the editor between simulation runs; the engine
// treats it as read-only while a tick is executing.
type Grid struct {
	tiles map[GridPos]TileKind
}

// NewGrid creates an empty grid.
func NewGrid() *Grid {
	return &Grid{tiles: make(map[GridPos]TileKind)}
}

// At returns the tile at pos. Absent cells are TileEmpty.
func (g *Grid) At(pos GridPos) TileKind {
	if k, ok := g.tiles[pos]; ok {
		return k
	}
	return TileEmpty
}

// Set places a tile. Setting TileEmpty clears the cell.
func (g *Grid) Set(pos GridPos, kind TileKind) {
	if kind == TileEmpty {
		delete(g.tiles, pos)
		return
	}
	g.tiles[pos] = kind
}

// Walkable reports whether an actor may occupy pos.
func (g *Grid) Walkable(pos GridPos) bool {
	return !g.At(pos).Solid()
}

// Len returns the number of non-empty cells.
func (g *Grid) Len() int {
	return len(g.tiles)
}

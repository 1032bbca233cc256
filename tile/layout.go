package tile

// Layout places signed world tiles into the unsigned XYZ scheme used by
// tilesets. A tile at display zoom z is stored at level z+ZoomBias with the
// world origin in the middle of the level.
type Layout struct {
	ZoomBias int
}

func (l Layout) ID(c Coord) (ID, bool) {
	level := c.Z + l.ZoomBias
	if level < 0 || level >= 32 {
		return ID{}, false
	}
	half := l.half(level)
	x, y := c.X+half, c.Y+half
	if x < 0 || y < 0 {
		return ID{}, false
	}
	id := ID{X: uint32(x), Y: uint32(y), Z: uint32(level)}
	return id, id.Valid()
}

func (l Layout) Coord(id ID) Coord {
	level := int(id.Z)
	half := l.half(level)
	return Coord{Z: level - l.ZoomBias, X: int(id.X) - half, Y: int(id.Y) - half}
}

func (l Layout) half(level int) int {
	if level == 0 {
		return 0
	}
	return 1 << (level - 1)
}

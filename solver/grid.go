package solver

// GridLaplacian is the 5 point operator over the unknown cells of a grid.
// Cell i has Degree[i] on the diagonal and -1 for each of its unknown
// neighbours; neighbours that are known have been moved to the right hand side
// by the caller.
type GridLaplacian struct {
	Degree    []float64
	Neighbors [][4]int32 // -1 marks an absent or known neighbour
}

func NewGridLaplacian(n int) *GridLaplacian {
	g := &GridLaplacian{
		Degree:    make([]float64, n),
		Neighbors: make([][4]int32, n),
	}
	for i := range g.Neighbors {
		g.Neighbors[i] = [4]int32{-1, -1, -1, -1}
	}
	return g
}

func (g *GridLaplacian) Len() int {
	return len(g.Degree)
}

func (g *GridLaplacian) Apply(x, out []float64) {
	for i, d := range g.Degree {
		v := d * x[i]
		for _, j := range g.Neighbors[i] {
			if j >= 0 {
				v -= x[j]
			}
		}
		out[i] = v
	}
}

package detect

import "container/heap"

type cell struct {
	idx   int
	value float32
}

type cellHeap []cell

func (h cellHeap) Len() int { return len(h) }
func (h cellHeap) Less(i, j int) bool {
	return h[i].value < h[j].value || (h[i].value == h[j].value && h[i].idx < h[j].idx)
}
func (h cellHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *cellHeap) Push(x interface{}) { *h = append(*h, x.(cell)) }
func (h *cellHeap) Pop() interface{} {
	old := *h
	c := old[len(old)-1]
	*h = old[:len(old)-1]
	return c
}

// PitFill raises every local depression of data to its spill level, as if the
// grid were surrounded by a frame at outside. Flooding proceeds from the
// frame by priority of level.
func PitFill(data []float32, width, height int, outside float32) []float32 {
	filled := make([]float32, len(data))
	done := make([]bool, len(data))
	h := &cellHeap{}

	max := func(a, b float32) float32 {
		if a > b {
			return a
		}
		return b
	}

	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			if row != 0 && col != 0 && row != height-1 && col != width-1 {
				continue
			}
			i := row*width + col
			filled[i] = max(data[i], outside)
			done[i] = true
			heap.Push(h, cell{i, filled[i]})
		}
	}

	for h.Len() > 0 {
		c := heap.Pop(h).(cell)
		row, col := c.idx/width, c.idx%width
		for _, off := range [4][2]int{{-1, 0}, {0, -1}, {0, 1}, {1, 0}} {
			r, cc := row+off[0], col+off[1]
			if r < 0 || r >= height || cc < 0 || cc >= width {
				continue
			}
			q := r*width + cc
			if done[q] {
				continue
			}
			done[q] = true
			filled[q] = max(data[q], c.value)
			heap.Push(h, cell{q, filled[q]})
		}
	}
	return filled
}

package blend

import "github.com/nci/gapfill/raster"

// Region selects the pixels of a composite that are solved for. Every other
// pixel keeps its target value.
type Region struct {
	Width, Height int
	In            []bool
}

func NewRegion(width, height int) Region {
	return Region{Width: width, Height: height, In: make([]bool, width*height)}
}

// InteriorRegion holds every pixel except the one pixel image frame.
func InteriorRegion(width, height int) Region {
	r := NewRegion(width, height)
	for row := 1; row < height-1; row++ {
		for col := 1; col < width-1; col++ {
			r.In[row*width+col] = true
		}
	}
	return r
}

// RegionFromMask holds the pixels of mask in any of the given classes.
func RegionFromMask(mask *raster.Mask, classes ...raster.PixelClass) Region {
	r := NewRegion(mask.Width, mask.Height)
	for i, c := range mask.Class {
		for _, want := range classes {
			if c == want {
				r.In[i] = true
				break
			}
		}
	}
	return r
}

// RegionFromPixels holds the listed pixel indices.
func RegionFromPixels(width, height int, pixels []int) Region {
	r := NewRegion(width, height)
	for _, p := range pixels {
		if p >= 0 && p < len(r.In) {
			r.In[p] = true
		}
	}
	return r
}

func (r Region) Count() int {
	n := 0
	for _, in := range r.In {
		if in {
			n++
		}
	}
	return n
}

// distances returns, for every region pixel, the 4-connected step count to
// the closest pixel outside the region. Pixels that cannot reach one get -1.
func (r Region) distances() []int {
	dist := make([]int, len(r.In))
	queue := make([]int, 0, len(r.In))
	for i, in := range r.In {
		if in {
			dist[i] = -1
			continue
		}
		queue = append(queue, i)
	}
	for head := 0; head < len(queue); head++ {
		p := queue[head]
		row, col := p/r.Width, p%r.Width
		for _, off := range [4][2]int{{-1, 0}, {0, -1}, {0, 1}, {1, 0}} {
			rr, cc := row+off[0], col+off[1]
			if rr < 0 || rr >= r.Height || cc < 0 || cc >= r.Width {
				continue
			}
			q := rr*r.Width + cc
			if dist[q] == -1 {
				dist[q] = dist[p] + 1
				queue = append(queue, q)
			}
		}
	}
	return dist
}

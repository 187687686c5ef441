// Package components labels connected cloud and shadow regions of a validity mask.
package components

import (
	"fmt"

	"github.com/nci/gapfill/raster"
)

type Connectivity int

const (
	Four  Connectivity = 4
	Eight Connectivity = 8
)

type Options struct {
	Connectivity Connectivity
	// MergeClasses groups touching Cloud and Shadow pixels into one component.
	MergeClasses bool
}

func (o Options) Validate() error {
	if o.Connectivity != Four && o.Connectivity != Eight {
		return fmt.Errorf("connectivity must be 4 or 8, got %d", o.Connectivity)
	}
	return nil
}

// BBox is inclusive in both dimensions.
type BBox struct {
	MinRow, MinCol, MaxRow, MaxCol int
}

func (b BBox) Width() int  { return b.MaxCol - b.MinCol + 1 }
func (b BBox) Height() int { return b.MaxRow - b.MinRow + 1 }

type Component struct {
	Label    int32
	Count    int
	BBox     BBox
	Dominant raster.PixelClass
	Clouds   int
	Shadows  int
}

// Components keeps the label grid of a mask. Label 0 is background, labels
// 1..K are contiguous and Entries[k-1] describes label k.
type Components struct {
	Width, Height int
	Labels        []int32
	Entries       []Component
}

func (c *Components) Len() int {
	return len(c.Entries)
}

func (c *Components) Get(label int32) (Component, bool) {
	if label < 1 || int(label) > len(c.Entries) {
		return Component{}, false
	}
	return c.Entries[label-1], true
}

// Pixels returns the linear indices of the pixels carrying label, in row-major order.
func (c *Components) Pixels(label int32) []int {
	e, ok := c.Get(label)
	if !ok {
		return nil
	}
	out := make([]int, 0, e.Count)
	for row := e.BBox.MinRow; row <= e.BBox.MaxRow; row++ {
		for col := e.BBox.MinCol; col <= e.BBox.MaxCol; col++ {
			i := row*c.Width + col
			if c.Labels[i] == label {
				out = append(out, i)
			}
		}
	}
	return out
}

var offsets4 = [][2]int{{-1, 0}, {0, -1}, {0, 1}, {1, 0}}
var offsets8 = [][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}

func labelled(c raster.PixelClass) bool {
	return c == raster.Cloud || c == raster.Shadow
}

// Find labels the mask. Seeds are visited in row-major order so numbering is
// reproducible for identical input.
func Find(mask *raster.Mask, opts Options) (*Components, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return Label(mask.Width, mask.Height, opts.Connectivity, func(i int) bool {
		return labelled(mask.Class[i])
	}, func(a, b int) bool {
		return opts.MergeClasses || mask.Class[a] == mask.Class[b]
	}, func(i int) raster.PixelClass {
		return mask.Class[i]
	}), nil
}

// Label is the generic flood fill behind Find. member selects foreground
// pixels and joins decides whether two adjacent members share a component.
func Label(width, height int, conn Connectivity, member func(i int) bool, joins func(a, b int) bool, class func(i int) raster.PixelClass) *Components {
	offsets := offsets8
	if conn == Four {
		offsets = offsets4
	}

	cc := &Components{Width: width, Height: height, Labels: make([]int32, width*height)}
	var queue []int
	for seed := range cc.Labels {
		if cc.Labels[seed] != 0 || !member(seed) {
			continue
		}

		label := int32(len(cc.Entries) + 1)
		e := Component{
			Label: label,
			BBox:  BBox{MinRow: seed / width, MinCol: seed % width, MaxRow: seed / width, MaxCol: seed % width},
		}
		cc.Labels[seed] = label
		queue = append(queue[:0], seed)
		for len(queue) > 0 {
			p := queue[0]
			queue = queue[1:]
			row, col := p/width, p%width
			e.Count++
			e.grow(row, col)
			if class != nil {
				switch class(p) {
				case raster.Cloud:
					e.Clouds++
				case raster.Shadow:
					e.Shadows++
				}
			}

			for _, off := range offsets {
				r, c := row+off[0], col+off[1]
				if r < 0 || r >= height || c < 0 || c >= width {
					continue
				}
				q := r*width + c
				if cc.Labels[q] != 0 || !member(q) || !joins(p, q) {
					continue
				}
				cc.Labels[q] = label
				queue = append(queue, q)
			}
		}

		e.Dominant = raster.Cloud
		if e.Shadows > e.Clouds {
			e.Dominant = raster.Shadow
		}
		cc.Entries = append(cc.Entries, e)
	}
	return cc
}

func (e *Component) grow(row, col int) {
	if row < e.BBox.MinRow {
		e.BBox.MinRow = row
	}
	if row > e.BBox.MaxRow {
		e.BBox.MaxRow = row
	}
	if col < e.BBox.MinCol {
		e.BBox.MinCol = col
	}
	if col > e.BBox.MaxCol {
		e.BBox.MaxCol = col
	}
}

// Suppress reclassifies every component smaller than minArea to Valid and
// returns the components of the cleaned mask.
func Suppress(mask *raster.Mask, minArea int, opts Options) (*Components, int, error) {
	cc, err := Find(mask, opts)
	if err != nil {
		return nil, 0, err
	}
	if minArea <= 1 {
		return cc, 0, nil
	}

	removed := 0
	small := make([]bool, len(cc.Entries)+1)
	for _, e := range cc.Entries {
		if e.Count < minArea {
			small[e.Label] = true
			removed += e.Count
		}
	}
	if removed == 0 {
		return cc, 0, nil
	}
	for i, l := range cc.Labels {
		if l != 0 && small[l] {
			mask.Class[i] = raster.Valid
		}
	}

	cc, err = Find(mask, opts)
	return cc, removed, err
}

// RemoveNoise drops cloud and shadow regions below minRegionSize using
// 8-connectivity regardless of class, and returns the reclassified pixel count.
func RemoveNoise(mask *raster.Mask, minRegionSize int) int {
	_, removed, _ := Suppress(mask, minRegionSize, Options{Connectivity: Eight, MergeClasses: true})
	return removed
}

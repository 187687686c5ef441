package raster

import "fmt"

type PixelClass uint8

const (
	Valid PixelClass = iota
	Cloud
	Shadow
	Invalid
)

func (c PixelClass) String() string {
	switch c {
	case Valid:
		return "valid"
	case Cloud:
		return "cloud"
	case Shadow:
		return "shadow"
	case Invalid:
		return "invalid"
	}
	return fmt.Sprintf("PixelClass(%d)", uint8(c))
}

// Mask classifies every pixel of the buffer it was built for.
type Mask struct {
	Width, Height int
	Class         []PixelClass
}

func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Class: make([]PixelClass, width*height)}
}

func NewMaskFor(buf *Buffer) *Mask {
	return NewMask(buf.Width, buf.Height)
}

func (m *Mask) At(row, col int) PixelClass {
	return m.Class[row*m.Width+col]
}

func (m *Mask) Set(row, col int, c PixelClass) {
	m.Class[row*m.Width+col] = c
}

func (m *Mask) Len() int {
	return len(m.Class)
}

func (m *Mask) Count(c PixelClass) int {
	n := 0
	for _, v := range m.Class {
		if v == c {
			n++
		}
	}
	return n
}

func (m *Mask) AllValid() bool {
	for _, v := range m.Class {
		if v != Valid {
			return false
		}
	}
	return true
}

func (m *Mask) Clone() *Mask {
	out := NewMask(m.Width, m.Height)
	copy(out.Class, m.Class)
	return out
}

// CheckDims fails unless the mask has exactly the dimensions of buf.
func (m *Mask) CheckDims(buf *Buffer) error {
	if m.Width != buf.Width || m.Height != buf.Height || len(m.Class) != len(buf.Data) {
		return &DataError{
			Date:   buf.Date,
			Band:   buf.Band,
			Reason: fmt.Sprintf("mask is %dx%d, buffer is %dx%d", m.Width, m.Height, buf.Width, buf.Height),
		}
	}
	return nil
}

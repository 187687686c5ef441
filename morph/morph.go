// Package morph runs the mask morphology of the detector on OpenCV.
//
// Images are single channel float32 grids in row-major order. A zero radius
// or sigma returns a copy of the input.
package morph

import (
	"fmt"
	"image"
	"unsafe"

	"gocv.io/x/gocv"
)

func toMat(data []float32, width, height int) (gocv.Mat, error) {
	if len(data) != width*height || len(data) == 0 {
		return gocv.Mat{}, fmt.Errorf("morph: %d samples for a %dx%d grid", len(data), width, height)
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*4)
	buf := make([]byte, len(raw))
	copy(buf, raw)
	return gocv.NewMatFromBytes(height, width, gocv.MatTypeCV32F, buf)
}

func fromMat(m gocv.Mat) ([]float32, error) {
	data, err := m.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("morph: %w", err)
	}
	out := make([]float32, len(data))
	copy(out, data)
	return out, nil
}

func ellipse(radius int) gocv.Mat {
	return gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(2*radius+1, 2*radius+1))
}

func clone(data []float32) []float32 {
	out := make([]float32, len(data))
	copy(out, data)
	return out
}

type op func(src gocv.Mat, dst *gocv.Mat) error

func apply(data []float32, width, height int, fn op) ([]float32, error) {
	src, err := toMat(data, width, height)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	dst := gocv.NewMat()
	defer dst.Close()

	if err := fn(src, &dst); err != nil {
		return nil, fmt.Errorf("morph: %w", err)
	}
	return fromMat(dst)
}

// Dilate grows non zero regions with an elliptic structuring element.
func Dilate(data []float32, width, height, radius int) ([]float32, error) {
	if radius <= 0 {
		return clone(data), nil
	}
	kernel := ellipse(radius)
	defer kernel.Close()
	return apply(data, width, height, func(src gocv.Mat, dst *gocv.Mat) error {
		return gocv.Dilate(src, dst, kernel)
	})
}

// Close is a dilation followed by an erosion with an elliptic element.
func Close(data []float32, width, height, radius int) ([]float32, error) {
	if radius <= 0 {
		return clone(data), nil
	}
	kernel := ellipse(radius)
	defer kernel.Close()
	return apply(data, width, height, func(src gocv.Mat, dst *gocv.Mat) error {
		return gocv.MorphologyEx(src, dst, gocv.MorphClose, kernel)
	})
}

// GaussianBlur smooths with a kernel sized from sigma.
func GaussianBlur(data []float32, width, height int, sigma float64) ([]float32, error) {
	if sigma <= 0 {
		return clone(data), nil
	}
	return apply(data, width, height, func(src gocv.Mat, dst *gocv.Mat) error {
		return gocv.GaussianBlur(src, dst, image.Pt(0, 0), sigma, sigma, gocv.BorderReflect101)
	})
}

// Threshold returns 1 where data >= t and 0 elsewhere.
func Threshold(data []float32, t float64) []float32 {
	out := make([]float32, len(data))
	for i, v := range data {
		if float64(v) >= t {
			out[i] = 1
		}
	}
	return out
}

func FromBool(mask []bool) []float32 {
	out := make([]float32, len(mask))
	for i, b := range mask {
		if b {
			out[i] = 1
		}
	}
	return out
}

func ToBool(data []float32) []bool {
	out := make([]bool, len(data))
	for i, v := range data {
		out[i] = v > 0
	}
	return out
}

// Package kernels provides the hand-specified 2D kernels used by the
// correlation tools and helpers to build kernels from rows or extrude them
// into 3D.
package kernels

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"patchconv25d/internal/models"
)

// ErrUnknownKernel is returned by Lookup for names without a preset
var ErrUnknownKernel = errors.New("unknown kernel")

// ErrBadRows is returned by FromRows for empty or ragged rows
var ErrBadRows = errors.New("kernel rows must be non-empty and rectangular")

// DefaultSize is the side length used by presets that accept a size
const DefaultSize = 5

var presets = map[string]func(size int) *mat.Dense{
	"edge":          func(int) *mat.Dense { return Edge() },
	"edge-vertical": func(int) *mat.Dense { return mat.DenseCopyOf(Edge().T()) },
	"sobel-x":       func(int) *mat.Dense { return SobelX() },
	"sobel-y":       func(int) *mat.Dense { return mat.DenseCopyOf(SobelX().T()) },
	"identity":      func(int) *mat.Dense { return mat.NewDense(1, 1, []float64{1}) },
	"zero":          func(size int) *mat.Dense { return mat.NewDense(size, size, nil) },
	"mexican-hat":   MexicanHat,
}

// Names returns the preset names in sorted order
func Names() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the preset called name. Size is used by the presets that
// are not fixed-size; values below 1 fall back to DefaultSize.
func Lookup(name string, size int) (*mat.Dense, error) {
	build, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownKernel, name, Names())
	}
	if size < 1 {
		size = DefaultSize
	}
	return build(size), nil
}

// Edge returns the 4x4 horizontal edge kernel: rows 0-1 are +1, rows 2-3 are -1.
// Its weights sum to zero so a uniform input gives a zero response.
func Edge() *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		1, 1, 1, 1,
		1, 1, 1, 1,
		-1, -1, -1, -1,
		-1, -1, -1, -1,
	})
}

// SobelX returns the 3x3 Sobel kernel responding to horizontal gradients
func SobelX() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		-1, 0, 1,
		-2, 0, 2,
		-1, 0, 1,
	})
}

// MexicanHat returns a size x size Ricker wavelet, shifted to zero mean so it
// behaves as a band-pass blob detector
func MexicanHat(size int) *mat.Dense {
	const sigma = 1.0
	k := mat.NewDense(size, size, nil)
	center := float64(size-1) / 2
	var sum float64
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			dy := float64(i) - center
			dx := float64(j) - center
			r2 := (dx*dx + dy*dy) / (2 * sigma * sigma)
			v := (1 - r2) * math.Exp(-r2)
			k.Set(i, j, v)
			sum += v
		}
	}
	mean := sum / float64(size*size)
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			k.Set(i, j, k.At(i, j)-mean)
		}
	}
	return k
}

// FromRows builds a kernel from explicit rows
func FromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrBadRows
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d values, row 0 has %d", ErrBadRows, i, len(row), cols)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), cols, data), nil
}

// Rows returns the kernel weights as nested slices, the inverse of FromRows
func Rows(k mat.Matrix) [][]float64 {
	r, c := k.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = make([]float64, c)
		for j := range rows[i] {
			rows[i][j] = k.At(i, j)
		}
	}
	return rows
}

// Extrude repeats a 2D kernel depth times along z to form a 3D kernel. Kernel
// rows map to x and columns to y, the axial orientation of a section.
func Extrude(k *mat.Dense, depth int) *models.Volume {
	r, c := k.Dims()
	return models.NewVolumeFunc(r, c, depth, func(x, y, _ int) float64 {
		return k.At(x, y)
	})
}

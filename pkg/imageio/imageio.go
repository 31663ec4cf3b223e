// Package imageio loads photographs as grayscale matrices and writes
// matrices back out as images.
package imageio

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LoadGray decodes the image at path and returns its luminance in [0,1]
func LoadGray(path string) (*mat.Dense, error) {
	img, err := Load(path)
	if err != nil {
		return nil, err
	}
	return FromImage(img), nil
}

// Load decodes the image at path
func Load(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return img, nil
}

// FromImage converts img to a matrix of 16-bit luminance scaled to [0,1].
// Row r holds image row r.
func FromImage(img image.Image) *mat.Dense {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	m := mat.NewDense(height, width, nil)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			m.Set(y, x, float64(g.Y)/65535.0)
		}
	}
	return m
}

// ToImage maps m to a 16-bit grayscale image, stretching its value range to
// the full intensity range. A constant matrix maps to black.
func ToImage(m mat.Matrix) *image.Gray16 {
	rows, cols := m.Dims()
	img := image.NewGray16(image.Rect(0, 0, cols, rows))

	lo, hi := valueRange(m)
	scale := 0.0
	if hi > lo {
		scale = 65535.0 / (hi - lo)
	}
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			img.SetGray16(x, y, color.Gray16{Y: uint16((m.At(y, x) - lo) * scale)})
		}
	}
	return img
}

func valueRange(m mat.Matrix) (float64, float64) {
	if d, ok := m.(*mat.Dense); ok && !d.IsEmpty() {
		raw := d.RawMatrix()
		if raw.Stride == raw.Cols {
			return floats.Min(raw.Data), floats.Max(raw.Data)
		}
	}
	return mat.Min(m), mat.Max(m)
}

// Resize resamples m to rows x cols with Catmull-Rom interpolation
func Resize(m *mat.Dense, rows, cols int) *mat.Dense {
	r, c := m.Dims()
	src := image.NewGray16(image.Rect(0, 0, c, r))
	lo, hi := valueRange(m)
	span := hi - lo
	for y := 0; y < r; y++ {
		for x := 0; x < c; x++ {
			v := 0.0
			if span > 0 {
				v = (m.At(y, x) - lo) / span
			}
			src.SetGray16(x, y, color.Gray16{Y: uint16(v * 65535)})
		}
	}

	dst := image.NewGray16(image.Rect(0, 0, cols, rows))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := FromImage(dst)
	out.Apply(func(_, _ int, v float64) float64 { return lo + v*span }, out)
	return out
}

// KernelFromImage loads the image at path, resamples it to rows x cols and
// subtracts its mean so the kernel gives no response on a uniform input
func KernelFromImage(path string, rows, cols int) (*mat.Dense, error) {
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("kernel size %dx%d must be positive", rows, cols)
	}
	m, err := LoadGray(path)
	if err != nil {
		return nil, err
	}
	k := Resize(m, rows, cols)
	mean := floats.Sum(k.RawMatrix().Data) / float64(rows*cols)
	k.Apply(func(_, _ int, v float64) float64 { return v - mean }, k)
	return k, nil
}

// Save writes img to path, choosing PNG or JPEG from the file extension
func Save(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	default:
		return png.Encode(file, img)
	}
}

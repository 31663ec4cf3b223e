package imageio

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// createTestImage creates a grayscale test image with the specified dimensions and pattern
func createTestImage(width, height int, pattern func(x, y int) uint16) image.Image {
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.Gray16{Y: pattern(x, y)})
		}
	}
	return img
}

func TestFromImage(t *testing.T) {
	img := createTestImage(4, 3, func(x, y int) uint16 {
		if y == 0 {
			return 65535
		}
		return 0
	})

	m := FromImage(img)
	r, c := m.Dims()
	require.Equal(t, 3, r)
	require.Equal(t, 4, c)
	require.Equal(t, []float64{1, 1, 1, 1}, m.RawRowView(0))
	require.Equal(t, []float64{0, 0, 0, 0}, m.RawRowView(2))
}

func TestToImageStretches(t *testing.T) {
	m := mat.NewDense(1, 3, []float64{-2, 0, 2})
	img := ToImage(m)
	require.Equal(t, uint16(0), img.Gray16At(0, 0).Y)
	require.Equal(t, uint16(32767), img.Gray16At(1, 0).Y)
	require.Equal(t, uint16(65535), img.Gray16At(2, 0).Y)

	flat := ToImage(mat.NewDense(2, 2, []float64{3, 3, 3, 3}))
	require.Equal(t, uint16(0), flat.Gray16At(1, 1).Y)
}

func TestSaveAndLoadPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ramp.png")
	img := createTestImage(8, 6, func(x, y int) uint16 { return uint16(x * 8000) })
	require.NoError(t, Save(path, img))

	m, err := LoadGray(path)
	require.NoError(t, err)
	r, c := m.Dims()
	require.Equal(t, 6, r)
	require.Equal(t, 8, c)
	require.InDelta(t, 16000.0/65535.0, m.At(3, 2), 1e-9)
}

func TestKernelFromImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edge.png")
	img := createTestImage(32, 32, func(x, y int) uint16 {
		if y < 16 {
			return 60000
		}
		return 5000
	})
	require.NoError(t, Save(path, img))

	k, err := KernelFromImage(path, 4, 4)
	require.NoError(t, err)
	r, c := k.Dims()
	require.Equal(t, 4, r)
	require.Equal(t, 4, c)
	require.InDelta(t, 0, floats.Sum(k.RawMatrix().Data), 1e-9)

	// Bright top half becomes positive weights, dark bottom half negative
	require.Greater(t, k.At(0, 0), 0.0)
	require.Less(t, k.At(3, 3), 0.0)

	_, err = KernelFromImage(path, 0, 4)
	require.Error(t, err)
}

func TestResizeKeepsRange(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{10, 10, 10, 10})
	out := Resize(m, 3, 5)
	r, c := out.Dims()
	require.Equal(t, 3, r)
	require.Equal(t, 5, c)
	for _, v := range out.RawMatrix().Data {
		require.Equal(t, 10.0, v)
	}
}

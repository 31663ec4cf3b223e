package correlate

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"patchconv25d/internal/models"
)

// rampMatrix returns a rows x cols matrix with value r*cols+c at (r, c)
func rampMatrix(rows, cols int) *mat.Dense {
	m := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			m.Set(r, c, float64(r*cols+c))
		}
	}
	return m
}

func TestValid2DHandComputed(t *testing.T) {
	src := mat.NewDense(3, 3, []float64{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	})
	kernel := mat.NewDense(2, 2, []float64{
		1, 0,
		0, -1,
	})

	out, err := Valid2D(src, kernel)
	require.NoError(t, err)

	r, c := out.Dims()
	require.Equal(t, 2, r)
	require.Equal(t, 2, c)

	// Every window gives top-left minus bottom-right, which is -4 on a ramp
	want := []float64{-4, -4, -4, -4}
	require.Equal(t, want, out.RawMatrix().Data)
}

func TestCorrelateIsNotFlipped(t *testing.T) {
	src := mat.NewDense(1, 3, []float64{1, 2, 3})
	kernel := mat.NewDense(1, 2, []float64{1, 10})

	out, err := Valid2D(src, kernel)
	require.NoError(t, err)

	// Correlation: 1*1 + 2*10, 2*1 + 3*10
	require.Equal(t, []float64{21, 32}, out.RawMatrix().Data)
}

func TestCorrelate2DStrideAndShape(t *testing.T) {
	src := rampMatrix(9, 7)
	kernel := mat.NewDense(3, 2, []float64{1, 1, 1, 1, 1, 1})

	tests := []struct {
		padding    Padding
		stride     int
		rows, cols int
	}{
		{Valid, 1, 7, 6},
		{Valid, 2, 4, 3},
		{Valid, 3, 3, 2},
		{Same, 1, 9, 7},
		{Same, 2, 5, 4},
	}

	for _, tc := range tests {
		out, err := Correlate2D(src, kernel, Options{Padding: tc.padding, Stride: tc.stride})
		if err != nil {
			t.Fatalf("%s stride %d: %v", tc.padding, tc.stride, err)
		}
		r, c := out.Dims()
		if r != tc.rows || c != tc.cols {
			t.Errorf("%s stride %d: expected %dx%d, got %dx%d", tc.padding, tc.stride, tc.rows, tc.cols, r, c)
		}
	}
}

func TestSamePaddingMatchesValidInterior(t *testing.T) {
	src := rampMatrix(8, 8)
	kernel := mat.NewDense(3, 3, []float64{
		-1, 0, 1,
		-2, 0, 2,
		-1, 0, 1,
	})

	valid, err := Valid2D(src, kernel)
	require.NoError(t, err)
	same, err := Correlate2D(src, kernel, Options{Padding: Same})
	require.NoError(t, err)

	vr, vc := valid.Dims()
	for r := 0; r < vr; r++ {
		for c := 0; c < vc; c++ {
			require.Equal(t, valid.At(r, c), same.At(r+1, c+1))
		}
	}

	// Corner sees zero padding on two sides: 2*src(0,1) + 1*src(1,1)
	require.Equal(t, 11.0, same.At(0, 0))
}

func TestCorrelate2DErrors(t *testing.T) {
	src := rampMatrix(4, 4)

	_, err := Valid2D(src, mat.NewDense(5, 1, nil))
	if !errors.Is(err, ErrInvalidShape) {
		t.Errorf("Expected ErrInvalidShape for oversized kernel, got %v", err)
	}

	_, err = Correlate2D(src, mat.NewDense(2, 2, nil), Options{Stride: -1})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Expected ErrInvalidParameter for negative stride, got %v", err)
	}

	_, err = Valid2D(nil, mat.NewDense(2, 2, nil))
	if !errors.Is(err, ErrInvalidShape) {
		t.Errorf("Expected ErrInvalidShape for nil source, got %v", err)
	}

	_, err = ParsePadding("reflect")
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Expected ErrInvalidParameter for unknown padding, got %v", err)
	}
}

func TestValidFFT2DMatchesDirect(t *testing.T) {
	src := mat.NewDense(12, 10, nil)
	for r := 0; r < 12; r++ {
		for c := 0; c < 10; c++ {
			src.Set(r, c, math.Sin(float64(r)*0.7)+math.Cos(float64(c)*1.3))
		}
	}
	kernel := mat.NewDense(4, 4, []float64{
		1, 1, 1, 1,
		1, 1, 1, 1,
		-1, -1, -1, -1,
		-1, -1, -1, -1,
	})

	direct, err := Valid2D(src, kernel)
	require.NoError(t, err)
	viaFFT, err := ValidFFT2D(src, kernel)
	require.NoError(t, err)

	dr, dc := direct.Dims()
	fr, fc := viaFFT.Dims()
	require.Equal(t, dr, fr)
	require.Equal(t, dc, fc)
	for r := 0; r < dr; r++ {
		for c := 0; c < dc; c++ {
			require.InDelta(t, direct.At(r, c), viaFFT.At(r, c), 1e-9)
		}
	}
}

func TestCorrelate3D(t *testing.T) {
	vol := models.NewVolumeFunc(6, 5, 4, func(x, y, z int) float64 {
		return float64(x + 10*y + 100*z)
	})
	vol.Spacing = models.Spacing{X: 0.5, Y: 0.5, Z: 2}

	// Single voxel kernel at (1,1,1) shifts the volume by one voxel
	kernel := models.NewVolume(3, 3, 3)
	kernel.Set(1, 1, 1, 1)

	out, err := Correlate3D(vol, kernel, Options{Padding: Valid, Stride: 1, Workers: 3})
	require.NoError(t, err)
	require.Equal(t, models.Shape{X: 4, Y: 3, Z: 2}, out.Shape())
	for z := 0; z < out.Z; z++ {
		for y := 0; y < out.Y; y++ {
			for x := 0; x < out.X; x++ {
				require.Equal(t, vol.At(x+1, y+1, z+1), out.At(x, y, z))
			}
		}
	}

	same, err := Correlate3D(vol, kernel, Options{Padding: Same, Stride: 2})
	require.NoError(t, err)
	require.Equal(t, models.Shape{X: 3, Y: 3, Z: 2}, same.Shape())
	require.Equal(t, models.Spacing{X: 1, Y: 1, Z: 4}, same.Spacing)
	require.Equal(t, vol.At(2, 2, 2), same.At(1, 1, 1))
}

func TestCorrelate2DWorkerIndependence(t *testing.T) {
	src := mat.NewDense(23, 17, nil)
	src.Apply(func(i, j int, _ float64) float64 { return math.Cos(float64(i*j)) + float64(i) }, src)
	kernel := mat.NewDense(3, 4, []float64{1, -2, 0, 3, 0.5, 1, -1, 2, 0, 0, 1, -3})

	for _, padding := range []Padding{Valid, Same} {
		one, err := Correlate2D(src, kernel, Options{Padding: padding, Stride: 2, Workers: 1})
		require.NoError(t, err)
		for _, workers := range []int{0, 3, 7, 50} {
			many, err := Correlate2D(src, kernel, Options{Padding: padding, Stride: 2, Workers: workers})
			require.NoError(t, err)
			require.Equal(t, one.RawMatrix().Data, many.RawMatrix().Data, "%s padding, %d workers", padding, workers)
		}
	}
}

func TestCorrelate3DWorkerIndependence(t *testing.T) {
	vol := models.NewVolumeFunc(9, 8, 7, func(x, y, z int) float64 {
		return math.Sin(float64(x*y)) + float64(z)
	})
	kernel := models.NewVolumeFunc(3, 2, 2, func(x, y, z int) float64 {
		return float64(x - y + z)
	})

	one, err := Correlate3D(vol, kernel, Options{Workers: 1})
	require.NoError(t, err)
	many, err := Correlate3D(vol, kernel, Options{Workers: 5})
	require.NoError(t, err)
	require.Equal(t, one.Data, many.Data)
}

func TestCorrelate3DErrors(t *testing.T) {
	vol := models.NewVolume(4, 4, 4)

	_, err := Correlate3D(vol, models.NewVolume(5, 1, 1), Options{})
	if !errors.Is(err, ErrInvalidShape) {
		t.Errorf("Expected ErrInvalidShape, got %v", err)
	}

	broken := &models.Volume{X: 2, Y: 2, Z: 2, Data: make([]float64, 3)}
	_, err = Correlate3D(broken, models.NewVolume(1, 1, 1), Options{})
	if !errors.Is(err, ErrInvalidShape) {
		t.Errorf("Expected ErrInvalidShape for short data, got %v", err)
	}
}

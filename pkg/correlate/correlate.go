// Package correlate implements dense 2D and 3D cross-correlation of a fixed
// kernel over an array, with valid or same padding and a configurable stride.
// The kernel is never flipped.
package correlate

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInvalidShape is returned when array and kernel dimensions are incompatible
	ErrInvalidShape = errors.New("invalid shape")

	// ErrInvalidParameter is returned for non-positive strides or sizes
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Padding selects how the array border is treated
type Padding int

const (
	// Valid produces output only where the kernel fits entirely inside the input
	Valid Padding = iota

	// Same zero-pads the input so that a stride-1 output has the input shape.
	// The kernel anchor (kh/2, kw/2) is aligned with each output position.
	Same
)

func (p Padding) String() string {
	switch p {
	case Valid:
		return "valid"
	case Same:
		return "same"
	default:
		return fmt.Sprintf("Padding(%d)", int(p))
	}
}

// ParsePadding converts "valid" or "same" to a Padding
func ParsePadding(s string) (Padding, error) {
	switch s {
	case "valid", "":
		return Valid, nil
	case "same":
		return Same, nil
	}
	return Valid, fmt.Errorf("%w: unknown padding %q", ErrInvalidParameter, s)
}

// Options controls a correlation run
type Options struct {
	Padding Padding

	// Stride is the step between output samples; 0 means 1
	Stride int

	// Workers bounds the goroutines; 0 means one per CPU
	Workers int
}

func (o Options) stride() int {
	if o.Stride == 0 {
		return 1
	}
	return o.Stride
}

// OutputSize returns the number of output samples along one axis of length n
// for a kernel of length k
func OutputSize(n, k, stride int, padding Padding) int {
	if padding == Same {
		return (n + stride - 1) / stride
	}
	if k > n {
		return 0
	}
	return (n-k)/stride + 1
}

func checkOptions(opts Options) error {
	if opts.Stride < 0 {
		return fmt.Errorf("%w: stride %d must be positive", ErrInvalidParameter, opts.Stride)
	}
	if opts.Padding != Valid && opts.Padding != Same {
		return fmt.Errorf("%w: unknown padding %d", ErrInvalidParameter, int(opts.Padding))
	}
	return nil
}

func checkMatrix(name string, m *mat.Dense) (int, int, error) {
	if m == nil || m.IsEmpty() {
		return 0, 0, fmt.Errorf("%w: %s is empty", ErrInvalidShape, name)
	}
	r, c := m.Dims()
	return r, c, nil
}

// Correlate2D cross-correlates kernel over src. Output rows are split into
// contiguous bands computed in parallel.
func Correlate2D(src, kernel *mat.Dense, opts Options) (*mat.Dense, error) {
	if err := checkOptions(opts); err != nil {
		return nil, err
	}
	rows, cols, err := checkMatrix("source", src)
	if err != nil {
		return nil, err
	}
	kh, kw, err := checkMatrix("kernel", kernel)
	if err != nil {
		return nil, err
	}
	if opts.Padding == Valid && (kh > rows || kw > cols) {
		return nil, fmt.Errorf("%w: kernel %dx%d larger than source %dx%d", ErrInvalidShape, kh, kw, rows, cols)
	}

	stride := opts.stride()
	outRows := OutputSize(rows, kh, stride, opts.Padding)
	outCols := OutputSize(cols, kw, stride, opts.Padding)

	padTop, padLeft := 0, 0
	if opts.Padding == Same {
		padTop, padLeft = kh/2, kw/2
	}

	s := src.RawMatrix()
	k := kernel.RawMatrix()
	out := mat.NewDense(outRows, outCols, nil)
	o := out.RawMatrix()

	band := func(lo, hi int) {
		for r := lo; r < hi; r++ {
			for c := 0; c < outCols; c++ {
				r0 := r*stride - padTop
				c0 := c*stride - padLeft
				var sum float64
				for i := 0; i < kh; i++ {
					y := r0 + i
					if y < 0 || y >= rows {
						continue
					}
					srow := s.Data[y*s.Stride : y*s.Stride+cols]
					krow := k.Data[i*k.Stride : i*k.Stride+kw]
					for j, w := range krow {
						x := c0 + j
						if x < 0 || x >= cols {
							continue
						}
						sum += srow[x] * w
					}
				}
				o.Data[r*o.Stride+c] = sum
			}
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, outRows)
	if workers <= 1 {
		band(0, outRows)
		return out, nil
	}

	rowsPerWorker := (outRows + workers - 1) / workers
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		lo := w * rowsPerWorker
		hi := min(lo+rowsPerWorker, outRows)
		if lo >= hi {
			break
		}
		g.Go(func() error {
			band(lo, hi)
			return nil
		})
	}
	return out, g.Wait()
}

// Valid2D is Correlate2D with valid padding and stride 1 on the calling goroutine
func Valid2D(src, kernel *mat.Dense) (*mat.Dense, error) {
	return Correlate2D(src, kernel, Options{Padding: Valid, Stride: 1, Workers: 1})
}

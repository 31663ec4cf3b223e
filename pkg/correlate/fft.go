package correlate

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
)

// ValidFFT2D computes the same result as Valid2D in the frequency domain.
//
// The circular cross-correlation over the source size equals the linear one
// on every position where the kernel does not wrap, which is exactly the
// valid region, so no extra padding is needed.
func ValidFFT2D(src, kernel *mat.Dense) (*mat.Dense, error) {
	rows, cols, err := checkMatrix("source", src)
	if err != nil {
		return nil, err
	}
	kh, kw, err := checkMatrix("kernel", kernel)
	if err != nil {
		return nil, err
	}
	if kh > rows || kw > cols {
		return nil, fmt.Errorf("%w: kernel %dx%d larger than source %dx%d", ErrInvalidShape, kh, kw, rows, cols)
	}

	a := make([]complex128, rows*cols)
	k := make([]complex128, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			a[r*cols+c] = complex(src.At(r, c), 0)
		}
	}
	for r := 0; r < kh; r++ {
		for c := 0; c < kw; c++ {
			k[r*cols+c] = complex(kernel.At(r, c), 0)
		}
	}

	t := newFFT2(rows, cols)
	t.forward(a)
	t.forward(k)
	for i := range a {
		kr, ki := real(k[i]), imag(k[i])
		a[i] *= complex(kr, -ki)
	}
	t.inverse(a)

	n := float64(rows * cols)
	outRows, outCols := rows-kh+1, cols-kw+1
	out := mat.NewDense(outRows, outCols, nil)
	for r := 0; r < outRows; r++ {
		for c := 0; c < outCols; c++ {
			out.Set(r, c, real(a[r*cols+c])/n)
		}
	}
	return out, nil
}

// fft2 runs separable row/column complex FFTs over a row-major buffer
type fft2 struct {
	rows, cols int
	rowFFT     *fourier.CmplxFFT
	colFFT     *fourier.CmplxFFT
	rowIn      []complex128
	rowOut     []complex128
	colIn      []complex128
	colOut     []complex128
}

func newFFT2(rows, cols int) *fft2 {
	return &fft2{
		rows:   rows,
		cols:   cols,
		rowFFT: fourier.NewCmplxFFT(cols),
		colFFT: fourier.NewCmplxFFT(rows),
		rowIn:  make([]complex128, cols),
		rowOut: make([]complex128, cols),
		colIn:  make([]complex128, rows),
		colOut: make([]complex128, rows),
	}
}

func (t *fft2) forward(data []complex128) {
	t.apply(data, false)
}

// inverse is unnormalized, the caller divides by rows*cols
func (t *fft2) inverse(data []complex128) {
	t.apply(data, true)
}

func (t *fft2) apply(data []complex128, inverse bool) {
	for r := 0; r < t.rows; r++ {
		copy(t.rowIn, data[r*t.cols:(r+1)*t.cols])
		if inverse {
			t.rowFFT.Sequence(t.rowOut, t.rowIn)
		} else {
			t.rowFFT.Coefficients(t.rowOut, t.rowIn)
		}
		copy(data[r*t.cols:], t.rowOut)
	}
	for c := 0; c < t.cols; c++ {
		for r := 0; r < t.rows; r++ {
			t.colIn[r] = data[r*t.cols+c]
		}
		if inverse {
			t.colFFT.Sequence(t.colOut, t.colIn)
		} else {
			t.colFFT.Coefficients(t.colOut, t.colIn)
		}
		for r := 0; r < t.rows; r++ {
			data[r*t.cols+c] = t.colOut[r]
		}
	}
}

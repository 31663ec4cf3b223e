// Package conv25d implements the 2.5D patch convolution: for every sampled
// voxel of a volume, the three orthogonal sections of the surrounding cubic
// patch are stacked as channels and filtered with a 2D kernel, and the summed
// channel responses give one scalar per location.
package conv25d

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"patchconv25d/internal/models"
	"patchconv25d/pkg/correlate"
)

// Method selects how each section response is evaluated. Both methods give
// the same values; MethodFullMap exists to check that equivalence and to
// mirror the way a layer-based framework would compute it.
type Method int

const (
	// MethodCentered applies the kernel once per section, centered on the
	// section center, reading straight from the volume
	MethodCentered Method = iota

	// MethodFullMap copies each section, computes its full valid correlation
	// map and keeps the element aligned with the section center
	MethodFullMap
)

func (m Method) String() string {
	switch m {
	case MethodCentered:
		return "centered"
	case MethodFullMap:
		return "fullmap"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod converts "centered" or "fullmap" to a Method
func ParseMethod(s string) (Method, error) {
	switch s {
	case "centered", "":
		return MethodCentered, nil
	case "fullmap":
		return MethodFullMap, nil
	}
	return MethodCentered, fmt.Errorf("%w: unknown method %q", ErrInvalidParameter, s)
}

// Options controls a 2.5D convolution run
type Options struct {
	// PatchSize is the side length P of the cubic neighborhood
	PatchSize int

	// Stride is the step between sampled centers along each axis
	Stride int

	// Bias is added once per output location after channel summation
	Bias float64

	// Workers is the number of goroutines; 0 means one per CPU
	Workers int

	Method Method
}

// DefaultOptions returns options sampling every interior voxel with no bias
func DefaultOptions(patchSize int) Options {
	return Options{
		PatchSize: patchSize,
		Stride:    1,
		Method:    MethodCentered,
	}
}

// Result is the output of a run
type Result struct {
	// Response holds one value per sampled center. Its spacing is the input
	// spacing scaled by the stride.
	Response *models.Volume

	// Offset is the input voxel index of response index 0 along every axis;
	// response index i corresponds to input voxel Offset + i*Stride
	Offset int

	// Locations is the number of sampled centers
	Locations int

	// Elapsed is the wall-clock duration of the run
	Elapsed time.Duration
}

// OutputShape returns the response shape for an input shape, patch size and
// stride: floor((D-P)/S)+1 per axis
func OutputShape(in models.Shape, patchSize, stride int) models.Shape {
	return models.Shape{
		X: correlate.OutputSize(in.X, patchSize, stride, correlate.Valid),
		Y: correlate.OutputSize(in.Y, patchSize, stride, correlate.Valid),
		Z: correlate.OutputSize(in.Z, patchSize, stride, correlate.Valid),
	}
}

// Convolver applies one kernel with fixed options to any number of volumes.
// It holds no mutable state and is safe for concurrent use.
type Convolver struct {
	kernel *Kernel
	opts   Options
}

// New validates the kernel and options and returns a Convolver
func New(kernel *Kernel, opts Options) (*Convolver, error) {
	if opts.PatchSize < 1 {
		return nil, fmt.Errorf("%w: patch size %d must be positive", ErrInvalidParameter, opts.PatchSize)
	}
	if opts.Stride < 1 {
		return nil, fmt.Errorf("%w: stride %d must be positive", ErrInvalidParameter, opts.Stride)
	}
	if opts.Workers < 0 {
		return nil, fmt.Errorf("%w: workers %d must not be negative", ErrInvalidParameter, opts.Workers)
	}
	if opts.Method != MethodCentered && opts.Method != MethodFullMap {
		return nil, fmt.Errorf("%w: unknown method %d", ErrInvalidParameter, int(opts.Method))
	}
	if err := kernel.validate(); err != nil {
		return nil, err
	}
	if kh, kw := kernel.Dims(); kh > opts.PatchSize || kw > opts.PatchSize {
		return nil, fmt.Errorf("%w: kernel %dx%d exceeds patch size %d", ErrInvalidShape, kh, kw, opts.PatchSize)
	}
	return &Convolver{kernel: kernel, opts: opts}, nil
}

// Compute runs the 2.5D convolution of kernel over vol with the given options
func Compute(ctx context.Context, vol *models.Volume, kernel *Kernel, opts Options) (*Result, error) {
	start := time.Now()
	c, err := New(kernel, opts)
	if err != nil {
		return nil, err
	}
	res, err := c.Compute(ctx, vol)
	if err != nil {
		return nil, err
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

// Options returns the options the convolver was built with
func (c *Convolver) Options() Options {
	return c.opts
}

// Compute runs the convolution over vol. The volume is only read. Either the
// whole response is returned or an error and no response; a cancelled context
// aborts the run with ctx.Err().
func (c *Convolver) Compute(ctx context.Context, vol *models.Volume) (*Result, error) {
	start := time.Now()
	p := c.opts.PatchSize
	if err := vol.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}
	if p > vol.X || p > vol.Y || p > vol.Z {
		return nil, fmt.Errorf("%w: patch size %d exceeds volume %s", ErrInvalidShape, p, vol.Shape())
	}

	shape := OutputShape(vol.Shape(), p, c.opts.Stride)
	out := models.NewVolume(shape.X, shape.Y, shape.Z)
	out.Spacing = vol.Spacing.Scale(float64(c.opts.Stride))

	total := shape.Len()
	workers := c.opts.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	if workers > total {
		workers = total
	}
	perWorker := (total + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * perWorker
		hi := min(lo+perWorker, total)
		if lo >= hi {
			break
		}
		g.Go(func() error {
			return c.computeRange(gctx, vol, out, lo, hi)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Result{
		Response:  out,
		Offset:    CenterIndex(p),
		Locations: total,
		Elapsed:   time.Since(start),
	}, nil
}

// computeRange fills the flat output indices [lo, hi)
func (c *Convolver) computeRange(ctx context.Context, vol, out *models.Volume, lo, hi int) error {
	s := c.opts.Stride
	for n := lo; n < hi; n++ {
		i := n % out.X
		if i == 0 || n == lo {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		j := (n / out.X) % out.Y
		k := n / (out.X * out.Y)
		v, err := c.respond(vol, i*s, j*s, k*s)
		if err != nil {
			return err
		}
		out.Data[n] = v
	}
	return nil
}

// respond returns the response of the patch whose origin is (ox, oy, oz)
func (c *Convolver) respond(vol *models.Volume, ox, oy, oz int) (float64, error) {
	p := c.opts.PatchSize
	kh, kw := c.kernel.Dims()
	r0 := CenterIndex(p) - kh/2
	c0 := CenterIndex(p) - kw/2

	sum := c.opts.Bias
	for ch := Channel(0); ch < NumChannels; ch++ {
		l := layout(vol, ch, ox, oy, oz, p)
		w := c.kernel.Plane(ch)
		switch c.opts.Method {
		case MethodFullMap:
			m, err := correlate.Valid2D(copySection(vol, l, p), w)
			if err != nil {
				return 0, err
			}
			sum += m.At(r0, c0)
		default:
			sum += dot(vol.Data, l, r0, c0, w)
		}
	}
	return sum, nil
}

// SectionResponse returns the per-channel responses at one center, before bias.
// It is the building block of Compute exposed for inspection.
func SectionResponse(sections Sections, kernel *Kernel) ([NumChannels]float64, error) {
	var out [NumChannels]float64
	if err := kernel.validate(); err != nil {
		return out, err
	}
	for ch := Channel(0); ch < NumChannels; ch++ {
		s := sections[ch]
		if s == nil {
			return out, fmt.Errorf("%w: missing %s section", ErrInvalidShape, ch)
		}
		p, pc := s.Dims()
		if p != pc {
			return out, fmt.Errorf("%w: %s section is %dx%d, not square", ErrInvalidShape, ch, p, pc)
		}
		w := kernel.Plane(ch)
		kh, kw := w.Dims()
		if kh > p || kw > p {
			return out, fmt.Errorf("%w: kernel %dx%d exceeds section %d", ErrInvalidShape, kh, kw, p)
		}
		r0 := CenterIndex(p) - kh/2
		c0 := CenterIndex(p) - kw/2
		window := s.Slice(r0, r0+kh, c0, c0+kw).(*mat.Dense)
		var sum float64
		for i := 0; i < kh; i++ {
			for j := 0; j < kw; j++ {
				sum += window.At(i, j) * w.At(i, j)
			}
		}
		out[ch] = sum
	}
	return out, nil
}

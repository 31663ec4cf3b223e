package conv25d

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Kernel holds the 2D weights applied to each cardinal section.
//
// A shared kernel has a single plane that is applied identically to all three
// sections. A per-channel kernel has one plane per channel, in channel order
// (axial, sagittal, coronal), like the input weights of a three-channel 2D
// convolution with one output channel.
type Kernel struct {
	planes []*mat.Dense
}

// NewSharedKernel returns a kernel that applies w to every section
func NewSharedKernel(w *mat.Dense) *Kernel {
	return &Kernel{planes: []*mat.Dense{w}}
}

// NewPerChannelKernel returns a kernel with independent weights per section
func NewPerChannelKernel(axial, sagittal, coronal *mat.Dense) *Kernel {
	return &Kernel{planes: []*mat.Dense{axial, sagittal, coronal}}
}

// Shared reports whether one plane is applied to all sections
func (k *Kernel) Shared() bool {
	return len(k.planes) == 1
}

// Plane returns the weights applied to the given channel
func (k *Kernel) Plane(ch Channel) *mat.Dense {
	if k.Shared() {
		return k.planes[0]
	}
	return k.planes[ch]
}

// Dims returns the kernel height and width
func (k *Kernel) Dims() (int, int) {
	return k.planes[0].Dims()
}

func (k *Kernel) validate() error {
	if k == nil || (len(k.planes) != 1 && len(k.planes) != NumChannels) {
		return fmt.Errorf("%w: kernel needs 1 or %d planes", ErrInvalidShape, NumChannels)
	}
	var kh, kw int
	for i, p := range k.planes {
		if p == nil || p.IsEmpty() {
			return fmt.Errorf("%w: kernel plane %d is empty", ErrInvalidShape, i)
		}
		r, c := p.Dims()
		if i == 0 {
			kh, kw = r, c
			continue
		}
		if r != kh || c != kw {
			return fmt.Errorf("%w: kernel plane %d is %dx%d, plane 0 is %dx%d", ErrInvalidShape, i, r, c, kh, kw)
		}
	}
	return nil
}

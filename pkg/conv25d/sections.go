package conv25d

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"patchconv25d/internal/models"
)

// Channel identifies one cardinal section of a patch
type Channel int

// Channel order of the stack. Per-channel kernel weights follow this order.
const (
	// Axial is the constant-z plane; rows index x, columns index y
	Axial Channel = iota

	// Sagittal is the constant-x plane; rows index y, columns index z
	Sagittal

	// Coronal is the constant-y plane; rows index x, columns index z
	Coronal
)

// NumChannels is the depth of the channel stack
const NumChannels = 3

var channelNames = [NumChannels]string{"axial", "sagittal", "coronal"}

func (c Channel) String() string {
	if c < 0 || int(c) >= NumChannels {
		return fmt.Sprintf("Channel(%d)", int(c))
	}
	return channelNames[c]
}

// CenterIndex is the center position inside a patch of side p. For even p
// this is the upper-middle index p/2.
func CenterIndex(p int) int {
	return p / 2
}

// Sections is the channel stack of one patch, indexed by Channel
type Sections [NumChannels]*mat.Dense

// planeLayout describes how a section maps into the volume's flat data:
// section (r, c) is at base + r*rowStep + c*colStep
type planeLayout struct {
	base, rowStep, colStep int
}

// layout returns the data layout of channel ch for the patch whose origin is
// (ox, oy, oz)
func layout(vol *models.Volume, ch Channel, ox, oy, oz, p int) planeLayout {
	c := CenterIndex(p)
	sx, sy, sz := 1, vol.X, vol.X*vol.Y
	switch ch {
	case Axial:
		return planeLayout{base: vol.Index(ox, oy, oz+c), rowStep: sx, colStep: sy}
	case Sagittal:
		return planeLayout{base: vol.Index(ox+c, oy, oz), rowStep: sy, colStep: sz}
	default:
		return planeLayout{base: vol.Index(ox, oy+c, oz), rowStep: sx, colStep: sz}
	}
}

// ExtractSections copies the three cardinal sections of the p-sided patch
// centered on voxel (cx, cy, cz). The patch must lie inside the volume.
func ExtractSections(vol *models.Volume, cx, cy, cz, p int) (Sections, error) {
	var s Sections
	if err := vol.Validate(); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}
	if p < 1 {
		return s, fmt.Errorf("%w: patch size %d must be positive", ErrInvalidParameter, p)
	}
	c := CenterIndex(p)
	ox, oy, oz := cx-c, cy-c, cz-c
	if ox < 0 || oy < 0 || oz < 0 || ox+p > vol.X || oy+p > vol.Y || oz+p > vol.Z {
		return s, fmt.Errorf("%w: patch of side %d at (%d,%d,%d) leaves volume %s", ErrInvalidShape, p, cx, cy, cz, vol.Shape())
	}
	for ch := Channel(0); ch < NumChannels; ch++ {
		s[ch] = copySection(vol, layout(vol, ch, ox, oy, oz, p), p)
	}
	return s, nil
}

func copySection(vol *models.Volume, l planeLayout, p int) *mat.Dense {
	data := make([]float64, p*p)
	for r := 0; r < p; r++ {
		for c := 0; c < p; c++ {
			data[r*p+c] = vol.Data[l.base+r*l.rowStep+c*l.colStep]
		}
	}
	return mat.NewDense(p, p, data)
}

// dot is the kernel response of one section with the kernel's top-left
// corner at section position (r0, c0), read straight from the volume
func dot(data []float64, l planeLayout, r0, c0 int, k *mat.Dense) float64 {
	raw := k.RawMatrix()
	var sum float64
	for i := 0; i < raw.Rows; i++ {
		off := l.base + (r0+i)*l.rowStep + c0*l.colStep
		krow := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		for _, w := range krow {
			sum += data[off] * w
			off += l.colStep
		}
	}
	return sum
}

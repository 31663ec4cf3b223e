package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/floats"

	"patchconv25d/internal/models"
)

// Viewer extracts 2D slices from a volume for display. Intensities are
// windowed to the volume's finite value range, and display slices are
// resampled so that pixels are physically square.
type Viewer struct {
	// volume holds the data being displayed
	volume *models.Volume

	// lo and hi bound the intensity window
	lo, hi float64
}

// NewViewer creates a viewer over vol
func NewViewer(vol *models.Volume) *Viewer {
	v := &Viewer{volume: vol}
	vals := make([]float64, 0, len(vol.Data))
	for _, x := range vol.Data {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			vals = append(vals, x)
		}
	}
	if len(vals) > 0 {
		v.lo = floats.Min(vals)
		v.hi = floats.Max(vals)
	}
	return v
}

// Window returns the intensity range mapped to black and white
func (v *Viewer) Window() (float64, float64) {
	return v.lo, v.hi
}

// gray maps a voxel value into the 16-bit window; NaN is black
func (v *Viewer) gray(val float64) color.Gray16 {
	if v.hi <= v.lo || math.IsNaN(val) {
		return color.Gray16{}
	}
	t := (val - v.lo) / (v.hi - v.lo)
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, t*65535)))}
}

// sliceAxes returns the in-plane sizes and spacings for a slice normal to axis
func (v *Viewer) sliceAxes(axis string) (w, h, depth int, sw, sh float64, err error) {
	vol := v.volume
	switch axis {
	case "x", "X":
		return vol.Y, vol.Z, vol.X, vol.Spacing.Y, vol.Spacing.Z, nil
	case "y", "Y":
		return vol.X, vol.Z, vol.Y, vol.Spacing.X, vol.Spacing.Z, nil
	case "z", "Z":
		return vol.X, vol.Y, vol.Z, vol.Spacing.X, vol.Spacing.Y, nil
	}
	return 0, 0, 0, 0, 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis.
// A z slice is the axial plane (x across, y down), a y slice the coronal
// plane (x across, z down) and an x slice the sagittal plane (y across, z down).
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	w, h, depth, _, _, err := v.sliceAxes(axis)
	if err != nil {
		return nil, err
	}
	if position >= depth {
		return nil, fmt.Errorf("position %d exceeds %s extent %d", position, axis, depth)
	}

	vol := v.volume
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			var val float64
			switch axis {
			case "x", "X":
				val = vol.At(position, c, r)
			case "y", "Y":
				val = vol.At(c, position, r)
			default:
				val = vol.At(c, r, position)
			}
			img.SetGray16(c, r, v.gray(val))
		}
	}
	return img, nil
}

// AspectSize returns the display size of a slice normal to axis, stretching
// the coarser in-plane axis so that one pixel covers the same distance in
// both directions
func (v *Viewer) AspectSize(axis string) (int, int, error) {
	w, h, _, sw, sh, err := v.sliceAxes(axis)
	if err != nil {
		return 0, 0, err
	}
	unit := math.Min(sw, sh)
	if unit <= 0 {
		return w, h, nil
	}
	dw := int(math.Round(float64(w) * sw / unit))
	dh := int(math.Round(float64(h) * sh / unit))
	return max(dw, 1), max(dh, 1), nil
}

// ExtractDisplaySlice extracts a slice and resamples it to its aspect size
func (v *Viewer) ExtractDisplaySlice(axis string, position int) (*image.Gray16, error) {
	img, err := v.ExtractSlice(axis, position)
	if err != nil {
		return nil, err
	}
	dw, dh, err := v.AspectSize(axis)
	if err != nil {
		return nil, err
	}
	if dw == img.Bounds().Dx() && dh == img.Bounds().Dy() {
		return img, nil
	}
	dst := image.NewGray16(image.Rect(0, 0, dw, dh))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst, nil
}

// ExtractRegion extracts a 3D subregion from the volume
func (v *Viewer) ExtractRegion(startX, startY, startZ, sizeX, sizeY, sizeZ int) (*models.Volume, error) {
	// Validate parameters
	if startX < 0 || startY < 0 || startZ < 0 {
		return nil, fmt.Errorf("start coordinates must be non-negative")
	}

	if sizeX <= 0 || sizeY <= 0 || sizeZ <= 0 {
		return nil, fmt.Errorf("size dimensions must be positive")
	}

	vol := v.volume
	if startX+sizeX > vol.X || startY+sizeY > vol.Y || startZ+sizeZ > vol.Z {
		return nil, fmt.Errorf("region extends beyond volume boundaries")
	}

	region := models.NewVolume(sizeX, sizeY, sizeZ)
	region.Spacing = vol.Spacing
	for z := 0; z < sizeZ; z++ {
		for y := 0; y < sizeY; y++ {
			src := vol.Index(startX, startY+y, startZ+z)
			copy(region.Data[region.Index(0, y, z):region.Index(0, y, z)+sizeX], vol.Data[src:src+sizeX])
		}
	}
	return region, nil
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves every display slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	_, _, depth, _, _, err := v.sliceAxes(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < depth; pos++ {
		img, err := v.ExtractDisplaySlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}

// SaveMidSlices saves the axial, coronal and sagittal planes through the
// middle of the volume and returns the written file names
func (v *Viewer) SaveMidSlices(outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}
	vol := v.volume
	planes := []struct {
		name, axis string
		pos        int
	}{
		{"axial", "z", vol.Z / 2},
		{"coronal", "y", vol.Y / 2},
		{"sagittal", "x", vol.X / 2},
	}

	var files []string
	for _, p := range planes {
		img, err := v.ExtractDisplaySlice(p.axis, p.pos)
		if err != nil {
			return files, err
		}
		filename := filepath.Join(outputDir, p.name+".jpg")
		if err := v.SaveSlice(img, filename); err != nil {
			return files, err
		}
		files = append(files, filename)
	}
	return files, nil
}

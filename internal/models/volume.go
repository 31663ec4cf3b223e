package models

import (
	"fmt"
)

// Spacing is the physical size of a voxel along each axis in mm
type Spacing struct {
	X, Y, Z float64
}

// Isotropic returns a spacing of 1mm along every axis
func Isotropic() Spacing {
	return Spacing{X: 1, Y: 1, Z: 1}
}

// Scale returns the spacing multiplied by f along every axis
func (s Spacing) Scale(f float64) Spacing {
	return Spacing{X: s.X * f, Y: s.Y * f, Z: s.Z * f}
}

// Shape holds the number of voxels along each axis
type Shape struct {
	X, Y, Z int
}

// Len returns the number of voxels in the shape
func (s Shape) Len() int {
	return s.X * s.Y * s.Z
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d,%d,%d)", s.X, s.Y, s.Z)
}

// Volume represents a 3D scalar volume
type Volume struct {
	// Data is the 3D volume data as a 1D array with x varying fastest,
	// which is also the on-disk voxel order of NIfTI images
	Data []float64

	// X, Y, Z are the dimensions of the volume in voxels
	X, Y, Z int

	// Spacing is the physical size of each voxel in mm
	Spacing Spacing
}

// NewVolume allocates a zero-filled volume with isotropic spacing
func NewVolume(x, y, z int) *Volume {
	return &Volume{
		Data:    make([]float64, x*y*z),
		X:       x,
		Y:       y,
		Z:       z,
		Spacing: Isotropic(),
	}
}

// NewVolumeFunc allocates a volume and fills every voxel with fn(x, y, z)
func NewVolumeFunc(x, y, z int, fn func(x, y, z int) float64) *Volume {
	v := NewVolume(x, y, z)
	for k := 0; k < z; k++ {
		for j := 0; j < y; j++ {
			for i := 0; i < x; i++ {
				v.Data[v.Index(i, j, k)] = fn(i, j, k)
			}
		}
	}
	return v
}

// Shape returns the voxel dimensions of the volume
func (v *Volume) Shape() Shape {
	return Shape{X: v.X, Y: v.Y, Z: v.Z}
}

// Index returns the position of voxel (x, y, z) in Data
func (v *Volume) Index(x, y, z int) int {
	return (z*v.Y+y)*v.X + x
}

// At returns the value of voxel (x, y, z)
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set stores val at voxel (x, y, z)
func (v *Volume) Set(x, y, z int, val float64) {
	v.Data[v.Index(x, y, z)] = val
}

// Validate checks that the dimensions are positive and match the data length
func (v *Volume) Validate() error {
	if v == nil {
		return fmt.Errorf("volume is nil")
	}
	if v.X < 1 || v.Y < 1 || v.Z < 1 {
		return fmt.Errorf("volume dimensions %s must be positive", v.Shape())
	}
	if len(v.Data) != v.X*v.Y*v.Z {
		return fmt.Errorf("volume data has %d samples, shape %s needs %d", len(v.Data), v.Shape(), v.X*v.Y*v.Z)
	}
	return nil
}

// Clone returns a deep copy of the volume
func (v *Volume) Clone() *Volume {
	c := *v
	c.Data = append([]float64(nil), v.Data...)
	return &c
}

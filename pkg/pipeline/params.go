package pipeline

import (
	"fmt"

	"patchconv25d/internal/models"
	"patchconv25d/pkg/config"
	"patchconv25d/pkg/conv25d"
)

// Synthetic patterns for generated volumes
const (
	PatternConstant = "constant"
	PatternSphere   = "sphere"
	PatternGradient = "gradient"
)

// Params holds the parameters of one run
type Params struct {
	// VolumePath is a NIfTI volume; when empty a synthetic volume is generated
	VolumePath string

	// SyntheticPattern, SyntheticShape and SyntheticSpacing describe the
	// generated volume
	SyntheticPattern string
	SyntheticShape   models.Shape
	SyntheticSpacing models.Spacing

	// ImagePath is an optional photograph run through dense 2D correlation
	ImagePath string

	// KernelPreset, KernelSize, KernelRows and KernelImage select the kernel.
	// Rows win over the image, the image over the preset.
	KernelPreset string
	KernelSize   int
	KernelRows   [][]float64
	KernelImage  string

	// SagittalRows and CoronalRows give the remaining planes in per-channel mode
	SagittalRows [][]float64
	CoronalRows  [][]float64

	// Convolution options
	PatchSize  int
	Stride     int
	Bias       float64
	Workers    int
	Method     conv25d.Method
	PerChannel bool

	// Compare3D also runs a dense 3D correlation with the extruded kernel
	Compare3D bool

	// FFT2D correlates the image through the FFT, giving the valid region
	// instead of a same-size map
	FFT2D bool

	// OutputFile is where the response volume is written; empty skips saving
	OutputFile string

	// SaveSlices writes mid-plane images of input and responses into SlicesDir
	SaveSlices bool
	SlicesDir  string
}

// ParamsFromConfig converts a loaded configuration into run parameters
func ParamsFromConfig(cfg *config.Config) (*Params, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	method, err := conv25d.ParseMethod(cfg.Processing.Method)
	if err != nil {
		return nil, err
	}

	syn := cfg.Input.Synthetic
	return &Params{
		VolumePath:       cfg.Input.Volume,
		SyntheticPattern: syn.Pattern,
		SyntheticShape:   models.Shape{X: syn.Size[0], Y: syn.Size[1], Z: syn.Size[2]},
		SyntheticSpacing: models.Spacing{X: syn.Spacing[0], Y: syn.Spacing[1], Z: syn.Spacing[2]},
		ImagePath:        cfg.Input.Image,
		KernelPreset:     cfg.Kernel.Preset,
		KernelSize:       cfg.Kernel.Size,
		KernelRows:       cfg.Kernel.Rows,
		KernelImage:      cfg.Kernel.Image,
		SagittalRows:     cfg.Kernel.SagittalRows,
		CoronalRows:      cfg.Kernel.CoronalRows,
		PatchSize:        cfg.Processing.PatchSize,
		Stride:           cfg.Processing.Stride,
		Bias:             cfg.Processing.Bias,
		Workers:          cfg.Processing.Workers,
		Method:           method,
		PerChannel:       cfg.Processing.PerChannel,
		Compare3D:        cfg.Processing.Compare3D,
		FFT2D:            cfg.Processing.FFT2D,
		OutputFile:       cfg.Output.Response,
		SaveSlices:       cfg.Output.SaveSlices,
		SlicesDir:        cfg.Output.SlicesDir,
	}, nil
}

// SyntheticVolume generates a test volume. A sphere is 1 inside a radius of a
// third of the smallest extent and 0 outside; a gradient rises from 0 to 1
// along x.
func SyntheticVolume(pattern string, shape models.Shape, spacing models.Spacing) (*models.Volume, error) {
	if shape.X < 1 || shape.Y < 1 || shape.Z < 1 {
		return nil, fmt.Errorf("synthetic shape %s must be positive", shape)
	}
	var fn func(x, y, z int) float64
	switch pattern {
	case PatternConstant:
		fn = func(int, int, int) float64 { return 1 }
	case PatternSphere, "":
		radius := float64(min(shape.X, shape.Y, shape.Z)) / 3
		cx, cy, cz := float64(shape.X)/2, float64(shape.Y)/2, float64(shape.Z)/2
		fn = func(x, y, z int) float64 {
			dx, dy, dz := float64(x)-cx, float64(y)-cy, float64(z)-cz
			if dx*dx+dy*dy+dz*dz < radius*radius {
				return 1
			}
			return 0
		}
	case PatternGradient:
		fn = func(x, _, _ int) float64 {
			if shape.X == 1 {
				return 0
			}
			return float64(x) / float64(shape.X-1)
		}
	default:
		return nil, fmt.Errorf("unknown synthetic pattern %q", pattern)
	}

	vol := models.NewVolumeFunc(shape.X, shape.Y, shape.Z, fn)
	vol.Spacing = spacing
	return vol, nil
}

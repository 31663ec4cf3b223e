// Package pipeline runs a complete 2.5D convolution job: it loads or
// generates a volume, builds the kernel, computes the 2.5D response and
// optionally the dense 2D and 3D correlations it is compared against, then
// saves the results and records timings and summaries.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"

	"patchconv25d/internal/models"
	"patchconv25d/pkg/conv25d"
	"patchconv25d/pkg/correlate"
	"patchconv25d/pkg/imageio"
	"patchconv25d/pkg/kernels"
	"patchconv25d/pkg/logging"
	"patchconv25d/pkg/nifti"
	"patchconv25d/pkg/visualization"
)

// Runner executes one job. The steps are:
// 1. Loading the NIfTI volume or generating a synthetic one
// 2. Building the kernel from rows, an image or a preset
// 3. Correlating the optional photograph in 2D
// 4. Computing the 2.5D patch response
// 5. Correlating the volume with the extruded kernel in 3D
// 6. Saving the response and slice images
type Runner struct {
	params *Params

	volume *models.Volume
	kernel *conv25d.Kernel

	result  *conv25d.Result
	dense2D *mat.Dense
	dense3D *models.Volume

	metrics Metrics
}

// NewRunner creates a runner for params
func NewRunner(params *Params) *Runner {
	return &Runner{params: params}
}

// Process runs all steps. A cancelled ctx stops the run between steps and
// inside the 2.5D computation.
func (r *Runner) Process(ctx context.Context) error {
	if r.params.SaveSlices {
		if err := os.MkdirAll(r.params.SlicesDir, 0755); err != nil {
			return fmt.Errorf("failed to create slices directory: %w", err)
		}
	}

	logging.Infof("Step 1: Loading volume...")
	if err := r.timed(&r.metrics.Load, r.loadVolume); err != nil {
		return err
	}

	logging.Infof("Step 2: Building kernel...")
	if err := r.timed(&r.metrics.Kernel, r.buildKernel); err != nil {
		return err
	}

	if r.params.ImagePath != "" {
		logging.Infof("Step 3: Correlating image %s in 2D...", r.params.ImagePath)
		if err := r.timed(&r.metrics.Dense2D, r.correlateImage); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	logging.Infof("Step 4: Computing 2.5D response with patch size %d and stride %d...",
		r.params.PatchSize, r.params.Stride)
	if err := r.timed(&r.metrics.Conv25D, func() error { return r.convolve(ctx) }); err != nil {
		return err
	}

	if r.params.Compare3D {
		if err := ctx.Err(); err != nil {
			return err
		}
		logging.Infof("Step 5: Correlating volume with extruded kernel in 3D...")
		if err := r.timed(&r.metrics.Dense3D, r.correlateVolume); err != nil {
			return err
		}
	}

	logging.Infof("Step 6: Saving results...")
	if err := r.timed(&r.metrics.Save, r.save); err != nil {
		return err
	}

	logging.Infof("Completed %d locations in %v", r.metrics.Locations, r.metrics.Conv25D)
	return nil
}

func (r *Runner) timed(d *time.Duration, step func() error) error {
	start := time.Now()
	err := step()
	*d = time.Since(start)
	return err
}

func (r *Runner) loadVolume() error {
	if r.params.VolumePath != "" {
		vol, hdr, err := nifti.Load(r.params.VolumePath)
		if err != nil {
			return fmt.Errorf("failed to load volume: %w", err)
		}
		logging.Debugf("NIfTI header: datatype %d, description %q", hdr.Datatype, hdr.Description())
		r.volume = vol
	} else {
		vol, err := SyntheticVolume(r.params.SyntheticPattern, r.params.SyntheticShape, r.params.SyntheticSpacing)
		if err != nil {
			return err
		}
		r.volume = vol
	}

	s := r.volume.Spacing
	logging.Infof("Loaded volume %s with spacing %.2fx%.2fx%.2f mm", r.volume.Shape(), s.X, s.Y, s.Z)
	return nil
}

func (r *Runner) buildKernel() error {
	axial, err := r.basePlane()
	if err != nil {
		return err
	}

	if !r.params.PerChannel {
		r.kernel = conv25d.NewSharedKernel(axial)
	} else {
		sagittal, err := planeOrCopy(r.params.SagittalRows, axial)
		if err != nil {
			return fmt.Errorf("sagittal kernel: %w", err)
		}
		coronal, err := planeOrCopy(r.params.CoronalRows, axial)
		if err != nil {
			return fmt.Errorf("coronal kernel: %w", err)
		}
		r.kernel = conv25d.NewPerChannelKernel(axial, sagittal, coronal)
	}

	kh, kw := r.kernel.Dims()
	logging.Infof("Kernel %dx%d, per-channel %v", kh, kw, r.params.PerChannel)
	if logging.Verbose() {
		for ch := conv25d.Channel(0); ch < conv25d.NumChannels; ch++ {
			logging.Debugf("%s weights %v", ch, kernels.Rows(r.kernel.Plane(ch)))
		}
	}
	return nil
}

func (r *Runner) basePlane() (*mat.Dense, error) {
	switch {
	case len(r.params.KernelRows) > 0:
		return kernels.FromRows(r.params.KernelRows)
	case r.params.KernelImage != "":
		size := r.params.KernelSize
		if size < 1 {
			size = kernels.DefaultSize
		}
		return imageio.KernelFromImage(r.params.KernelImage, size, size)
	default:
		return kernels.Lookup(r.params.KernelPreset, r.params.KernelSize)
	}
}

func planeOrCopy(rows [][]float64, fallback *mat.Dense) (*mat.Dense, error) {
	if len(rows) == 0 {
		return mat.DenseCopyOf(fallback), nil
	}
	return kernels.FromRows(rows)
}

func (r *Runner) correlateImage() error {
	img, err := imageio.LoadGray(r.params.ImagePath)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}
	var out *mat.Dense
	if r.params.FFT2D {
		out, err = correlate.ValidFFT2D(img, r.kernel.Plane(conv25d.Axial))
	} else {
		out, err = correlate.Correlate2D(img, r.kernel.Plane(conv25d.Axial), correlate.Options{
			Padding: correlate.Same,
			Workers: r.params.Workers,
		})
	}
	if err != nil {
		return err
	}
	r.dense2D = out
	r.metrics.Response2D = summarize(out.RawMatrix().Data)
	return nil
}

func (r *Runner) convolve(ctx context.Context) error {
	conv, err := conv25d.New(r.kernel, conv25d.Options{
		PatchSize: r.params.PatchSize,
		Stride:    r.params.Stride,
		Bias:      r.params.Bias,
		Workers:   r.params.Workers,
		Method:    r.params.Method,
	})
	if err != nil {
		return err
	}
	res, err := conv.Compute(ctx, r.volume)
	if err != nil {
		return err
	}
	r.result = res
	r.metrics.Locations = res.Locations
	r.metrics.Response25D = summarize(res.Response.Data)
	logging.Infof("Response shape %s", res.Response.Shape())
	return nil
}

func (r *Runner) correlateVolume() error {
	plane := r.kernel.Plane(conv25d.Axial)
	kh, _ := plane.Dims()
	k3 := kernels.Extrude(plane, kh)

	out, err := correlate.Correlate3D(r.volume, k3, correlate.Options{
		Padding: correlate.Valid,
		Workers: r.params.Workers,
	})
	if err != nil {
		return err
	}
	r.dense3D = out
	r.metrics.Response3D = summarize(out.Data)

	a, b := r.alignedSamples(k3.Shape())
	r.metrics.Compare = compare(a, b)
	logging.Infof("2.5D vs 3D correlation over %d centers: %.4f",
		r.metrics.Compare.Samples, r.metrics.Compare.Correlation)
	return nil
}

// alignedSamples pairs every 2.5D response value with the dense 3D value
// whose kernel anchor sits on the same input voxel
func (r *Runner) alignedSamples(k models.Shape) ([]float64, []float64) {
	resp := r.result.Response
	stride := r.params.Stride
	var a, b []float64
	for z := 0; z < resp.Z; z++ {
		for y := 0; y < resp.Y; y++ {
			for x := 0; x < resp.X; x++ {
				dx := r.result.Offset + x*stride - k.X/2
				dy := r.result.Offset + y*stride - k.Y/2
				dz := r.result.Offset + z*stride - k.Z/2
				if dx < 0 || dy < 0 || dz < 0 || dx >= r.dense3D.X || dy >= r.dense3D.Y || dz >= r.dense3D.Z {
					continue
				}
				a = append(a, resp.At(x, y, z))
				b = append(b, r.dense3D.At(dx, dy, dz))
			}
		}
	}
	return a, b
}

func (r *Runner) save() error {
	if r.params.OutputFile != "" {
		if err := nifti.Save(r.params.OutputFile, r.result.Response); err != nil {
			return fmt.Errorf("failed to save response: %w", err)
		}
		logging.Infof("Response saved to %s", r.params.OutputFile)
	}

	if !r.params.SaveSlices {
		return nil
	}

	volumes := []struct {
		name string
		vol  *models.Volume
	}{
		{"input", r.volume},
		{"response", r.result.Response},
		{"dense3d", r.dense3D},
	}
	for _, v := range volumes {
		if v.vol == nil {
			continue
		}
		files, err := visualization.NewViewer(v.vol).SaveMidSlices(filepath.Join(r.params.SlicesDir, v.name))
		if err != nil {
			logging.Warningf("Failed to save %s slices: %v", v.name, err)
			continue
		}
		logging.Debugf("Saved %d %s slices", len(files), v.name)
	}

	if r.dense2D != nil {
		path := filepath.Join(r.params.SlicesDir, "dense2d.png")
		if err := imageio.Save(path, imageio.ToImage(r.dense2D)); err != nil {
			logging.Warningf("Failed to save 2D response: %v", err)
		}
	}
	return nil
}

// GetMetrics returns the timings and summaries of the last run
func (r *Runner) GetMetrics() Metrics {
	return r.metrics
}

// Volume returns the input volume of the last run
func (r *Runner) Volume() *models.Volume {
	return r.volume
}

// Kernel returns the kernel built for the last run
func (r *Runner) Kernel() *conv25d.Kernel {
	return r.kernel
}

// Result returns the 2.5D result of the last run
func (r *Runner) Result() *conv25d.Result {
	return r.result
}

// Dense2D returns the 2D correlation of the photograph, or nil
func (r *Runner) Dense2D() *mat.Dense {
	return r.dense2D
}

// Dense3D returns the dense 3D correlation, or nil
func (r *Runner) Dense3D() *models.Volume {
	return r.dense3D
}

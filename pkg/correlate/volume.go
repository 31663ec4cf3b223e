package correlate

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"patchconv25d/internal/models"
)

// Correlate3D cross-correlates a 3D kernel over vol. Padding and stride apply
// to every axis. Output z-slabs are computed in parallel; each worker writes a
// disjoint range of slabs. The output spacing is the input spacing scaled by
// the stride.
func Correlate3D(vol, kernel *models.Volume, opts Options) (*models.Volume, error) {
	if err := checkOptions(opts); err != nil {
		return nil, err
	}
	if err := vol.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}
	if err := kernel.Validate(); err != nil {
		return nil, fmt.Errorf("%w: kernel: %v", ErrInvalidShape, err)
	}
	if opts.Padding == Valid && (kernel.X > vol.X || kernel.Y > vol.Y || kernel.Z > vol.Z) {
		return nil, fmt.Errorf("%w: kernel %s larger than volume %s", ErrInvalidShape, kernel.Shape(), vol.Shape())
	}

	stride := opts.stride()
	out := models.NewVolume(
		OutputSize(vol.X, kernel.X, stride, opts.Padding),
		OutputSize(vol.Y, kernel.Y, stride, opts.Padding),
		OutputSize(vol.Z, kernel.Z, stride, opts.Padding),
	)
	out.Spacing = vol.Spacing.Scale(float64(stride))

	var px, py, pz int
	if opts.Padding == Same {
		px, py, pz = kernel.X/2, kernel.Y/2, kernel.Z/2
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > out.Z {
		workers = out.Z
	}
	slabsPerWorker := (out.Z + workers - 1) / workers

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		start := w * slabsPerWorker
		end := min(start+slabsPerWorker, out.Z)
		if start >= end {
			break
		}
		g.Go(func() error {
			for oz := start; oz < end; oz++ {
				for oy := 0; oy < out.Y; oy++ {
					for ox := 0; ox < out.X; ox++ {
						out.Data[out.Index(ox, oy, oz)] = correlateAt(vol, kernel,
							ox*stride-px, oy*stride-py, oz*stride-pz)
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// correlateAt returns the kernel response with the kernel origin at (x0, y0, z0);
// voxels outside the volume count as zero
func correlateAt(vol, kernel *models.Volume, x0, y0, z0 int) float64 {
	var sum float64
	for k := 0; k < kernel.Z; k++ {
		z := z0 + k
		if z < 0 || z >= vol.Z {
			continue
		}
		for j := 0; j < kernel.Y; j++ {
			y := y0 + j
			if y < 0 || y >= vol.Y {
				continue
			}
			row := vol.Data[vol.Index(0, y, z):]
			krow := kernel.Data[kernel.Index(0, j, k) : kernel.Index(0, j, k)+kernel.X]
			for i, w := range krow {
				x := x0 + i
				if x < 0 || x >= vol.X {
					continue
				}
				sum += row[x] * w
			}
		}
	}
	return sum
}

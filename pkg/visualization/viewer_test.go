package visualization

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"patchconv25d/internal/models"
)

// TestNewViewer verifies the intensity window of a new viewer
func TestNewViewer(t *testing.T) {
	vol := models.NewVolumeFunc(10, 10, 5, func(x, y, z int) float64 {
		return float64(x+y+z) - 4
	})

	viewer := NewViewer(vol)
	lo, hi := viewer.Window()
	if lo != -4 {
		t.Errorf("Expected window low -4, got %f", lo)
	}
	if hi != 9+9+4-4 {
		t.Errorf("Expected window high %d, got %f", 9+9+4-4, hi)
	}
}

// TestWindowSkipsNaN verifies that masked voxels do not affect the window
func TestWindowSkipsNaN(t *testing.T) {
	vol := models.NewVolumeFunc(4, 4, 4, func(x, y, z int) float64 {
		return float64(x)
	})
	vol.Set(0, 0, 0, math.NaN())
	vol.Set(1, 0, 0, math.Inf(1))

	viewer := NewViewer(vol)
	lo, hi := viewer.Window()
	if lo != 0 || hi != 3 {
		t.Errorf("Expected window [0, 3], got [%f, %f]", lo, hi)
	}

	img, err := viewer.ExtractSlice("z", 0)
	if err != nil {
		t.Fatalf("Failed to extract slice: %v", err)
	}
	if got := img.Gray16At(0, 0).Y; got != 0 {
		t.Errorf("Expected NaN voxel to be black, got %d", got)
	}
}

// TestExtractSlice verifies that slices are correctly extracted from the volume
func TestExtractSlice(t *testing.T) {
	width, height, depth := 10, 8, 5

	// Each slice along Z has a unique value
	vol := models.NewVolumeFunc(width, height, depth, func(x, y, z int) float64 {
		return float64(z) / float64(depth-1)
	})
	viewer := NewViewer(vol)

	for z := 0; z < depth; z++ {
		img, err := viewer.ExtractSlice("z", z)
		if err != nil {
			t.Fatalf("Failed to extract Z slice at position %d: %v", z, err)
		}

		bounds := img.Bounds()
		if bounds.Dx() != width || bounds.Dy() != height {
			t.Errorf("Expected Z slice dimensions %dx%d, got %dx%d",
				width, height, bounds.Dx(), bounds.Dy())
		}

		expectedValue := float64(z) / float64(depth-1) * 65535
		centerValue := float64(img.Gray16At(width/2, height/2).Y)
		if math.Abs(centerValue-expectedValue) > 1.0 {
			t.Errorf("Expected Z slice value ~%f at center, got %f", expectedValue, centerValue)
		}
	}

	imgX, err := viewer.ExtractSlice("x", width/2)
	if err != nil {
		t.Fatalf("Failed to extract X slice: %v", err)
	}
	if imgX.Bounds().Dx() != height || imgX.Bounds().Dy() != depth {
		t.Errorf("Expected X slice dimensions %dx%d, got %dx%d",
			height, depth, imgX.Bounds().Dx(), imgX.Bounds().Dy())
	}

	// Rows of a sagittal slice run along z
	if imgX.Gray16At(0, depth-1).Y != 65535 || imgX.Gray16At(0, 0).Y != 0 {
		t.Errorf("Sagittal slice rows should follow z")
	}

	imgY, err := viewer.ExtractSlice("y", height/2)
	if err != nil {
		t.Fatalf("Failed to extract Y slice: %v", err)
	}
	if imgY.Bounds().Dx() != width || imgY.Bounds().Dy() != depth {
		t.Errorf("Expected Y slice dimensions %dx%d, got %dx%d",
			width, depth, imgY.Bounds().Dx(), imgY.Bounds().Dy())
	}

	if _, err := viewer.ExtractSlice("invalid", 0); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
	if _, err := viewer.ExtractSlice("z", depth); err == nil {
		t.Error("Expected error for out of bounds position, got nil")
	}
	if _, err := viewer.ExtractSlice("z", -1); err == nil {
		t.Error("Expected error for negative position, got nil")
	}
}

// TestAspectSize verifies that display sizes follow the physical spacing
func TestAspectSize(t *testing.T) {
	vol := models.NewVolume(20, 10, 6)
	vol.Spacing = models.Spacing{X: 0.5, Y: 0.5, Z: 2}
	viewer := NewViewer(vol)

	tests := []struct {
		axis string
		w, h int
	}{
		{"z", 20, 10},
		{"y", 20, 24},
		{"x", 10, 24},
	}
	for _, tc := range tests {
		w, h, err := viewer.AspectSize(tc.axis)
		if err != nil {
			t.Fatalf("AspectSize(%s): %v", tc.axis, err)
		}
		if w != tc.w || h != tc.h {
			t.Errorf("AspectSize(%s): expected %dx%d, got %dx%d", tc.axis, tc.w, tc.h, w, h)
		}

		img, err := viewer.ExtractDisplaySlice(tc.axis, 0)
		if err != nil {
			t.Fatalf("ExtractDisplaySlice(%s): %v", tc.axis, err)
		}
		if img.Bounds().Dx() != tc.w || img.Bounds().Dy() != tc.h {
			t.Errorf("Display slice %s: expected %dx%d, got %v", tc.axis, tc.w, tc.h, img.Bounds())
		}
	}
}

// TestExtractRegion verifies that 3D regions are correctly extracted
func TestExtractRegion(t *testing.T) {
	width, height, depth := 10, 10, 5
	vol := models.NewVolumeFunc(width, height, depth, func(x, y, z int) float64 {
		return float64(x)/float64(width) + float64(y)/float64(height) + float64(z)/float64(depth)
	})
	viewer := NewViewer(vol)

	startX, startY, startZ := 2, 3, 1
	sizeX, sizeY, sizeZ := 4, 3, 2

	region, err := viewer.ExtractRegion(startX, startY, startZ, sizeX, sizeY, sizeZ)
	if err != nil {
		t.Fatalf("Failed to extract region: %v", err)
	}
	if len(region.Data) != sizeX*sizeY*sizeZ {
		t.Errorf("Expected region size %d, got %d", sizeX*sizeY*sizeZ, len(region.Data))
	}

	for z := 0; z < sizeZ; z++ {
		for y := 0; y < sizeY; y++ {
			for x := 0; x < sizeX; x++ {
				want := vol.At(startX+x, startY+y, startZ+z)
				if got := region.At(x, y, z); got != want {
					t.Errorf("Region value mismatch at (%d,%d,%d): expected %f, got %f", x, y, z, want, got)
				}
			}
		}
	}

	if _, err := viewer.ExtractRegion(-1, 0, 0, 1, 1, 1); err == nil {
		t.Error("Expected error for negative start coordinate, got nil")
	}
	if _, err := viewer.ExtractRegion(0, 0, 0, 0, 1, 1); err == nil {
		t.Error("Expected error for zero size, got nil")
	}
	if _, err := viewer.ExtractRegion(width-1, 0, 0, 2, 1, 1); err == nil {
		t.Error("Expected error for region extending beyond volume, got nil")
	}
}

// TestSaveSliceSequence verifies that a sequence of slices can be saved
func TestSaveSliceSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	tempDir := t.TempDir()
	width, height, depth := 5, 5, 3
	vol := models.NewVolumeFunc(width, height, depth, func(x, y, z int) float64 { return 0.5 })
	viewer := NewViewer(vol)

	outputDir := filepath.Join(tempDir, "slices")
	if err := viewer.SaveSliceSequence("z", outputDir); err != nil {
		t.Fatalf("Failed to save slice sequence: %v", err)
	}

	for z := 0; z < depth; z++ {
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_z_%03d.jpg", z))
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			t.Errorf("Expected slice file does not exist: %s", filename)
		}
	}

	if err := viewer.SaveSliceSequence("invalid", outputDir); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
}

// TestSaveMidSlices verifies that the three orthogonal mid-planes are written
func TestSaveMidSlices(t *testing.T) {
	vol := models.NewVolumeFunc(6, 7, 4, func(x, y, z int) float64 { return float64(x * y * z) })
	vol.Spacing = models.Spacing{X: 1, Y: 1, Z: 3}

	files, err := NewViewer(vol).SaveMidSlices(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to save mid slices: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("Expected 3 files, got %d", len(files))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			t.Errorf("Missing %s: %v", f, err)
		}
	}
}

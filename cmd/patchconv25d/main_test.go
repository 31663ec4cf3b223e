package main

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"patchconv25d/pkg/config"
	"patchconv25d/pkg/nifti"
)

// restoreLog points the standard logger back at stderr after a run that
// redirected it
func restoreLog(t *testing.T) {
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
}

// TestRunSynthetic runs the command end to end with a log file
func TestRunSynthetic(t *testing.T) {
	restoreLog(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "response.nii")
	logPath := filepath.Join(dir, "run.log")

	err := run([]string{
		"-config", filepath.Join(dir, "missing.yaml"),
		"-synthetic", "gradient:12x12x12",
		"-patch", "8",
		"-output", out,
		"-logfile", logPath,
		"-compare3d",
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	vol, _, err := nifti.Load(out)
	if err != nil {
		t.Fatalf("Failed to load response: %v", err)
	}
	if vol.X != 5 || vol.Y != 5 || vol.Z != 5 {
		t.Errorf("Response shape %s, expected (5,5,5)", vol.Shape())
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), " INFO Step 4:") {
		t.Errorf("Log file misses the 2.5D step:\n%s", data)
	}
}

// TestRunErrors verifies failures are returned rather than exiting
func TestRunErrors(t *testing.T) {
	restoreLog(t)
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.yaml")

	cases := [][]string{
		{"-config", missing, "-patch", "0"},
		{"-config", missing, "-synthetic", "sphere:10x10"},
		{"-config", missing, "-synthetic", "sphere:12x12x12", "-patch", "8", "-kernel", "no-such-kernel", "-output", ""},
		{"-config", missing, "-no-such-flag"},
	}
	for _, args := range cases {
		if err := run(args); err == nil {
			t.Errorf("Expected error for %v", args)
		}
	}
}

func TestRunWriteConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	if err := run([]string{"-write-config", path}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("Written configuration does not load: %v", err)
	}
	if cfg.Processing.PatchSize != config.DefaultConfig().Processing.PatchSize {
		t.Errorf("Expected default patch size, got %d", cfg.Processing.PatchSize)
	}
}

func TestParseSynthetic(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Input.Volume = "scan.nii"
	if err := parseSynthetic("constant:4x5x6", cfg); err != nil {
		t.Fatalf("parseSynthetic failed: %v", err)
	}
	if cfg.Input.Synthetic.Pattern != "constant" || cfg.Input.Synthetic.Size != [3]int{4, 5, 6} {
		t.Errorf("Unexpected synthetic input %+v", cfg.Input.Synthetic)
	}
	if cfg.Input.Volume != "" {
		t.Errorf("Synthetic input should clear the volume path")
	}
	if err := parseSynthetic("sphere:4xAx6", cfg); err == nil {
		t.Errorf("Expected error for non-numeric size")
	}
}

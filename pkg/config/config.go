// Package config provides configuration loading and management for patchconv25d.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters of the 2.5D convolution
	Processing struct {
		// PatchSize is the side length of the cubic neighborhood around each center
		PatchSize int `yaml:"patchSize"`

		// Stride is the step between sampled centers along each axis
		Stride int `yaml:"stride"`

		// Bias is added once per output location
		Bias float64 `yaml:"bias"`

		// Workers specifies how many goroutines compute the response
		Workers int `yaml:"workers"`

		// Method is "centered" or "fullmap"
		Method string `yaml:"method"`

		// PerChannel uses an independent kernel plane per section instead of
		// one shared plane
		PerChannel bool `yaml:"perChannel"`

		// Compare3D also runs a dense 3D correlation with the extruded kernel
		Compare3D bool `yaml:"compare3d"`

		// FFT2D correlates the input image in the frequency domain and keeps
		// only the valid region
		FFT2D bool `yaml:"fft2d"`
	} `yaml:"processing"`

	// Kernel selection. Rows take precedence over Image, Image over Preset.
	Kernel struct {
		// Preset names a built-in kernel such as "edge" or "sobel-x"
		Preset string `yaml:"preset"`

		// Size is used by size-dependent presets and by image kernels
		Size int `yaml:"size"`

		// Rows gives explicit weights for the shared (or axial) plane
		Rows [][]float64 `yaml:"rows,omitempty"`

		// SagittalRows and CoronalRows give the other planes in per-channel mode;
		// when empty the shared plane is reused
		SagittalRows [][]float64 `yaml:"sagittalRows,omitempty"`
		CoronalRows  [][]float64 `yaml:"coronalRows,omitempty"`

		// Image is a photograph resampled into a kernel
		Image string `yaml:"image,omitempty"`
	} `yaml:"kernel"`

	// Input data
	Input struct {
		// Volume is a NIfTI file (.nii or .nii.gz)
		Volume string `yaml:"volume"`

		// Image is a photograph run through dense 2D correlation for comparison
		Image string `yaml:"image"`

		// Synthetic describes a generated volume used when Volume is empty
		Synthetic struct {
			// Pattern is "constant", "sphere" or "gradient"
			Pattern string `yaml:"pattern"`

			// Size is the volume extent along each axis
			Size [3]int `yaml:"size,flow"`

			// Spacing is the voxel size in mm
			Spacing [3]float64 `yaml:"spacing,flow"`
		} `yaml:"synthetic"`
	} `yaml:"input"`

	// Output parameters
	Output struct {
		// Response is where the response volume is written
		Response string `yaml:"response"`

		// SaveSlices exports spacing-corrected slice images of the response
		SaveSlices bool `yaml:"saveSlices"`

		// SlicesDir is the directory for exported slices
		SlicesDir string `yaml:"slicesDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// Logfile sends log output to a rotating file when set
		Logfile string `yaml:"logfile"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// 16-voxel patches with the 4x4 edge kernel
	cfg.Processing.PatchSize = 16
	cfg.Processing.Stride = 1
	cfg.Processing.Bias = 0
	cfg.Processing.Workers = runtime.NumCPU()
	cfg.Processing.Method = "centered"

	cfg.Kernel.Preset = "edge"
	cfg.Kernel.Size = 5

	cfg.Input.Synthetic.Pattern = "sphere"
	cfg.Input.Synthetic.Size = [3]int{48, 48, 32}
	cfg.Input.Synthetic.Spacing = [3]float64{1, 1, 2}

	cfg.Output.Response = "response.nii.gz"
	cfg.Output.SlicesDir = "response_slices"
	cfg.Output.Verbose = true

	return cfg
}

// Validate checks the values that cannot be corrected later
func (c *Config) Validate() error {
	if c.Processing.PatchSize < 1 {
		return fmt.Errorf("processing.patchSize must be positive, got %d", c.Processing.PatchSize)
	}
	if c.Processing.Stride < 1 {
		return fmt.Errorf("processing.stride must be positive, got %d", c.Processing.Stride)
	}
	if c.Processing.Workers < 0 {
		return fmt.Errorf("processing.workers must not be negative, got %d", c.Processing.Workers)
	}
	if c.Input.Volume == "" {
		for i, n := range c.Input.Synthetic.Size {
			if n < 1 {
				return fmt.Errorf("input.synthetic.size[%d] must be positive, got %d", i, n)
			}
		}
		for i, s := range c.Input.Synthetic.Spacing {
			if s <= 0 {
				return fmt.Errorf("input.synthetic.spacing[%d] must be positive, got %g", i, s)
			}
		}
	}
	return nil
}

// LoadConfig loads configuration from a YAML file over the defaults.
// A missing file yields the defaults; unknown keys are rejected so a typo
// cannot silently fall back to a default.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error opening config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("error parsing config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML, creating the parent directory
func SaveConfig(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# patchconv25d configuration\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	return os.WriteFile(configPath, buf.Bytes(), 0644)
}

// CreateDefaultConfigFile writes the default configuration to configPath
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

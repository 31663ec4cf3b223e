package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"patchconv25d/pkg/config"
	"patchconv25d/pkg/logging"
	"patchconv25d/pkg/pipeline"
	"patchconv25d/pkg/visualization"
)

func main() {
	err := run(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the command with args and returns instead of exiting, so the
// deferred log file close always happens
func run(args []string) error {
	flags := flag.NewFlagSet("patchconv25d", flag.ContinueOnError)

	// Parse command line arguments
	configPath := flags.String("config", "config.yaml", "YAML configuration file (defaults are used when missing)")
	writeConfig := flags.String("write-config", "", "Write the default configuration to this file and exit")
	input := flags.String("input", "", "NIfTI volume (.nii or .nii.gz); a synthetic volume is used when empty")
	synthetic := flags.String("synthetic", "", "Synthetic volume as pattern:XxYxZ, e.g. sphere:48x48x32")
	image := flags.String("image", "", "Photograph to correlate in 2D for comparison")
	output := flags.String("output", "", "Response NIfTI file")
	kernel := flags.String("kernel", "", "Kernel preset name or a PNG/JPEG file")
	patch := flags.Int("patch", 0, "Patch size P")
	stride := flags.Int("stride", 0, "Stride between centers")
	bias := flags.Float64("bias", 0, "Bias added to each response")
	method := flags.String("method", "", "Response method: centered or fullmap")
	perChannel := flags.Bool("per-channel", false, "Use an independent kernel plane per section")
	workers := flags.Int("workers", 0, "Number of goroutines (default: all CPUs)")
	compare3D := flags.Bool("compare3d", false, "Also run a dense 3D correlation with the extruded kernel")
	fft2D := flags.Bool("fft", false, "Correlate the image through the FFT (valid region only)")
	extractSlices := flags.Bool("extract-slices", false, "Extract and save response slices along all axes")
	slicesDir := flags.String("slices-dir", "", "Directory to save extracted slices")
	logfile := flags.String("logfile", "", "Rotating log file; stdout when empty")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			return fmt.Errorf("failed to write configuration: %w", err)
		}
		fmt.Printf("Default configuration written to %s\n", *writeConfig)
		return nil
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Flags that were set override the configuration
	var overrideErr error
	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Input.Volume = *input
		case "synthetic":
			if err := parseSynthetic(*synthetic, cfg); err != nil {
				overrideErr = err
			}
		case "image":
			cfg.Input.Image = *image
		case "output":
			cfg.Output.Response = *output
		case "kernel":
			if isImageFile(*kernel) {
				cfg.Kernel.Image = *kernel
			} else {
				cfg.Kernel.Preset = *kernel
				cfg.Kernel.Image = ""
			}
			cfg.Kernel.Rows = nil
		case "patch":
			cfg.Processing.PatchSize = *patch
		case "stride":
			cfg.Processing.Stride = *stride
		case "bias":
			cfg.Processing.Bias = *bias
		case "method":
			cfg.Processing.Method = *method
		case "per-channel":
			cfg.Processing.PerChannel = *perChannel
		case "workers":
			cfg.Processing.Workers = *workers
		case "compare3d":
			cfg.Processing.Compare3D = *compare3D
		case "fft":
			cfg.Processing.FFT2D = *fft2D
		case "extract-slices":
			cfg.Output.SaveSlices = *extractSlices
		case "slices-dir":
			cfg.Output.SlicesDir = *slicesDir
		case "logfile":
			cfg.Output.Logfile = *logfile
		}
	})
	if overrideErr != nil {
		flags.Usage()
		return overrideErr
	}

	logCfg := &logging.Config{
		Logfile:    cfg.Output.Logfile,
		MaxSize:    100, // megabytes
		MaxAge:     30,  // days
		MaxBackups: 5,
		Verbose:    cfg.Output.Verbose,
	}
	closer := logCfg.Setup()
	defer closer.Close()

	params, err := pipeline.ParamsFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Println("================================")
	fmt.Println("2.5D PATCH CONVOLUTION")
	fmt.Println("Axial, sagittal and coronal sections through every patch center")
	fmt.Println("================================")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner := pipeline.NewRunner(params)
	startTime := time.Now()
	if err := runner.Process(ctx); err != nil {
		return fmt.Errorf("processing failed: %w", err)
	}
	processingTime := time.Since(startTime)

	printSummary(runner, params, processingTime)

	if cfg.Output.SaveSlices {
		viewer := visualization.NewViewer(runner.Result().Response)
		for _, axis := range []string{"x", "y", "z"} {
			axisDir := filepath.Join(params.SlicesDir, "sequence", axis)
			if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
				logging.Warningf("Failed to save %s-axis slices: %v", axis, err)
			}
		}
		fmt.Printf("Slices saved to: %s\n", params.SlicesDir)
	}
	return nil
}

func printSummary(runner *pipeline.Runner, params *pipeline.Params, total time.Duration) {
	m := runner.GetMetrics()
	res := runner.Result()
	vol := runner.Volume()

	fmt.Printf("\nCompleted in %v\n", total.Round(time.Millisecond))
	fmt.Printf("Input volume:    %s (%s voxels)\n", vol.Shape(), humanize.Comma(int64(vol.Shape().Len())))
	fmt.Printf("Response volume: %s (%s locations, %s as float32)\n",
		res.Response.Shape(), humanize.Comma(int64(m.Locations)), humanize.Bytes(uint64(m.Locations)*4))
	if params.OutputFile != "" {
		if fi, err := os.Stat(params.OutputFile); err == nil {
			fmt.Printf("Saved to: %s (%s)\n", params.OutputFile, humanize.Bytes(uint64(fi.Size())))
		}
	}

	fmt.Println("\nTimings:")
	fmt.Printf("- Load:     %v\n", m.Load)
	fmt.Printf("- 2.5D:     %v (%s locations/s)\n", m.Conv25D, rate(m.Locations, m.Conv25D))
	if params.ImagePath != "" {
		fmt.Printf("- Dense 2D: %v\n", m.Dense2D)
	}
	if m.Compare != nil {
		fmt.Printf("- Dense 3D: %v\n", m.Dense3D)
	}

	fmt.Println("\nResponse statistics:")
	printStats("2.5D", m.Response25D)
	if params.ImagePath != "" {
		printStats("2D", m.Response2D)
	}
	if c := m.Compare; c != nil {
		printStats("3D", m.Response3D)
		fmt.Printf("\n2.5D vs 3D over %s centers: correlation %.4f, RMSE %.4f, SSIM %.4f\n",
			humanize.Comma(int64(c.Samples)), c.Correlation, c.RMSE, c.SSIM)
	}
}

func printStats(name string, s pipeline.Summary) {
	fmt.Printf("- %-4s mean %.4g, std %.4g, range [%.4g, %.4g], entropy %.2f bits\n",
		name, s.Mean, s.StdDev, s.Min, s.Max, s.Entropy)
}

func rate(n int, d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return humanize.Commaf(math.Round(float64(n) / d.Seconds()))
}

// parseSynthetic reads pattern:XxYxZ into the synthetic input section
func parseSynthetic(s string, cfg *config.Config) error {
	pattern, size, found := strings.Cut(s, ":")
	cfg.Input.Synthetic.Pattern = pattern
	cfg.Input.Volume = ""
	if !found {
		return nil
	}
	dims := strings.Split(size, "x")
	if len(dims) != 3 {
		return fmt.Errorf("synthetic size %q must be XxYxZ", size)
	}
	for i, d := range dims {
		n, err := strconv.Atoi(d)
		if err != nil {
			return fmt.Errorf("synthetic size %q: %v", size, err)
		}
		cfg.Input.Synthetic.Size[i] = n
	}
	return nil
}

func isImageFile(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range []string{".png", ".jpg", ".jpeg"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

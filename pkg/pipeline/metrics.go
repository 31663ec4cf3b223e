package pipeline

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the value distribution of one response. NaN and
// infinite values are left out of every field.
type Summary struct {
	// Count is the number of finite values
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64

	// Entropy is the Shannon entropy in bits of a 256-bin histogram
	Entropy float64
}

// Comparison relates the 2.5D response to the dense 3D response sampled at
// the same centers
type Comparison struct {
	// Samples is the number of centers present in both responses with a
	// finite value on each side
	Samples int

	// Correlation is the Pearson correlation; NaN when either side is constant
	Correlation float64

	// RMSE is computed on standardized values so kernels of different mass
	// compare on the same scale
	RMSE float64

	// SSIM is the global structural similarity of the standardized values
	SSIM float64
}

// Metrics holds timings and summaries of a run
type Metrics struct {
	Load    time.Duration
	Kernel  time.Duration
	Dense2D time.Duration
	Conv25D time.Duration
	Dense3D time.Duration
	Save    time.Duration

	// Locations is the number of 2.5D output locations
	Locations int

	Response25D Summary
	Response2D  Summary
	Response3D  Summary

	// Compare is set when the dense 3D correlation ran
	Compare *Comparison
}

// finite returns the values of data that are neither NaN nor infinite
func finite(data []float64) []float64 {
	out := make([]float64, 0, len(data))
	for _, v := range data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

func summarize(data []float64) Summary {
	data = finite(data)
	if len(data) == 0 {
		return Summary{}
	}
	mean, std := stat.MeanStdDev(data, nil)
	return Summary{
		Count:   len(data),
		Mean:    mean,
		StdDev:  std,
		Min:     floats.Min(data),
		Max:     floats.Max(data),
		Entropy: entropy(data),
	}
}

// entropy computes the Shannon entropy of finite data over 256 equal-width bins
func entropy(data []float64) float64 {
	const numBins = 256

	lo, hi := floats.Min(data), floats.Max(data)
	if hi <= lo {
		return 0
	}

	hist := make([]float64, numBins)
	binWidth := (hi - lo) / numBins
	for _, v := range data {
		bin := min(max(int((v-lo)/binWidth), 0), numBins-1)
		hist[bin]++
	}
	floats.Scale(1/float64(len(data)), hist)

	// stat.Entropy is in nats
	return stat.Entropy(hist) / math.Ln2
}

// compare relates paired samples, skipping pairs where either side is not finite
func compare(a, b []float64) *Comparison {
	c := &Comparison{Correlation: math.NaN(), RMSE: math.NaN(), SSIM: math.NaN()}
	if len(a) != len(b) {
		return c
	}
	fa := make([]float64, 0, len(a))
	fb := make([]float64, 0, len(b))
	for i := range a {
		if math.IsNaN(a[i]) || math.IsInf(a[i], 0) || math.IsNaN(b[i]) || math.IsInf(b[i], 0) {
			continue
		}
		fa = append(fa, a[i])
		fb = append(fb, b[i])
	}
	a, b = fa, fb
	c.Samples = len(a)
	if len(a) < 2 {
		return c
	}

	ma, sa := stat.MeanStdDev(a, nil)
	mb, sb := stat.MeanStdDev(b, nil)
	if sa == 0 || sb == 0 {
		return c
	}
	c.Correlation = stat.Correlation(a, b, nil)

	za := make([]float64, len(a))
	zb := make([]float64, len(b))
	for i := range a {
		za[i] = stat.StdScore(a[i], ma, sa)
		zb[i] = stat.StdScore(b[i], mb, sb)
	}
	c.RMSE = floats.Distance(za, zb, 2) / math.Sqrt(float64(len(za)))
	c.SSIM = ssim(za, zb)
	return c
}

func ssim(x, y []float64) float64 {
	const (
		dynamicRange = 1.0
		k1           = 0.01
		k2           = 0.03
	)
	c1 := (k1 * dynamicRange) * (k1 * dynamicRange)
	c2 := (k2 * dynamicRange) * (k2 * dynamicRange)

	muX := stat.Mean(x, nil)
	muY := stat.Mean(y, nil)
	varX := stat.Variance(x, nil)
	varY := stat.Variance(y, nil)
	covXY := stat.Covariance(x, y, nil)

	num := (2*muX*muY + c1) * (2*covXY + c2)
	den := (muX*muX + muY*muY + c1) * (varX + varY + c2)
	if den == 0 {
		return 0
	}
	return num / den
}

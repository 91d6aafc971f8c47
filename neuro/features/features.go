// Package features turns a multi-channel signal window into named
// per-channel feature vectors: temporal statistics, Welch band powers,
// and optional pairwise connectivity. All functions are pure; the only
// failure mode is a malformed input shape.
package features

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/llamasearchai/llamaneuro/errors"
	"github.com/llamasearchai/llamaneuro/pkg/dsp"
)

// Set maps a feature name to its per-channel values. Connectivity
// entries (conn_<band>) hold the flattened upper triangle of the
// channel-pair matrix instead of one value per channel.
type Set map[string][]float64

// Options selects which feature groups Extract computes.
type Options struct {
	SamplingRate   int
	FrequencyBands map[string][2]float64

	Temporal     bool
	Spectral     bool
	Connectivity bool

	// ConnectivityMethod is "correlation" (signed correlation of the
	// band-passed signals) or "coherence" (its squared magnitude).
	ConnectivityMethod string
}

// Extract computes the configured feature groups over data, shaped
// [channels][samples]. All rows must have the same length.
func Extract(data [][]float64, opts Options) (Set, error) {
	if err := checkShape(data); err != nil {
		return nil, err
	}

	out := make(Set)

	if opts.Temporal {
		temporal, err := Temporal(data)
		if err != nil {
			return nil, err
		}
		for name, v := range temporal {
			out[name] = v
		}
	}

	if opts.Spectral {
		powers, err := BandPowers(data, opts.SamplingRate, opts.FrequencyBands)
		if err != nil {
			return nil, err
		}
		for name, v := range powers {
			out["band_"+name] = v
		}
	}

	if opts.Connectivity {
		for name, band := range opts.FrequencyBands {
			matrix, err := Connectivity(data, opts.SamplingRate, opts.ConnectivityMethod, band)
			if err != nil {
				return nil, err
			}
			out["conn_"+name] = FlattenUpperTriangle(matrix)
		}
	}

	return out, nil
}

// Temporal computes per-channel mean, standard deviation, peak-to-peak
// range, excess kurtosis, and the three Hjorth parameters. Kurtosis,
// mobility, and complexity are reported as 0 for near-constant
// channels instead of propagating NaN.
func Temporal(data [][]float64) (Set, error) {
	if err := checkShape(data); err != nil {
		return nil, err
	}

	n := len(data)
	out := Set{
		"mean":              make([]float64, n),
		"std":               make([]float64, n),
		"ptp":               make([]float64, n),
		"kurtosis":          make([]float64, n),
		"hjorth_activity":   make([]float64, n),
		"hjorth_mobility":   make([]float64, n),
		"hjorth_complexity": make([]float64, n),
	}

	for ch, row := range data {
		out["mean"][ch] = stat.Mean(row, nil)

		variance := stat.PopVariance(row, nil)
		out["std"][ch] = math.Sqrt(variance)
		out["hjorth_activity"][ch] = variance

		lo, hi := row[0], row[0]
		for _, v := range row {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		out["ptp"][ch] = hi - lo

		if variance < epsVariance {
			// Degenerate channel: higher moments are undefined,
			// report sentinels.
			continue
		}

		out["kurtosis"][ch] = stat.ExKurtosis(row, nil)

		d1 := diff(row)
		varD1 := stat.PopVariance(d1, nil)
		mobility := math.Sqrt(varD1 / variance)
		out["hjorth_mobility"][ch] = mobility

		if varD1 < epsVariance || mobility == 0 {
			continue
		}
		d2 := diff(d1)
		mobilityD1 := math.Sqrt(stat.PopVariance(d2, nil) / varD1)
		out["hjorth_complexity"][ch] = mobilityD1 / mobility
	}

	return out, nil
}

// BandPowers computes the mean Welch PSD per channel within each band.
// Bands overlapping no frequency bins yield zero vectors.
func BandPowers(data [][]float64, samplingRate int, bands map[string][2]float64) (Set, error) {
	if err := checkShape(data); err != nil {
		return nil, err
	}

	nperseg := 256
	if len(data[0]) < nperseg {
		nperseg = len(data[0])
	}

	out := make(Set, len(bands))
	for name := range bands {
		out[name] = make([]float64, len(data))
	}

	for ch, row := range data {
		spec, err := dsp.Welch(row, float64(samplingRate), nperseg)
		if err != nil {
			return nil, err
		}
		for name, band := range bands {
			out[name][ch] = spec.BandMean(band[0], band[1])
		}
	}

	return out, nil
}

// Connectivity computes the pairwise channel relationship matrix over
// the band-passed signals. The matrix is symmetric with a unit
// diagonal.
func Connectivity(data [][]float64, samplingRate int, method string, band [2]float64) ([][]float64, error) {
	if err := checkShape(data); err != nil {
		return nil, err
	}

	n := len(data)
	filtered := make([][]float64, n)
	for ch, row := range data {
		filtered[ch] = dsp.BandPass(row, float64(samplingRate), band[0], band[1])
	}

	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		matrix[i][i] = 1
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			r := stat.Correlation(filtered[i], filtered[j], nil)
			if math.IsNaN(r) {
				r = 0
			}
			if method == "coherence" {
				r = r * r
			}
			matrix[i][j] = r
			matrix[j][i] = r
		}
	}

	return matrix, nil
}

// FlattenUpperTriangle returns the strict upper triangle of a square
// matrix in row-major order, dropping the redundant symmetric half.
func FlattenUpperTriangle(matrix [][]float64) []float64 {
	n := len(matrix)
	out := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			out = append(out, matrix[i][j])
		}
	}
	return out
}

const epsVariance = 1e-12

func diff(x []float64) []float64 {
	if len(x) < 2 {
		return []float64{0}
	}
	out := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		out[i-1] = x[i] - x[i-1]
	}
	return out
}

func checkShape(data [][]float64) error {
	if len(data) == 0 || len(data[0]) == 0 {
		return errors.WrapInvalid(errors.ErrEmptyWindow, "features", "Extract", "shape check")
	}
	width := len(data[0])
	for _, row := range data {
		if len(row) != width {
			return errors.WrapInvalid(errors.ErrShapeMismatch, "features", "Extract", "ragged channel rows")
		}
	}
	return nil
}

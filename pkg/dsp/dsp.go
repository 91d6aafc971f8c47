// Package dsp provides the spectral-analysis primitives used by the
// feature extraction pipeline: Welch power spectral density estimation,
// frequency-band power integration, and FFT-domain band-pass filtering.
//
// All routines are built on gonum's fourier and window packages and
// operate on single-channel float64 signals.
package dsp

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/llamasearchai/llamaneuro/errors"
)

// Spectrum holds a one-sided power spectral density estimate.
// Freqs[i] is the center frequency of bin i in Hz, Power[i] the
// density in units²/Hz.
type Spectrum struct {
	Freqs []float64
	Power []float64
}

// Welch estimates the one-sided PSD of signal sampled at fs Hz using
// Welch's method: Hann-windowed segments of nperseg samples with 50%
// overlap, mean-detrended, periodograms averaged across segments.
//
// nperseg is clamped to len(signal) when the signal is shorter than
// one segment.
func Welch(signal []float64, fs float64, nperseg int) (*Spectrum, error) {
	if len(signal) == 0 {
		return nil, errors.WrapInvalid(errors.ErrEmptyWindow, "dsp", "Welch", "PSD estimation")
	}
	if fs <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "dsp", "Welch", "sampling rate must be positive")
	}
	if nperseg <= 0 || nperseg > len(signal) {
		nperseg = len(signal)
	}

	// Hann window and its power normalization term.
	win := window.Hann(ones(nperseg))
	var winPower float64
	for _, w := range win {
		winPower += w * w
	}
	scale := 1.0 / (fs * winPower)

	step := nperseg / 2
	if step < 1 {
		step = 1
	}

	nbins := nperseg/2 + 1
	fft := fourier.NewFFT(nperseg)
	psd := make([]float64, nbins)
	segment := make([]float64, nperseg)
	coeffs := make([]complex128, nbins)

	segments := 0
	for start := 0; start+nperseg <= len(signal); start += step {
		copy(segment, signal[start:start+nperseg])

		// Constant detrend, then window.
		var mean float64
		for _, v := range segment {
			mean += v
		}
		mean /= float64(nperseg)
		for i := range segment {
			segment[i] = (segment[i] - mean) * win[i]
		}

		coeffs = fft.Coefficients(coeffs, segment)
		for i, c := range coeffs {
			p := (real(c)*real(c) + imag(c)*imag(c)) * scale
			// One-sided spectrum: double everything except DC and,
			// for even nperseg, the Nyquist bin.
			if i != 0 && !(nperseg%2 == 0 && i == nbins-1) {
				p *= 2
			}
			psd[i] += p
		}
		segments++
	}

	for i := range psd {
		psd[i] /= float64(segments)
	}

	freqs := make([]float64, nbins)
	df := fs / float64(nperseg)
	for i := range freqs {
		freqs[i] = float64(i) * df
	}

	return &Spectrum{Freqs: freqs, Power: psd}, nil
}

// BandPower integrates the PSD over [lo, hi) Hz using rectangular
// integration. Returns 0 when the band contains no bins.
func (s *Spectrum) BandPower(lo, hi float64) float64 {
	if len(s.Freqs) < 2 {
		return 0
	}
	df := s.Freqs[1] - s.Freqs[0]
	var total float64
	for i, f := range s.Freqs {
		if f >= lo && f < hi {
			total += s.Power[i] * df
		}
	}
	return total
}

// BandMean returns the mean PSD across the bins in [lo, hi), or 0
// when the band contains no bins.
func (s *Spectrum) BandMean(lo, hi float64) float64 {
	var total float64
	n := 0
	for i, f := range s.Freqs {
		if f >= lo && f < hi {
			total += s.Power[i]
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// TotalPower integrates the PSD across all bins.
func (s *Spectrum) TotalPower() float64 {
	return s.BandPower(0, math.Inf(1))
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

package dsp

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// BandPass filters signal to the [lo, hi] Hz band by zeroing FFT
// coefficients outside the band and inverting. Zero-phase by
// construction, so no group delay is introduced.
func BandPass(signal []float64, fs, lo, hi float64) []float64 {
	n := len(signal)
	if n == 0 || fs <= 0 {
		return nil
	}

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, signal)

	df := fs / float64(n)
	for i := range coeffs {
		f := float64(i) * df
		if f < lo || f > hi {
			coeffs[i] = 0
		}
	}

	out := fft.Sequence(nil, coeffs)
	// gonum's inverse transform is unnormalized.
	inv := 1.0 / float64(n)
	for i := range out {
		out[i] *= inv
	}
	return out
}

package heat

/* spectrum.go converts a lag-space correlation series into its frequency
decomposition. This is post-processing: it reads averaged correlations and
never touches engine state. */

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Spectrum transforms an averaged lag-space correlation series into the
// frequency domain. The series is tapered with a Hann window (1 at lag zero,
// falling to zero at the deepest lag) and run through a real FFT. dt is the
// time between successive samples, i.e. the MD time step times the sampling
// interval. The returned omega holds angular frequencies in radians per unit
// of dt's time unit, and density the spectral density at each frequency.
func Spectrum(corr []float64, dt float64) (omega, density []float64, err error) {
	n := len(corr)
	if n < 2 {
		return nil, nil, fmt.Errorf("A correlation series needs at least 2 lags to transform, but it has %d.", n)
	}
	if dt <= 0 {
		return nil, nil, fmt.Errorf("The sample spacing must be positive, but dt = %g was given.", dt)
	}

	seq := make([]float64, n)
	for i := range seq {
		hann := (math.Cos(math.Pi*float64(i)/float64(n)) + 1) / 2
		seq[i] = corr[i] * hann
	}

	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, seq)

	omega = make([]float64, len(coeff))
	density = make([]float64, len(coeff))
	for i := range coeff {
		omega[i] = 2 * math.Pi * fft.Freq(i) / dt
		density[i] = 2 * dt * real(coeff[i])
	}
	return omega, density, nil
}

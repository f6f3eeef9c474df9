// Package refit estimates the magnitudes of simultaneous wire and
// scintillation signals from noisy multi-channel frequency-domain waveforms.
//
// The estimate is the solution of a noise-weighted least-squares problem
// with one normalization constraint per signal. The system matrix is never
// materialized: it is applied implicitly as the sum of a block-diagonal
// noise-correlation term, a low-rank Poisson/gain coupling term on the APD
// channels, and the constraint rows. All signals of one event are advanced
// together by a Block-BiCGSTAB solver so that the dominant cost is wide
// dense matrix multiplies rather than many thin matrix-vector products.
//
// The package performs no file, network, or database I/O; noise
// correlations, model waveforms, light yields, and gains are supplied by
// the caller.
package refit

package main

import (
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
)

const (
	// Digitizer trace length and sampling period.
	numSamples   = 2048
	sampleTimeNS = 1000.0
	// Fourier bins actually used: f = 1..maxFreq, DC dropped.
	maxFreq = numSamples / 2

	// Wire templates are generated at higher bandwidth than the
	// digitizer, with the deposit landing at 256us into a 512us trace.
	bandwidthFactor   = 4
	templateLen       = 512 * bandwidthFactor
	templateStepNS    = sampleTimeNS / bandwidthFactor
	templateDepositNS = 256 * 1000.0

	// Drift between the shielding grid and the u-wire plane: 6 mm at the
	// collection drift velocity of 0.2041 cm/us.
	gridCrossingNS = 6.0 / (0.2041 * 10) * 1000.0

	// Peak of the induction template relative to the deposit template,
	// already averaged over the two neighboring channels.
	inductionAmplitude = 0.17
)

// TransferFunction is a cascade of RC integration and CR differentiation
// stages; times are in nanoseconds.
type TransferFunction struct {
	Integ []float64
	Diff  []float64
}

// Transform shapes a waveform sampled with period stepNS through every stage.
func (tf TransferFunction) Transform(wf []float64, stepNS float64) []float64 {
	out := make([]float64, len(wf))
	copy(out, wf)
	for _, tau := range tf.Integ {
		a := math.Exp(-stepNS / tau)
		prev := 0.0
		for i, v := range out {
			prev = a*prev + (1-a)*v
			out[i] = prev
		}
	}
	for _, tau := range tf.Diff {
		a := tau / (tau + stepNS)
		prev, prevIn := 0.0, 0.0
		for i, v := range out {
			prev = a * (prev + v - prevIn)
			prevIn = v
			out[i] = prev
		}
	}
	return out
}

// Gain is the peak response to a unit step, used to normalize shaped models.
func (tf TransferFunction) Gain(stepNS float64) float64 {
	step := make([]float64, templateLen)
	for i := templateLen / 4; i < templateLen; i++ {
		step[i] = 1
	}
	shaped := tf.Transform(step, stepNS)
	peak := 0.0
	for _, v := range shaped {
		if v > peak {
			peak = v
		}
	}
	return peak
}

// ModelBuilder turns deposit, induction and scintillation templates into
// the frequency-domain models the refit consumes. The wire templates are
// unshaped and unit-normalized; shaping is applied per channel.
type ModelBuilder struct {
	deposit   []float64
	induction []float64
	plan      *algofft.Plan[complex128]
	fftIn     []complex128
	fftOut    []complex128
}

func NewModelBuilder() (*ModelBuilder, error) {
	plan, err := algofft.NewPlan64(numSamples)
	if err != nil {
		return nil, fmt.Errorf("fft plan: %w", err)
	}
	mb := &ModelBuilder{
		plan:   plan,
		fftIn:  make([]complex128, numSamples),
		fftOut: make([]complex128, numSamples),
	}
	mb.deposit, mb.induction = wireTemplates()
	return mb, nil
}

// wireTemplates builds the unshaped collection and induction signals. The
// u-wires are shielded until the charge crosses the v-wire grid, so the
// collection signal rises only over the final grid crossing and steps to
// full charge; the induced signal on the neighbors returns to zero once the
// charge is collected.
func wireTemplates() (deposit, induction []float64) {
	deposit = make([]float64, templateLen)
	induction = make([]float64, templateLen)
	riseStartNS := templateDepositNS - gridCrossingNS
	for i := range deposit {
		t := float64(i) * templateStepNS
		switch {
		case t < riseStartNS:
		case t < templateDepositNS:
			frac := (t - riseStartNS) / gridCrossingNS
			deposit[i] = frac * frac
			induction[i] = 4 * inductionAmplitude * frac * (1 - frac)
		default:
			deposit[i] = 1
		}
	}
	return deposit, induction
}

// WireModel shapes a wire template through a channel's transfer function,
// places the deposit at timeNS within the trace, and packs the result as
// interleaved re/im Fourier coefficients for bins 1..1024 (the Nyquist bin
// contributes only its real part).
func (mb *ModelBuilder) WireModel(template []float64, tf TransferFunction, gain float64, timeNS float64) []float64 {
	shaped := tf.Transform(template, templateStepNS)
	for i := range shaped {
		shaped[i] /= gain
	}

	wf := make([]float64, numSamples)
	for i := range wf {
		relTime := sampleTimeNS*float64(i) - timeNS
		hb := int((templateDepositNS + relTime) / templateStepNS)
		if hb >= 0 && hb < len(shaped) {
			wf[i] = shaped[hb]
		}
	}
	return mb.fourierPack(wf)
}

// DepositTemplate and InductionTemplate expose the unshaped templates for
// use with WireModel.
func (mb *ModelBuilder) DepositTemplate() []float64   { return mb.deposit }
func (mb *ModelBuilder) InductionTemplate() []float64 { return mb.induction }

// Transfer function of the APD readout, common to all gangs.
func apdTransferFunction() TransferFunction {
	return TransferFunction{
		Integ: []float64{3000, 3000},
		Diff:  []float64{10000, 10000, 300000},
	}
}

// LightModel builds the expected scintillation signal for light arriving at
// timeNS, normalized so peak-baseline is 1, packed like WireModel output.
// It is generated in the time domain rather than phase-shifted in Fourier
// space so signals near the trace edges are handled correctly.
func (mb *ModelBuilder) LightModel(timeNS float64) []float64 {
	const refine = 5
	fine := make([]float64, numSamples*refine)
	fineStep := sampleTimeNS / refine
	start := int(timeNS / fineStep)
	if start < 0 {
		start = 0
	}
	for i := start; i < len(fine); i++ {
		fine[i] = 1
	}

	tf := apdTransferFunction()
	fine = tf.Transform(fine, fineStep)
	gain := tf.Gain(fineStep)

	wf := make([]float64, numSamples)
	for i := range wf {
		wf[i] = fine[i*refine] / gain
	}
	return mb.fourierPack(wf)
}

// PackWaveform transforms a measured trace into the interleaved
// frequency-domain form the refit consumes. The baseline only affects the
// dropped DC bin, so it does not need to be subtracted first.
func (mb *ModelBuilder) PackWaveform(wf []float64) []float64 {
	return mb.fourierPack(wf)
}

// fourierPack transforms a trace and interleaves re/im for bins 1..maxFreq,
// dropping DC and the identically-zero Nyquist imaginary part.
func (mb *ModelBuilder) fourierPack(wf []float64) []float64 {
	for i, v := range wf {
		mb.fftIn[i] = complex(v, 0)
	}
	if err := mb.plan.Forward(mb.fftOut, mb.fftIn); err != nil {
		panic(fmt.Sprintf("fft length mismatch: %v", err))
	}

	out := make([]float64, 2*maxFreq-1)
	for f := 1; f <= maxFreq; f++ {
		out[2*(f-1)] = real(mb.fftOut[f])
		if f != maxFreq {
			out[2*(f-1)+1] = imag(mb.fftOut[f])
		}
	}
	return out
}

package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferFunctionIntegratorTracksStep(t *testing.T) {
	tf := TransferFunction{Integ: []float64{1000}}
	step := make([]float64, 200)
	for i := range step {
		step[i] = 1
	}
	out := tf.Transform(step, 1000)
	assert.InDelta(t, 1.0, out[len(out)-1], 1e-6)
	assert.Less(t, out[0], 1.0)
}

func TestTransferFunctionDifferentiatorKillsDC(t *testing.T) {
	tf := TransferFunction{Diff: []float64{1000}}
	step := make([]float64, 200)
	for i := range step {
		step[i] = 1
	}
	out := tf.Transform(step, 1000)
	assert.InDelta(t, 0.0, out[len(out)-1], 1e-6)
}

func TestTransferFunctionGain(t *testing.T) {
	identity := TransferFunction{}
	assert.Equal(t, 1.0, identity.Gain(templateStepNS))

	shaped := defaultWireTransferFunction()
	gain := shaped.Gain(templateStepNS)
	assert.Greater(t, gain, 0.0)
	assert.Less(t, gain, 1.0)
}

func TestFourierPackDropsBaseline(t *testing.T) {
	mb, err := NewModelBuilder()
	require.NoError(t, err)

	flat := make([]float64, numSamples)
	for i := range flat {
		flat[i] = 1234.5
	}
	packed := mb.PackWaveform(flat)
	require.Len(t, packed, 2*maxFreq-1)
	for i, v := range packed {
		assert.InDeltaf(t, 0.0, v, 1e-6, "entry %d", i)
	}
}

func TestFourierPackIsolatesSingleBin(t *testing.T) {
	mb, err := NewModelBuilder()
	require.NoError(t, err)

	const bin = 7
	wf := make([]float64, numSamples)
	for i := range wf {
		wf[i] = math.Cos(2 * math.Pi * bin * float64(i) / numSamples)
	}
	packed := mb.PackWaveform(wf)

	peak := 0
	for i := range packed {
		if math.Abs(packed[i]) > math.Abs(packed[peak]) {
			peak = i
		}
	}
	assert.Equal(t, 2*(bin-1), peak)
	assert.InDelta(t, 0.0, packed[2*(bin-1)+1], 1e-6)
}

func TestWireTemplateShapes(t *testing.T) {
	deposit, induction := wireTemplates()
	require.Len(t, deposit, templateLen)
	require.Len(t, induction, templateLen)

	depositSample := int(templateDepositNS / templateStepNS)
	riseStartNS := templateDepositNS - gridCrossingNS
	riseStart := int(riseStartNS / templateStepNS)

	assert.Equal(t, 0.0, deposit[riseStart-1])
	assert.Equal(t, 0.0, induction[riseStart-1])
	assert.Equal(t, 1.0, deposit[depositSample])
	assert.Equal(t, 1.0, deposit[templateLen-1])
	assert.Equal(t, 0.0, induction[depositSample])

	peak := 0.0
	for _, v := range induction {
		if v > peak {
			peak = v
		}
	}
	assert.InDelta(t, inductionAmplitude, peak, 0.02)
}

func TestWireModelDimensions(t *testing.T) {
	mb, err := NewModelBuilder()
	require.NoError(t, err)

	tf := defaultWireTransferFunction()
	model := mb.WireModel(mb.DepositTemplate(), tf, tf.Gain(templateStepNS), 256*1000.0)
	require.Len(t, model, 2*maxFreq-1)

	nonzero := false
	for _, v := range model {
		if v != 0 {
			nonzero = true
			break
		}
	}
	assert.True(t, nonzero)
}

func TestLightModelDimensions(t *testing.T) {
	mb, err := NewModelBuilder()
	require.NoError(t, err)

	model := mb.LightModel(1024 * 1000.0)
	require.Len(t, model, 2*maxFreq-1)

	nonzero := false
	for _, v := range model {
		if v != 0 {
			nonzero = true
			break
		}
	}
	assert.True(t, nonzero)
}

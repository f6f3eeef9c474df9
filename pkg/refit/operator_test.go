package refit

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func testOperator(t *testing.T) (*Operator, Layout) {
	t.Helper()
	cs := ChannelSet{IDs: []uint16{10, 11, 52, 53}, FirstAPD: 2}
	store := NewNoiseStore(3)
	require.NoError(t, store.Update(cs, fakeNoise{}))

	wires := []WireSignal{
		{
			Channel: 10,
			Models: map[uint16][]float64{
				10: {1.0, 0.5, -0.3, 0.2, 0.8},
				11: {0.2, 0.1, -0.05, 0.04, 0.15}, // induction neighbor
			},
		},
		{
			Channel: 11,
			Models: map[uint16][]float64{
				11: {0.7, -0.4, 0.5, 0.1, -0.6},
			},
		},
	}
	light := LightSignal{
		Model: []float64{1.0, 0.2, 0.4, -0.1, 0.3},
		Yield: map[uint16]float64{52: 300, 53: 150},
	}
	layout := Layout{Channels: cs, NumFreqs: 3, NumWires: len(wires)}
	gain := func(uint16) float64 { return 0.01 }
	return NewOperator(layout, store, wires, light, gain, 0.5), layout
}

func TestOperatorZeroInput(t *testing.T) {
	op, l := testOperator(t)
	x := mat.NewDense(l.ColumnLength(), 1, nil)
	dst := mat.NewDense(l.ColumnLength(), 1, nil)

	op.Apply(dst, x)
	for _, v := range rawData(dst) {
		assert.Zero(t, v)
	}
}

func TestOperatorSymmetric(t *testing.T) {
	op, l := testOperator(t)
	rng := rand.New(rand.NewSource(1))
	n := l.ColumnLength()

	for trial := 0; trial < 5; trial++ {
		x := mat.NewDense(n, 1, nil)
		y := mat.NewDense(n, 1, nil)
		for i := 0; i < n; i++ {
			x.Set(i, 0, rng.NormFloat64())
			y.Set(i, 0, rng.NormFloat64())
		}
		ax := mat.NewDense(n, 1, nil)
		ay := mat.NewDense(n, 1, nil)
		op.Apply(ax, x)
		op.Apply(ay, y)

		lhs := floats.Dot(rawData(ax), rawData(y))
		rhs := floats.Dot(rawData(x), rawData(ay))
		assert.InEpsilon(t, lhs, rhs, 1e-9)
	}
}

func TestNoiseTermSymmetric(t *testing.T) {
	op, l := testOperator(t)
	n := l.ColumnLength()

	probe := func(i, j int) float64 {
		x := mat.NewDense(n, 1, nil)
		x.Set(j, 0, 1)
		dst := mat.NewDense(n, 1, nil)
		op.noiseTerm(dst, x)
		return dst.At(i, 0)
	}

	pairs := [][2]int{{0, 1}, {0, 7}, {3, 12}, {16, 18}, {5, 5}}
	for _, p := range pairs {
		assert.Equal(t, probe(p[0], p[1]), probe(p[1], p[0]), "rows %v", p)
	}
}

func TestPoissonTermOnlyTouchesAPDRows(t *testing.T) {
	op, l := testOperator(t)
	n := l.ColumnLength()
	rng := rand.New(rand.NewSource(7))

	x := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, rng.NormFloat64())
	}
	dst := mat.NewDense(n, 1, nil)
	op.poissonTerm(dst, x)

	apdRows := map[int]bool{}
	for k := l.Channels.FirstAPD; k < l.Channels.Len(); k++ {
		for f := 0; f < l.NumFreqs; f++ {
			apdRows[l.Row(f, k, 0)] = true
			if f < l.NumFreqs-1 {
				apdRows[l.Row(f, k, 1)] = true
			}
		}
	}
	for i := 0; i < n; i++ {
		if !apdRows[i] {
			assert.Zero(t, dst.At(i, 0), "row %d", i)
		}
	}
}

func TestConstraintTermPlacement(t *testing.T) {
	op, l := testOperator(t)
	n := l.ColumnLength()

	// A unit value on wire 0's Lagrange row scatters that wire's models
	// into its channels' frequency rows.
	x := mat.NewDense(n, 1, nil)
	x.Set(l.ConstraintRow(0), 0, 1)
	dst := mat.NewDense(n, 1, nil)
	op.constraintTerm(dst, x)

	c10 := 0
	model := op.wires[0].Models[10]
	assert.Equal(t, model[0], dst.At(l.Row(0, c10, 0), 0))
	assert.Equal(t, model[1], dst.At(l.Row(0, c10, 1), 0))
	assert.Equal(t, model[4], dst.At(l.Row(2, c10, 0), 0))
	assert.Zero(t, dst.At(l.LightConstraintRow(), 0))

	// A unit value on the light Lagrange row scatters the light model into
	// every gang's rows, weighted by the gang's expected yield.
	x.Zero()
	x.Set(l.LightConstraintRow(), 0, 1)
	dst.Zero()
	op.constraintTerm(dst, x)

	lm := op.light.Model
	assert.Equal(t, 300*lm[0], dst.At(l.Row(0, 2, 0), 0))
	assert.Equal(t, 150*lm[3], dst.At(l.Row(1, 3, 1), 0))
	assert.Zero(t, dst.At(l.Row(0, 0, 0), 0), "wire channels untouched")

	// Mirrored placement: a unit value on a frequency row of channel 10
	// lands on wire 0's Lagrange row with the model weight.
	x.Zero()
	x.Set(l.Row(1, c10, 0), 0, 1)
	dst.Zero()
	op.constraintTerm(dst, x)
	assert.Equal(t, model[2], dst.At(l.ConstraintRow(0), 0))
}

func TestOperatorUnknownChannelPanics(t *testing.T) {
	cs := ChannelSet{IDs: []uint16{10, 52}, FirstAPD: 1}
	store := NewNoiseStore(3)
	require.NoError(t, store.Update(cs, fakeNoise{}))

	wires := []WireSignal{{
		Channel: 10,
		Models:  map[uint16][]float64{33: {1, 0, 0, 0, 0}},
	}}
	light := LightSignal{Model: []float64{1, 0, 0, 0, 0}, Yield: map[uint16]float64{52: 10}}
	layout := Layout{Channels: cs, NumFreqs: 3, NumWires: 1}

	assert.Panics(t, func() {
		NewOperator(layout, store, wires, light, func(uint16) float64 { return 1 }, 1)
	})
}

package refit

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Operator applies the implicit system matrix of one event to a set of
// columns packed as a dense matrix. The matrix is the sum of three terms,
// each with its own access pattern:
//
//   - the noise term, block-diagonal across frequency bins (the dominant
//     cost, one dense multiply per bin);
//   - the Poisson term, a rank-one correction per APD gang coupling all of
//     the gang's frequency rows through the light model;
//   - the constraint term, mirroring each signal's model rows into its
//     Lagrange row and back.
//
// All three placements are symmetric, so the whole operator is symmetric.
type Operator struct {
	layout Layout
	noise  *NoiseStore
	wires  []WireSignal
	light  LightSignal

	// wireIdx caches the channel index of every wire model channel, in the
	// iteration order of wireChans.
	wireChans [][]uint16
	wireIdx   [][]int

	// apdFactor holds, per APD position (index - FirstAPD), the scale of
	// the Poisson term: expected energy fraction x gang gain x yield.
	apdFactor []float64

	mulBuf []float64 // scratch for the per-bin noise multiplies
}

// NewOperator assembles the operator for one event. energyScale is the
// event's expected energy divided by the calibration-point energy; gain
// supplies the per-gang photon gain at the event time.
//
// A model or yield referencing a channel outside the layout's channel set
// is an invariant violation and panics.
func NewOperator(layout Layout, noise *NoiseStore, wires []WireSignal, light LightSignal, gain GainFunc, energyScale float64) *Operator {
	op := &Operator{
		layout: layout,
		noise:  noise,
		wires:  wires,
		light:  light,
	}

	op.wireChans = make([][]uint16, len(wires))
	op.wireIdx = make([][]int, len(wires))
	for m, wire := range wires {
		for ch := range wire.Models {
			op.wireChans[m] = append(op.wireChans[m], ch)
			op.wireIdx[m] = append(op.wireIdx[m], mustChannelIndex(layout.Channels, ch))
		}
	}

	cs := layout.Channels
	op.apdFactor = make([]float64, cs.Len()-cs.FirstAPD)
	for k := cs.FirstAPD; k < cs.Len(); k++ {
		id := cs.IDs[k]
		op.apdFactor[k-cs.FirstAPD] = energyScale * gain(id) * light.Yield[id]
	}

	maxBlock := layout.BlockSize(0)
	op.mulBuf = make([]float64, maxBlock*layout.NumSignals())
	return op
}

func mustChannelIndex(cs ChannelSet, id uint16) int {
	i, ok := cs.Index(id)
	if !ok {
		panic(fmt.Sprintf("refit: channel %d not in channel set", id))
	}
	return i
}

// Apply computes dst = A*x. dst and x must both be ColumnLength rows by
// NumSignals columns; dst is zeroed before the terms accumulate.
func (op *Operator) Apply(dst, x *mat.Dense) {
	dst.Zero()
	op.noiseTerm(dst, x)
	op.poissonTerm(dst, x)
	op.constraintTerm(dst, x)
}

// noiseTerm adds the block-diagonal noise-correlation contribution: for
// each frequency bin, the bin's rows of every column are left-multiplied by
// the bin's symmetric correlation block.
func (op *Operator) noiseTerm(dst, x *mat.Dense) {
	_, cols := x.Dims()
	for f := 0; f < op.layout.NumFreqs; f++ {
		start := op.layout.BlockStart(f)
		size := op.layout.BlockSize(f)
		xv := x.Slice(start, start+size, 0, cols)
		dv := dst.Slice(start, start+size, 0, cols).(*mat.Dense)
		prod := mat.NewDense(size, cols, op.mulBuf[:size*cols])
		prod.Mul(op.noise.Block(f), xv)
		dv.Add(dv, prod)
	}
}

// poissonTerm adds the shot-noise coupling on the APD gangs: for gang k and
// column n, one scalar (the light-model-weighted sum of the column's rows
// for k, scaled by the gang's Poisson factor) is scattered back across all
// of k's rows, again weighted by the light model. Rank one per gang; no
// explicit matrix is formed.
func (op *Operator) poissonTerm(dst, x *mat.Dense) {
	_, cols := x.Dims()
	l := op.layout
	model := op.light.Model
	for k := l.Channels.FirstAPD; k < l.Channels.Len(); k++ {
		factor := op.apdFactor[k-l.Channels.FirstAPD]
		for n := 0; n < cols; n++ {
			common := 0.0
			for f := 0; f < l.NumFreqs; f++ {
				row := l.Row(f, k, 0)
				common += model[2*f] * x.At(row, n)
				if f < l.NumFreqs-1 {
					common += model[2*f+1] * x.At(row+1, n)
				}
			}
			common *= factor

			for f := 0; f < l.NumFreqs; f++ {
				row := l.Row(f, k, 0)
				dst.Set(row, n, dst.At(row, n)+common*model[2*f])
				if f < l.NumFreqs-1 {
					dst.Set(row+1, n, dst.At(row+1, n)+common*model[2*f+1])
				}
			}
		}
	}
}

// constraintTerm adds the Lagrange rows and columns: each wire signal's
// model rows couple symmetrically with its own constraint row, and every
// APD gang's rows couple with the light constraint row weighted by the
// gang's expected yield.
func (op *Operator) constraintTerm(dst, x *mat.Dense) {
	_, cols := x.Dims()
	l := op.layout

	for m, wire := range op.wires {
		cRow := l.ConstraintRow(m)
		for i, ch := range op.wireChans[m] {
			c := op.wireIdx[m][i]
			model := wire.Models[ch]
			for f := 0; f < l.NumFreqs; f++ {
				row := l.Row(f, c, 0)
				re := model[2*f]
				for n := 0; n < cols; n++ {
					dst.Set(row, n, dst.At(row, n)+re*x.At(cRow, n))
					dst.Set(cRow, n, dst.At(cRow, n)+re*x.At(row, n))
				}
				if f < l.NumFreqs-1 {
					im := model[2*f+1]
					for n := 0; n < cols; n++ {
						dst.Set(row+1, n, dst.At(row+1, n)+im*x.At(cRow, n))
						dst.Set(cRow, n, dst.At(cRow, n)+im*x.At(row+1, n))
					}
				}
			}
		}
	}

	cRow := l.LightConstraintRow()
	model := op.light.Model
	for k := l.Channels.FirstAPD; k < l.Channels.Len(); k++ {
		yield := op.light.Yield[l.Channels.IDs[k]]
		for f := 0; f < l.NumFreqs; f++ {
			row := l.Row(f, k, 0)
			re := yield * model[2*f]
			for n := 0; n < cols; n++ {
				dst.Set(row, n, dst.At(row, n)+re*x.At(cRow, n))
				dst.Set(cRow, n, dst.At(cRow, n)+re*x.At(row, n))
			}
			if f < l.NumFreqs-1 {
				im := yield * model[2*f+1]
				for n := 0; n < cols; n++ {
					dst.Set(row+1, n, dst.At(row+1, n)+im*x.At(cRow, n))
					dst.Set(cRow, n, dst.At(cRow, n)+im*x.At(row+1, n))
				}
			}
		}
	}
}

package refit

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// InitialGuess builds a starting point for the solver by approximating each
// signal's least-squares answer in isolation: cross-signal and constraint
// coupling are ignored and the noise blocks are replaced by their
// diagonals. Each wire column gets its own model divided by the squared
// diagonal noise, normalized so the inverse-noise-weighted model sums to
// the constraint value of 1; the light column is weighted by the expected
// per-gang yields instead. The Lagrange rows stay at zero -- there is no
// cheap estimate for them, and the solver tolerates that.
func InitialGuess(l Layout, noise *NoiseStore, wires []WireSignal, light LightSignal) *mat.Dense {
	x := mat.NewDense(l.ColumnLength(), l.NumSignals(), nil)

	for i, wire := range wires {
		model := wire.Models[wire.Channel]
		c := mustChannelIndex(l.Channels, wire.Channel)

		norm := floats.Dot(model, model)
		sumSqNoise := 0.0
		for f := 0; f < l.NumFreqs; f++ {
			re := noise.Diagonal(f, c, 0)
			sumSqNoise += 1 / (re * re)
			if f < l.NumFreqs-1 {
				im := noise.Diagonal(f, c, 1)
				sumSqNoise += 1 / (im * im)
			}
		}
		norm *= sumSqNoise

		for f := 0; f < l.NumFreqs; f++ {
			row := l.Row(f, c, 0)
			re := noise.Diagonal(f, c, 0)
			x.Set(row, i, model[2*f]/(re*re*norm))
			if f < l.NumFreqs-1 {
				im := noise.Diagonal(f, c, 1)
				x.Set(row+1, i, model[2*f+1]/(im*im*norm))
			}
		}
	}

	lightCol := l.NumWires
	normModel := floats.Dot(light.Model, light.Model)
	sumSqYield := 0.0
	for k := l.Channels.FirstAPD; k < l.Channels.Len(); k++ {
		y := light.Yield[l.Channels.IDs[k]]
		sumSqYield += y * y
	}
	for k := l.Channels.FirstAPD; k < l.Channels.Len(); k++ {
		lead := light.Yield[l.Channels.IDs[k]] / (sumSqYield * normModel)
		for f := 0; f < l.NumFreqs; f++ {
			row := l.Row(f, k, 0)
			x.Set(row, lightCol, lead*light.Model[2*f])
			if f < l.NumFreqs-1 {
				x.Set(row+1, lightCol, lead*light.Model[2*f+1])
			}
		}
	}

	return x
}

package refit

import (
	"gonum.org/v1/gonum/mat"
)

// NoiseSource exposes the channel-channel noise correlations of a stored
// noise model. Indices a and b are channel identifiers; f is a frequency
// bin. RR and II must be symmetric in (a, b); RI(f, a, b) correlates the
// real part of a with the imaginary part of b.
type NoiseSource interface {
	HasChannel(id uint16) bool
	RR(f int, a, b uint16) float64
	RI(f int, a, b uint16) float64
	II(f int, a, b uint16) float64
}

// NoiseStore holds one dense symmetric correlation block per frequency bin,
// repacked in the row ordering of a Layout so that the operator's dominant
// term is a straight dense multiply per bin.
//
// Repacking is memoized against the channel set: Update is a no-op while
// the set of reporting channels is unchanged, which amortizes the rebuild
// across many events.
type NoiseStore struct {
	numFreqs int
	channels ChannelSet
	blocks   []*mat.SymDense
}

func NewNoiseStore(numFreqs int) *NoiseStore {
	return &NoiseStore{numFreqs: numFreqs}
}

// NumFreqs returns the number of frequency bins the store carries.
func (s *NoiseStore) NumFreqs() int { return s.numFreqs }

// Channels returns the channel set the current blocks were built for.
func (s *NoiseStore) Channels() ChannelSet { return s.channels }

// Update rebuilds the correlation blocks for cs unless they are already
// built for an identical channel set. A channel missing from the source is
// a detector misconfiguration and is returned as an error.
func (s *NoiseStore) Update(cs ChannelSet, src NoiseSource) error {
	if s.blocks != nil && s.channels.Equal(cs) {
		return nil
	}
	for _, id := range cs.IDs {
		if !src.HasChannel(id) {
			return &ErrUnknownChannel{Channel: id}
		}
	}

	layout := Layout{Channels: cs, NumFreqs: s.numFreqs}
	blocks := make([]*mat.SymDense, s.numFreqs)
	for f := 0; f < s.numFreqs; f++ {
		dim := layout.BlockSize(f)
		stride := layout.Stride(f)
		block := mat.NewSymDense(dim, nil)
		for i := 0; i < cs.Len(); i++ {
			for j := i; j < cs.Len(); j++ {
				a, b := cs.IDs[i], cs.IDs[j]
				block.SetSym(i*stride, j*stride, src.RR(f, a, b))
				if stride == 2 {
					block.SetSym(i*stride+1, j*stride+1, src.II(f, a, b))
					block.SetSym(i*stride, j*stride+1, src.RI(f, a, b))
					if i != j {
						block.SetSym(i*stride+1, j*stride, src.RI(f, b, a))
					}
				}
			}
		}
		blocks[f] = block
	}

	s.channels = cs
	s.blocks = blocks
	return nil
}

// Block returns the correlation block of frequency bin f.
func (s *NoiseStore) Block(f int) *mat.SymDense { return s.blocks[f] }

// Diagonal returns the noise value on the diagonal row of (f, channel
// index c, part). Used by the initial guess as a cheap stand-in for the
// full inverse.
func (s *NoiseStore) Diagonal(f, c, part int) float64 {
	stride := 2
	if f == s.numFreqs-1 {
		stride = 1
	}
	return s.blocks[f].At(c*stride+part, c*stride+part)
}

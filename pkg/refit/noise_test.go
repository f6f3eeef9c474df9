package refit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// diagNoise is a noise model with uncorrelated channels of equal variance.
type diagNoise struct {
	value float64
}

func (d diagNoise) HasChannel(uint16) bool { return true }

func (d diagNoise) RR(f int, a, b uint16) float64 {
	if a == b {
		return d.value
	}
	return 0
}

func (d diagNoise) II(f int, a, b uint16) float64 { return d.RR(f, a, b) }
func (d diagNoise) RI(f int, a, b uint16) float64 { return 0 }

// fakeNoise produces distinct, reproducible values per entry so packing can
// be checked position by position.
type fakeNoise struct{}

func (fakeNoise) HasChannel(id uint16) bool { return id < 60 }

func (fakeNoise) RR(f int, a, b uint16) float64 {
	return float64(a)*float64(b) + float64(f)
}

func (fakeNoise) II(f int, a, b uint16) float64 {
	return 2*float64(a)*float64(b) + float64(f)
}

func (fakeNoise) RI(f int, a, b uint16) float64 {
	return 10*float64(a) + float64(b)
}

func TestNoiseStorePacking(t *testing.T) {
	cs := ChannelSet{IDs: []uint16{10, 11, 52}, FirstAPD: 2}
	store := NewNoiseStore(3)
	require.NoError(t, store.Update(cs, fakeNoise{}))

	src := fakeNoise{}
	for f := 0; f < 2; f++ {
		block := store.Block(f)
		r, _ := block.Dims()
		require.Equal(t, 6, r)
		for i, a := range cs.IDs {
			for j, b := range cs.IDs {
				assert.Equal(t, src.RR(f, a, b), block.At(2*i, 2*j), "RR f=%d", f)
				assert.Equal(t, src.II(f, a, b), block.At(2*i+1, 2*j+1), "II f=%d", f)
				assert.Equal(t, src.RI(f, a, b), block.At(2*i, 2*j+1), "RI f=%d", f)
				assert.Equal(t, src.RI(f, b, a), block.At(2*i+1, 2*j), "RI mirror f=%d", f)
			}
		}
	}

	// The last bin carries real parts only.
	last := store.Block(2)
	r, _ := last.Dims()
	require.Equal(t, 3, r)
	for i, a := range cs.IDs {
		for j, b := range cs.IDs {
			assert.Equal(t, src.RR(2, a, b), last.At(i, j))
		}
	}
}

func TestNoiseStoreMemoized(t *testing.T) {
	cs := ChannelSet{IDs: []uint16{10, 11, 52}, FirstAPD: 2}
	store := NewNoiseStore(3)
	require.NoError(t, store.Update(cs, fakeNoise{}))
	first := store.Block(0)

	// Same channel configuration: nothing is rebuilt.
	require.NoError(t, store.Update(cs, fakeNoise{}))
	assert.Same(t, first, store.Block(0))

	// A changed configuration invalidates the cache.
	grown := ChannelSet{IDs: []uint16{10, 11, 12, 52}, FirstAPD: 3}
	require.NoError(t, store.Update(grown, fakeNoise{}))
	assert.NotSame(t, first, store.Block(0))
	r, _ := store.Block(0).Dims()
	assert.Equal(t, 8, r)
}

func TestNoiseStoreUnknownChannel(t *testing.T) {
	cs := ChannelSet{IDs: []uint16{10, 99}, FirstAPD: 1}
	store := NewNoiseStore(3)
	err := store.Update(cs, fakeNoise{})
	require.Error(t, err)

	var unknown *ErrUnknownChannel
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, uint16(99), unknown.Channel)
}

func TestNoiseStoreDiagonal(t *testing.T) {
	cs := ChannelSet{IDs: []uint16{10, 11, 52}, FirstAPD: 2}
	store := NewNoiseStore(3)
	require.NoError(t, store.Update(cs, fakeNoise{}))

	src := fakeNoise{}
	assert.Equal(t, src.RR(1, 11, 11), store.Diagonal(1, 1, 0))
	assert.Equal(t, src.II(1, 11, 11), store.Diagonal(1, 1, 1))
	assert.Equal(t, src.RR(2, 52, 52), store.Diagonal(2, 2, 0))
}

package main

import (
	"fmt"

	"github.com/jmbenlloch/go-hdf5"
)

// NoiseCorrelations holds the measured noise correlations between channel
// waveforms, per frequency bin. It satisfies refit.NoiseSource.
//
// File layout: a "channels" dataset lists the channels the correlations
// were measured on; "rr", "ri" and "ii" are [nfreq][nchan][nchan] datasets
// holding <re_a re_b>, <re_a im_b> and <im_a im_b> respectively. "rr" and
// "ii" are symmetric in (a, b); "ri" is not.
type NoiseCorrelations struct {
	index      map[uint16]int
	nchan      int
	numFreqs   int
	rr, ri, ii []float64
}

func LoadNoiseCorrelations(fname string, numFreqs int) (*NoiseCorrelations, error) {
	f, err := hdf5.OpenFile(fname, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	channels, err := readInt32Dataset(f, "channels")
	if err != nil {
		return nil, err
	}
	nc := &NoiseCorrelations{
		index:    make(map[uint16]int, len(channels)),
		nchan:    len(channels),
		numFreqs: numFreqs,
	}
	for i, ch := range channels {
		nc.index[uint16(ch)] = i
	}

	for _, name := range []string{"rr", "ri", "ii"} {
		data, dims, err := readFloat64Dataset(f, name)
		if err != nil {
			return nil, err
		}
		if len(dims) != 3 || int(dims[0]) != numFreqs ||
			int(dims[1]) != nc.nchan || int(dims[2]) != nc.nchan {
			return nil, fmt.Errorf("%s: dims %v, want [%d %d %d]",
				name, dims, numFreqs, nc.nchan, nc.nchan)
		}
		switch name {
		case "rr":
			nc.rr = data
		case "ri":
			nc.ri = data
		case "ii":
			nc.ii = data
		}
	}
	return nc, nil
}

func (nc *NoiseCorrelations) HasChannel(channel uint16) bool {
	_, ok := nc.index[channel]
	return ok
}

func (nc *NoiseCorrelations) at(data []float64, f int, a, b uint16) float64 {
	i := nc.index[a]
	j := nc.index[b]
	return data[(f*nc.nchan+i)*nc.nchan+j]
}

func (nc *NoiseCorrelations) RR(f int, a, b uint16) float64 { return nc.at(nc.rr, f, a, b) }
func (nc *NoiseCorrelations) RI(f int, a, b uint16) float64 { return nc.at(nc.ri, f, a, b) }
func (nc *NoiseCorrelations) II(f int, a, b uint16) float64 { return nc.at(nc.ii, f, a, b) }

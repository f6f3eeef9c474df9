package main

import (
	"fmt"

	"github.com/jmbenlloch/go-hdf5"
)

// Lightmap holds the position-dependent light collection efficiency of each
// APD gang, plus the gainmap giving its time dependence.
//
// File layout: an "apds" dataset lists the active gangs; "xbins", "ybins"
// and "zbins" hold the bin centers of the position grid (shared by all
// gangs); each gang has a 3D "lightmap_NNN" dataset on that grid and a
// 2 x N "gainmap_NNN" dataset of (time, value) pairs.
type Lightmap struct {
	gangs               []uint16
	xbins, ybins, zbins []float64
	maps                map[uint16][]float64 // flattened [x][y][z]
	gainTimes           map[uint16][]float64
	gainValues          map[uint16][]float64
}

func LoadLightmap(fname string) (*Lightmap, error) {
	f, err := hdf5.OpenFile(fname, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lm := &Lightmap{
		maps:       make(map[uint16][]float64),
		gainTimes:  make(map[uint16][]float64),
		gainValues: make(map[uint16][]float64),
	}

	apds, err := readInt32Dataset(f, "apds")
	if err != nil {
		return nil, err
	}
	for _, gang := range apds {
		lm.gangs = append(lm.gangs, uint16(gang))
	}

	if lm.xbins, _, err = readFloat64Dataset(f, "xbins"); err != nil {
		return nil, err
	}
	if lm.ybins, _, err = readFloat64Dataset(f, "ybins"); err != nil {
		return nil, err
	}
	if lm.zbins, _, err = readFloat64Dataset(f, "zbins"); err != nil {
		return nil, err
	}

	for _, gang := range lm.gangs {
		name := fmt.Sprintf("lightmap_%03d", gang)
		data, dims, err := readFloat64Dataset(f, name)
		if err != nil {
			return nil, err
		}
		if len(dims) != 3 || int(dims[0]) != len(lm.xbins) ||
			int(dims[1]) != len(lm.ybins) || int(dims[2]) != len(lm.zbins) {
			return nil, fmt.Errorf("%s: dims %v do not match bin axes", name, dims)
		}
		lm.maps[gang] = data

		name = fmt.Sprintf("gainmap_%03d", gang)
		data, dims, err = readFloat64Dataset(f, name)
		if err != nil {
			return nil, err
		}
		if len(dims) != 2 || dims[0] != 2 || dims[1] < 2 {
			return nil, fmt.Errorf("%s: expected 2 x N dataset, got dims %v", name, dims)
		}
		n := int(dims[1])
		lm.gainTimes[gang] = data[:n]
		lm.gainValues[gang] = data[n:]
	}
	return lm, nil
}

func readFloat64Dataset(f *hdf5.File, name string) ([]float64, []uint, error) {
	dset, err := f.OpenDataset(name)
	if err != nil {
		return nil, nil, err
	}
	defer dset.Close()

	dims, _, err := dset.Space().SimpleExtentDims()
	if err != nil {
		return nil, nil, err
	}
	size := uint(1)
	for _, d := range dims {
		size *= d
	}
	data := make([]float64, size)
	if err := dset.Read(&data); err != nil {
		return nil, nil, err
	}
	return data, dims, nil
}

func readInt32Dataset(f *hdf5.File, name string) ([]int32, error) {
	dset, err := f.OpenDataset(name)
	if err != nil {
		return nil, err
	}
	defer dset.Close()

	dims, _, err := dset.Space().SimpleExtentDims()
	if err != nil {
		return nil, err
	}
	size := uint(1)
	for _, d := range dims {
		size *= d
	}
	data := make([]int32, size)
	if err := dset.Read(&data); err != nil {
		return nil, err
	}
	return data, nil
}

// Gangs returns the active APD gangs listed in the lightmap file.
func (lm *Lightmap) Gangs() []uint16 { return lm.gangs }

// YieldAt interpolates the light collected by a gang for a deposit at
// (x, y, z), per unit gainmap. Positions outside the range spanned by the
// outermost bin centers yield zero.
func (lm *Lightmap) YieldAt(gang uint16, x, y, z float64) float64 {
	data, ok := lm.maps[gang]
	if !ok {
		return 0
	}
	ix, fx, ok := locateBin(lm.xbins, x)
	if !ok {
		return 0
	}
	iy, fy, ok := locateBin(lm.ybins, y)
	if !ok {
		return 0
	}
	iz, fz, ok := locateBin(lm.zbins, z)
	if !ok {
		return 0
	}

	ny, nz := len(lm.ybins), len(lm.zbins)
	at := func(i, j, k int) float64 { return data[(i*ny+j)*nz+k] }

	// Trilinear interpolation between the eight surrounding bin centers.
	c00 := at(ix, iy, iz)*(1-fx) + at(ix+1, iy, iz)*fx
	c01 := at(ix, iy, iz+1)*(1-fx) + at(ix+1, iy, iz+1)*fx
	c10 := at(ix, iy+1, iz)*(1-fx) + at(ix+1, iy+1, iz)*fx
	c11 := at(ix, iy+1, iz+1)*(1-fx) + at(ix+1, iy+1, iz+1)*fx
	c0 := c00*(1-fy) + c10*fy
	c1 := c01*(1-fy) + c11*fy
	return c0*(1-fz) + c1*fz
}

// locateBin finds the axis interval containing v and the fractional position
// within it. Values outside [centers[0], centers[last]) are out of range.
func locateBin(centers []float64, v float64) (int, float64, bool) {
	n := len(centers)
	if v < centers[0] || v >= centers[n-1] {
		return 0, 0, false
	}
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if centers[mid] <= v {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo, (v - centers[lo]) / (centers[lo+1] - centers[lo]), true
}

// GainAt evaluates the gainmap of a gang at the given unix time, with linear
// interpolation between points and linear extrapolation from the end
// segments.
func (lm *Lightmap) GainAt(gang uint16, unixTime float64) float64 {
	times, ok := lm.gainTimes[gang]
	if !ok {
		return 0
	}
	values := lm.gainValues[gang]
	n := len(times)

	i := 0
	switch {
	case unixTime <= times[0]:
		i = 0
	case unixTime >= times[n-1]:
		i = n - 2
	default:
		lo, hi := 0, n-1
		for hi-lo > 1 {
			mid := (lo + hi) / 2
			if times[mid] <= unixTime {
				lo = mid
			} else {
				hi = mid
			}
		}
		i = lo
	}
	frac := (unixTime - times[i]) / (times[i+1] - times[i])
	return values[i]*(1-frac) + values[i+1]*frac
}

// ExpectedYields estimates the light each gang should collect from a set of
// charge clusters, normalized so a magnitude of 1 corresponds to a deposit
// of totalEnergy keV.
func (lm *Lightmap) ExpectedYields(clusters []ChargeCluster, totalEnergy float64, unixTime float64) map[uint16]float64 {
	yields := make(map[uint16]float64, len(lm.gangs))
	for _, gang := range lm.gangs {
		yields[gang] = 0
	}
	for _, clu := range clusters {
		for _, gang := range lm.gangs {
			gainVal := lm.GainAt(gang, unixTime)
			yields[gang] += lm.YieldAt(gang, clu.X, clu.Y, clu.Z) * gainVal * clu.Energy
		}
	}
	for gang := range yields {
		yields[gang] /= totalEnergy
	}
	return yields
}

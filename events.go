package main

import (
	"fmt"
	"log/slog"

	"github.com/jmbenlloch/go-hdf5"
)

// ChargeCluster is a fully reconstructed charge deposit.
type ChargeCluster struct {
	X, Y, Z   float64 // mm
	Energy    float64 // purity-corrected energy, keV
	DriftTime float64 // ns
}

// UWireHit is a collection signal found on a u-wire channel. Cluster is the
// index of the charge cluster the signal belongs to.
type UWireHit struct {
	Channel uint16
	TimeNS  float64
	Cluster int
}

// InputEvent is one detector event as stored in the input file.
type InputEvent struct {
	Number      int
	UnixTime    float64
	SampleCount int
	ScintCount  int
	ScintTimeNS float64
	Channels    []uint16
	Waveforms   map[uint16][]float64 // raw ADC traces, baseline included
	Clusters    []ChargeCluster
	Wires       []UWireHit
}

// Per-event group layout in the input file:
//
//	evt_NNNNNNN/info      [5]float64: unix time, scint time (ns),
//	                      scintillation cluster count, sample count,
//	                      event number
//	evt_NNNNNNN/channels  [nchan]int32 reporting channels, wires first
//	evt_NNNNNNN/waveforms [nchan][nsamples]int16 ADC traces
//	evt_NNNNNNN/clusters  [ncl][5]float64: x, y, z, energy, drift time
//	evt_NNNNNNN/uwires    [nw][3]float64: channel, signal time (ns),
//	                      charge cluster index
//
// A top-level "event_numbers" dataset lists the events in file order.

func readEvent(f *hdf5.File, number int) (*InputEvent, error) {
	g, err := f.OpenGroup(fmt.Sprintf("evt_%07d", number))
	if err != nil {
		return nil, err
	}
	defer g.Close()

	info, _, err := readGroupFloat64(g, "info")
	if err != nil {
		return nil, err
	}
	if len(info) != 5 {
		return nil, fmt.Errorf("event %d: info has %d entries, want 5", number, len(info))
	}
	ev := &InputEvent{
		Number:      number,
		UnixTime:    info[0],
		ScintTimeNS: info[1],
		ScintCount:  int(info[2]),
		SampleCount: int(info[3]),
	}

	channels, err := readGroupInt32(g, "channels")
	if err != nil {
		return nil, err
	}
	for _, ch := range channels {
		ev.Channels = append(ev.Channels, uint16(ch))
	}

	raw, dims, err := readGroupInt16(g, "waveforms")
	if err != nil {
		return nil, err
	}
	if len(dims) != 2 || int(dims[0]) != len(ev.Channels) {
		return nil, fmt.Errorf("event %d: waveform dims %v for %d channels", number, dims, len(ev.Channels))
	}
	nsamples := int(dims[1])
	ev.Waveforms = make(map[uint16][]float64, len(ev.Channels))
	for i, ch := range ev.Channels {
		wf := make([]float64, nsamples)
		for j := range wf {
			wf[j] = float64(raw[i*nsamples+j])
		}
		ev.Waveforms[ch] = wf
	}

	clusters, dims, err := readGroupFloat64(g, "clusters")
	if err != nil {
		return nil, err
	}
	if len(clusters) > 0 && (len(dims) != 2 || dims[1] != 5) {
		return nil, fmt.Errorf("event %d: cluster dims %v", number, dims)
	}
	for i := 0; i+5 <= len(clusters); i += 5 {
		ev.Clusters = append(ev.Clusters, ChargeCluster{
			X: clusters[i], Y: clusters[i+1], Z: clusters[i+2],
			Energy: clusters[i+3], DriftTime: clusters[i+4],
		})
	}

	uwires, dims, err := readGroupFloat64(g, "uwires")
	if err != nil {
		return nil, err
	}
	if len(uwires) > 0 && (len(dims) != 2 || dims[1] != 3) {
		return nil, fmt.Errorf("event %d: uwire dims %v", number, dims)
	}
	for i := 0; i+3 <= len(uwires); i += 3 {
		ev.Wires = append(ev.Wires, UWireHit{
			Channel: uint16(uwires[i]),
			TimeNS:  uwires[i+1],
			Cluster: int(uwires[i+2]),
		})
	}
	return ev, nil
}

// StartEventReader opens the input file and feeds events through a channel
// from a reader goroutine. Solving stays strictly sequential in the
// consumer; this only overlaps file I/O with the solves. The channel is
// closed when the file is exhausted or max_events is reached.
func StartEventReader(config Configuration, logger *slog.Logger) (<-chan *InputEvent, error) {
	f, err := hdf5.OpenFile(config.FileIn, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, err
	}
	numbers, err := readInt32Dataset(f, "event_numbers")
	if err != nil {
		f.Close()
		return nil, err
	}

	out := make(chan *InputEvent, 4)
	go func() {
		defer close(out)
		defer f.Close()

		sent := 0
		for i, number := range numbers {
			if i < config.Skip {
				continue
			}
			if config.MaxEvents > 0 && sent >= config.MaxEvents {
				return
			}
			ev, err := readEvent(f, int(number))
			if err != nil {
				logger.Error(fmt.Sprintf("reading event %d: %v", number, err))
				return
			}
			out <- ev
			sent++
		}
	}()
	return out, nil
}

func readGroupFloat64(g *hdf5.Group, name string) ([]float64, []uint, error) {
	dset, err := g.OpenDataset(name)
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
	if size == 0 {
		return data, dims, nil
	}
	if err := dset.Read(&data); err != nil {
		return nil, nil, err
	}
	return data, dims, nil
}

func readGroupInt32(g *hdf5.Group, name string) ([]int32, error) {
	dset, err := g.OpenDataset(name)
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

func readGroupInt16(g *hdf5.Group, name string) ([]int16, []uint, error) {
	dset, err := g.OpenDataset(name)
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
	data := make([]int16, size)
	if err := dset.Read(&data); err != nil {
		return nil, nil, err
	}
	return data, dims, nil
}

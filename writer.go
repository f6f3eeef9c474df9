package main

import (
	hdf5 "github.com/jmbenlloch/go-hdf5"
)

// ResultHDF5 is one row of the per-event results table.
type ResultHDF5 struct {
	evt_number    int32
	unix_time     float64
	num_wires     int32
	charge_energy float64
	light_energy  float64
	converged     int8
	iterations    int32
	attempts      int32
}

// WireResultHDF5 is one row of the per-wire-signal results table.
type WireResultHDF5 struct {
	evt_number int32
	channel    int16
	energy     float64
}

type RunInfoHDF5 struct {
	run_number int32
}

type Writer struct {
	File         *hdf5.File
	RunGroup     *hdf5.Group
	RefitGroup   *hdf5.Group
	RunInfoTable *hdf5.Dataset
	EventTable   *hdf5.Dataset
	WireTable    *hdf5.Dataset
	wroteRunInfo bool
}

func NewWriter(config Configuration) (*Writer, error) {
	writer := &Writer{}
	var err error
	if writer.File, err = createFile(config.FileOut); err != nil {
		return nil, err
	}
	if writer.RunGroup, err = createGroup(writer.File, "Run"); err != nil {
		return nil, err
	}
	if writer.RefitGroup, err = createGroup(writer.File, "Refit"); err != nil {
		return nil, err
	}
	if writer.RunInfoTable, err = createTable(writer.RunGroup, "runInfo", RunInfoHDF5{}); err != nil {
		return nil, err
	}
	if writer.EventTable, err = createTable(writer.RefitGroup, "events", ResultHDF5{}); err != nil {
		return nil, err
	}
	if writer.WireTable, err = createTable(writer.RefitGroup, "wires", WireResultHDF5{}); err != nil {
		return nil, err
	}
	return writer, nil
}

// WriteEvent appends the refit result of one event, with one row per fitted
// wire signal in the wires table.
func (w *Writer) WriteEvent(config Configuration, ev *EventResult) error {
	if !w.wroteRunInfo {
		if err := writeEntryToTable(w.RunInfoTable, RunInfoHDF5{run_number: int32(config.RunNumber)}); err != nil {
			return err
		}
		w.wroteRunInfo = true
	}

	converged := int8(0)
	if ev.Converged {
		converged = 1
	}
	row := ResultHDF5{
		evt_number:    int32(ev.Number),
		unix_time:     ev.UnixTime,
		num_wires:     int32(len(ev.WireEnergies)),
		charge_energy: ev.ChargeEnergy,
		light_energy:  ev.LightEnergy,
		converged:     converged,
		iterations:    int32(ev.Iterations),
		attempts:      int32(ev.Attempts),
	}
	if err := writeEntryToTable(w.EventTable, row); err != nil {
		return err
	}

	if len(ev.WireEnergies) == 0 {
		return nil
	}
	// The array MUST be allocated at creation, if not, HDF5 will panic
	// doing appends will not work
	wires := make([]WireResultHDF5, len(ev.WireEnergies))
	for i, wr := range ev.WireEnergies {
		wires[i] = WireResultHDF5{
			evt_number: int32(ev.Number),
			channel:    int16(wr.Channel),
			energy:     wr.Energy,
		}
	}
	return writeArrayToTable(w.WireTable, &wires)
}

func (w *Writer) Close() {
	w.RunInfoTable.Close()
	w.EventTable.Close()
	w.WireTable.Close()
	w.RunGroup.Close()
	w.RefitGroup.Close()
	w.File.Close()
}

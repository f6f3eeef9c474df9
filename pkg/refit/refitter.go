package refit

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/mat"
)

const (
	// maxAttempts is how many independent solve attempts are made before
	// giving up and using the best-effort solution anyway. Each attempt
	// restarts the Krylov recurrences from the then-current solution.
	maxAttempts = 3

	// minGangYield is the smallest expected yield (ADC counts at the
	// calibration energy) on the best gang for the system to be
	// non-degenerate.
	minGangYield = 1.0
)

// Refitter solves the refit system event by event. The noise store is
// owned by the refitter and rebuilt only when the reporting-channel set
// changes; everything else is per-event state. Not safe for concurrent
// use: one event is solved to completion before the next begins.
type Refitter struct {
	Threshold float64

	noise *NoiseStore
	gain  GainFunc
	// energyScale converts the event's expected energy to the
	// normalization of the models (the calibration-point energy).
	calibEnergy float64
	stats       *Stats
	log         *slog.Logger
}

func NewRefitter(numFreqs int, threshold, calibEnergy float64, gain GainFunc, logger *slog.Logger) *Refitter {
	return &Refitter{
		Threshold:   threshold,
		noise:       NewNoiseStore(numFreqs),
		gain:        gain,
		calibEnergy: calibEnergy,
		stats:       &Stats{},
		log:         logger,
	}
}

// Stats exposes the run-wide solver accounting.
func (rf *Refitter) Stats() *Stats { return rf.stats }

// UpdateChannels rebuilds the noise blocks if the reporting-channel set
// changed since the last event. Cheap when it did not.
func (rf *Refitter) UpdateChannels(cs ChannelSet, src NoiseSource) error {
	return rf.noise.Update(cs, src)
}

// ProcessEvent solves for all signal magnitudes of one event. Degenerate
// inputs return an error wrapping ErrDropEvent; the caller should skip the
// event silently. Non-convergence is not an error: the best-effort result
// is returned with Converged == false after a logged warning.
func (rf *Refitter) ProcessEvent(ev *Event) (*Result, error) {
	layout := Layout{
		Channels: rf.noise.Channels(),
		NumFreqs: rf.noise.NumFreqs(),
		NumWires: len(ev.Wires),
	}
	if err := rf.validate(layout, ev); err != nil {
		return nil, err
	}

	op := NewOperator(layout, rf.noise, ev.Wires, ev.Light, rf.gain,
		ev.ExpectedEnergy/rf.calibEnergy)
	x := InitialGuess(layout, rf.noise, ev.Wires, ev.Light)

	solver := NewSolver(rf.Threshold, rf.stats)
	res := &Result{}
	for res.Attempts < maxAttempts {
		res.Attempts++
		rf.stats.Attempts++
		ok, iters, err := solver.Solve(op, x, layout.NumWires)
		res.Iterations += iters
		if err != nil {
			rf.log.Warn(err.Error(), "module", "refit")
			continue
		}
		if ok {
			res.Converged = true
			break
		}
	}
	if !res.Converged {
		rf.log.Warn("solver failed to converge, keeping best-effort solution", "module", "refit")
	}
	rf.stats.EventsSolved++

	rf.extract(layout, x, ev, res)
	return res, nil
}

// validate applies the degenerate-input checks that must drop an event
// before any solve is attempted.
func (rf *Refitter) validate(l Layout, ev *Event) error {
	if len(ev.Wires) == 0 {
		return ErrNoWireSignals
	}
	if len(ev.Light.Model) != l.ModelLen() {
		return ErrModelLength
	}
	for _, wire := range ev.Wires {
		for ch, model := range wire.Models {
			if len(model) != l.ModelLen() {
				return fmt.Errorf("%w: wire model on channel %d", ErrModelLength, ch)
			}
		}
	}
	hasYield := false
	for k := l.Channels.FirstAPD; k < l.Channels.Len(); k++ {
		if ev.Light.Yield[l.Channels.IDs[k]] > minGangYield {
			hasYield = true
			break
		}
	}
	if !hasYield {
		return ErrNoLightYield
	}
	return nil
}

// extract forms each signal's magnitude as the dot product of its solved
// reconstruction filter with the measured frequency-domain waveforms.
func (rf *Refitter) extract(l Layout, x *mat.Dense, ev *Event, res *Result) {
	res.Wires = make([]float64, l.NumWires)
	for sig := 0; sig < l.NumSignals(); sig++ {
		total := 0.0
		for c := 0; c < l.Channels.Len(); c++ {
			wf, ok := ev.Waveforms[l.Channels.IDs[c]]
			if !ok {
				panic(fmt.Sprintf("refit: waveform for channel %d disappeared", l.Channels.IDs[c]))
			}
			for f := 0; f < l.NumFreqs; f++ {
				row := l.Row(f, c, 0)
				total += x.At(row, sig) * wf[2*f]
				if f < l.NumFreqs-1 {
					total += x.At(row+1, sig) * wf[2*f+1]
				}
			}
		}
		if sig < l.NumWires {
			res.Wires[sig] = total
		} else {
			res.Light = total
		}
	}
}

package refit

// WireSignal describes one reconstructed drift-wire pulse. Models holds the
// interleaved frequency-domain model waveform on every channel the pulse is
// expected to appear on (the collection channel plus its induction
// neighbors), keyed by channel id.
type WireSignal struct {
	Channel uint16
	Time    float64
	Models  map[uint16][]float64
}

// LightSignal describes the single scintillation pulse of an event: one
// shared frequency-domain model and the expected fraction of the light
// collected by each APD gang.
type LightSignal struct {
	Model []float64
	Yield map[uint16]float64
}

// GainFunc returns the photon-to-ADC gain of an APD gang at the time of the
// event being processed. It sets the scale of the Poisson term relative to
// the electronic noise.
type GainFunc func(channel uint16) float64

// Event gathers the per-event inputs of a refit. Waveforms holds the
// measured frequency-domain data per channel, interleaved the same way as
// the model waveforms.
type Event struct {
	Time           float64
	ExpectedEnergy float64 // summed charge-cluster energy, keV
	Waveforms      map[uint16][]float64
	Wires          []WireSignal
	Light          LightSignal
}

// Result is the output of one refit: one magnitude per wire signal, one for
// the light signal, and whether the solver actually converged. A result
// with Converged == false is still usable, just potentially imprecise.
type Result struct {
	Wires      []float64
	Light      float64
	Converged  bool
	Iterations int
	Attempts   int
}

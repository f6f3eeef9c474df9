package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"time"

	"golang.org/x/exp/maps"

	"github.com/mgmarino/StandaloneRefitter/pkg/refit"
)

const (
	// Energy of the thorium calibration line the light models are
	// normalized to.
	thoriumEnergyKeV = 2615.0

	// Events with truncated traces cannot be refit against the
	// full-length noise correlations.
	fullSampleCount = numSamples - 1

	// Conversion from refit wire magnitudes to keV.
	adcFullScaleElectronsWire = 300000.0
	wValueLXeEVPerElectron    = 15.6
	adcBits                   = 4096.0
	uWireScalingFactor        = adcFullScaleElectronsWire * wValueLXeEVPerElectron / 1000.0 / adcBits

	// Nominal value of the database wire gains.
	nominalWireGain = 300.0
)

// Channel map: u-wires, then v-wires, then APD gangs.
const (
	numUWireChannels = 76
	firstAPDChannel  = 152
	lastAPDChannel   = 225
)

func isUWire(ch uint16) bool { return ch < numUWireChannels }
func isAPD(ch uint16) bool   { return ch >= firstAPDChannel && ch <= lastAPDChannel }

// Calibrations holds the per-run database calibrations used to build and
// scale the wire models.
type Calibrations struct {
	WireGains map[uint16]float64
	Shapers   map[uint16]TransferFunction
	Lifetimes map[string]float64
}

// Nominal wire shaping, used for every channel when the database is
// disabled.
func defaultWireTransferFunction() TransferFunction {
	return TransferFunction{
		Integ: []float64{3000},
		Diff:  []float64{10000, 10000, 300000},
	}
}

func loadCalibrations(config Configuration, logger *slog.Logger) (*Calibrations, error) {
	if config.NoDB {
		logger.Warn("database disabled, using nominal gains and shaping")
		calib := &Calibrations{
			WireGains: make(map[uint16]float64),
			Shapers:   make(map[uint16]TransferFunction),
			Lifetimes: map[string]float64{"TPC1": math.Inf(1), "TPC2": math.Inf(1)},
		}
		for ch := uint16(0); ch < numUWireChannels; ch++ {
			calib.WireGains[ch] = nominalWireGain
			calib.Shapers[ch] = defaultWireTransferFunction()
		}
		return calib, nil
	}

	db, err := ConnectToDatabase(config)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	calib := &Calibrations{}
	if calib.WireGains, err = getUWireGainsFromDB(db, config.RunNumber); err != nil {
		return nil, err
	}
	if calib.Shapers, err = getShapersFromDB(db, config.RunNumber); err != nil {
		return nil, err
	}
	if calib.Lifetimes, err = getLifetimesFromDB(db, config.RunNumber); err != nil {
		return nil, err
	}
	logger.Info(fmt.Sprintf("calibrations loaded for run %d (%d wire gains)",
		config.RunNumber, len(calib.WireGains)))
	return calib, nil
}

// gainModel adapts the time-dependent gang gain to refit.GainFunc. Events
// are solved one at a time, so updating the event time between solves is
// safe.
type gainModel struct {
	lm       *Lightmap
	unixTime float64
}

func (g *gainModel) gain(channel uint16) float64 {
	return gangGainAt(g.lm, channel, g.unixTime)
}

// WireEnergy is the denoised energy of one fitted wire signal.
type WireEnergy struct {
	Channel uint16
	Energy  float64
}

// EventResult is what gets written to the output file for one event.
type EventResult struct {
	Number       int
	UnixTime     float64
	WireEnergies []WireEnergy
	ChargeEnergy float64
	LightEnergy  float64
	Converged    bool
	Iterations   int
	Attempts     int
}

type refitApp struct {
	config   Configuration
	log      *slog.Logger
	models   *ModelBuilder
	lightmap *Lightmap
	noise    *NoiseCorrelations
	calib    *Calibrations
	gain     *gainModel
	refitter *refit.Refitter
}

// buildChannelSet classifies the reporting channels into the ordering the
// refit expects: u-wires first, then APD gangs, each ascending. V-wire
// channels carry no usable signal model and are left out.
func buildChannelSet(reporting []uint16) refit.ChannelSet {
	var wires, apds []uint16
	for _, ch := range reporting {
		switch {
		case isUWire(ch):
			wires = append(wires, ch)
		case isAPD(ch):
			apds = append(apds, ch)
		}
	}
	sort.Slice(wires, func(i, j int) bool { return wires[i] < wires[j] })
	sort.Slice(apds, func(i, j int) bool { return apds[i] < apds[j] })
	return refit.ChannelSet{
		IDs:      append(wires, apds...),
		FirstAPD: len(wires),
	}
}

// fullClusters selects the clusters that are fully reconstructed: inside
// the fiducial bounds and carrying at least 1 keV. The returned indices
// refer back to ev.Clusters so wire signals can be matched up later.
func fullClusters(ev *InputEvent) []int {
	var full []int
	for i, clu := range ev.Clusters {
		if math.Abs(clu.X) > 200 || math.Abs(clu.Y) > 200 || math.Abs(clu.Z) > 200 {
			continue
		}
		if clu.Energy < 1 {
			continue
		}
		full = append(full, i)
	}
	return full
}

// wireModels builds the frequency-domain model of one u-wire signal on its
// collection channel and on the neighboring channels that see its induced
// signal. Relative database gains are folded into the neighbor models so
// one magnitude describes all three traces.
func (app *refitApp) wireModels(hit UWireHit, cs refit.ChannelSet) (refit.WireSignal, error) {
	transfer, ok := app.calib.Shapers[hit.Channel]
	if !ok {
		return refit.WireSignal{}, ErrMissingCalibration{Table: "ElectronicsShapers", Run: app.config.RunNumber}
	}
	depGain, ok := app.calib.WireGains[hit.Channel]
	if !ok {
		return refit.WireSignal{}, ErrMissingCalibration{Table: "UWireGains", Run: app.config.RunNumber}
	}
	tfGain := transfer.Gain(templateStepNS)

	sig := refit.WireSignal{
		Channel: hit.Channel,
		Time:    hit.TimeNS,
		Models:  make(map[uint16][]float64, 3),
	}
	sig.Models[hit.Channel] = app.models.WireModel(app.models.DepositTemplate(), transfer, tfGain, hit.TimeNS)

	for _, neighbor := range []int{int(hit.Channel) - 1, int(hit.Channel) + 1} {
		if neighbor < 0 || !isUWire(uint16(neighbor)) {
			continue
		}
		ch := uint16(neighbor)
		if _, found := cs.Index(ch); !found {
			continue
		}
		transferInd, ok := app.calib.Shapers[ch]
		if !ok {
			return refit.WireSignal{}, ErrMissingCalibration{Table: "ElectronicsShapers", Run: app.config.RunNumber}
		}
		indGain, ok := app.calib.WireGains[ch]
		if !ok {
			return refit.WireSignal{}, ErrMissingCalibration{Table: "UWireGains", Run: app.config.RunNumber}
		}
		sig.Models[ch] = app.models.WireModel(app.models.InductionTemplate(),
			transferInd, tfGain*indGain/depGain, hit.TimeNS)
	}
	return sig, nil
}

// processEvent runs the refit on one event and converts the magnitudes to
// energies. A nil result with nil error means the event carries nothing to
// refit and is skipped silently; errors wrapping refit.ErrDropEvent mean
// the event is degenerate and must be dropped.
func (app *refitApp) processEvent(ev *InputEvent) (*EventResult, error) {
	if ev.ScintCount == 0 {
		return nil, nil
	}
	if ev.SampleCount != fullSampleCount {
		return nil, fmt.Errorf("%w: trace has %d samples, want %d",
			refit.ErrDropEvent, ev.SampleCount, fullSampleCount)
	}
	if ev.ScintCount != 1 {
		return nil, fmt.Errorf("%w: %d scintillation clusters", refit.ErrDropEvent, ev.ScintCount)
	}

	full := fullClusters(ev)
	if len(full) == 0 {
		return nil, fmt.Errorf("%w: no fully reconstructed charge clusters", refit.ErrDropEvent)
	}
	clusters := make([]ChargeCluster, len(full))
	expectedEnergy := 0.0
	for i, idx := range full {
		clusters[i] = ev.Clusters[idx]
		expectedEnergy += ev.Clusters[idx].Energy
	}

	reporting := maps.Keys(ev.Waveforms)
	cs := buildChannelSet(reporting)
	if err := app.refitter.UpdateChannels(cs, app.noise); err != nil {
		return nil, err
	}

	app.gain.unixTime = ev.UnixTime
	yields := app.lightmap.ExpectedYields(clusters, expectedEnergy, ev.UnixTime)

	fullSet := make(map[int]bool, len(full))
	for _, idx := range full {
		fullSet[idx] = true
	}
	var wires []refit.WireSignal
	var hits []UWireHit
	for _, hit := range ev.Wires {
		if !fullSet[hit.Cluster] {
			continue
		}
		if _, found := cs.Index(hit.Channel); !found {
			return nil, fmt.Errorf("%w: u-wire signal on non-reporting channel %d",
				refit.ErrDropEvent, hit.Channel)
		}
		sig, err := app.wireModels(hit, cs)
		if err != nil {
			return nil, err
		}
		wires = append(wires, sig)
		hits = append(hits, hit)
	}

	waveforms := make(map[uint16][]float64, cs.Len())
	for _, ch := range cs.IDs {
		waveforms[ch] = app.models.PackWaveform(ev.Waveforms[ch])
	}

	res, err := app.refitter.ProcessEvent(&refit.Event{
		Time:           ev.UnixTime,
		ExpectedEnergy: expectedEnergy,
		Waveforms:      waveforms,
		Wires:          wires,
		Light: refit.LightSignal{
			Model: app.models.LightModel(ev.ScintTimeNS),
			Yield: yields,
		},
	})
	if err != nil {
		return nil, err
	}

	out := &EventResult{
		Number:      ev.Number,
		UnixTime:    ev.UnixTime,
		LightEnergy: res.Light * thoriumEnergyKeV,
		Converged:   res.Converged,
		Iterations:  res.Iterations,
		Attempts:    res.Attempts,
	}

	// Wire magnitudes to keV, then per-cluster electron-lifetime
	// correction on the summed charge energy.
	clusterEnergy := make(map[int]float64)
	out.WireEnergies = make([]WireEnergy, len(hits))
	for i, hit := range hits {
		energy := res.Wires[i] * (app.calib.WireGains[hit.Channel] / nominalWireGain) * uWireScalingFactor
		out.WireEnergies[i] = WireEnergy{Channel: hit.Channel, Energy: energy}
		clusterEnergy[hit.Cluster] += energy
	}
	for _, idx := range full {
		clu := ev.Clusters[idx]
		tpc := "TPC2"
		if clu.Z > 0 {
			tpc = "TPC1"
		}
		lifetimeNS := app.calib.Lifetimes[tpc] * 1000.0
		out.ChargeEnergy += clusterEnergy[idx] * math.Exp(clu.DriftTime/lifetimeNS)
	}
	return out, nil
}

func main() {
	configFilename := flag.String("config", "", "Configuration file path")
	flag.Parse()

	configuration, err := LoadConfiguration(*configFilename)
	if err != nil {
		fmt.Println("Error reading configuration file: ", err)
		return
	}

	level := slog.LevelWarn
	switch {
	case configuration.Verbosity >= 2:
		level = slog.LevelDebug
	case configuration.Verbosity == 1:
		level = slog.LevelInfo
	}
	logger := slog.New(NewHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	printConfiguration(configuration, logger)

	models, err := NewModelBuilder()
	if err != nil {
		logger.Error(err.Error())
		return
	}
	lightmap, err := LoadLightmap(configuration.LightmapFile)
	if err != nil {
		logger.Error(fmt.Sprintf("loading lightmap: %v", err))
		return
	}
	noise, err := LoadNoiseCorrelations(configuration.NoiseFile, maxFreq)
	if err != nil {
		logger.Error(fmt.Sprintf("loading noise correlations: %v", err))
		return
	}
	calib, err := loadCalibrations(configuration, logger)
	if err != nil {
		logger.Error(err.Error())
		return
	}

	gm := &gainModel{lm: lightmap}
	app := &refitApp{
		config:   configuration,
		log:      logger,
		models:   models,
		lightmap: lightmap,
		noise:    noise,
		calib:    calib,
		gain:     gm,
		refitter: refit.NewRefitter(maxFreq, configuration.Threshold, thoriumEnergyKeV, gm.gain, logger),
	}

	events, err := StartEventReader(configuration, logger)
	if err != nil {
		logger.Error(fmt.Sprintf("opening input file: %v", err))
		return
	}

	var writer *Writer
	if configuration.WriteData {
		if writer, err = NewWriter(configuration); err != nil {
			logger.Error(fmt.Sprintf("opening output file: %v", err))
			return
		}
		defer writer.Close()
	}

	start := time.Now()
	processed, dropped, skipped := 0, 0, 0
	for ev := range events {
		result, err := app.processEvent(ev)
		switch {
		case errors.Is(err, refit.ErrDropEvent):
			logger.Debug(fmt.Sprintf("event %d dropped: %v", ev.Number, err))
			dropped++
		case err != nil:
			logger.Error(fmt.Sprintf("event %d: %v", ev.Number, err))
			dropped++
		case result == nil:
			skipped++
		default:
			processed++
			logger.Debug(fmt.Sprintf("event %d: charge %.1f keV, light %.1f keV (%d iterations)",
				ev.Number, result.ChargeEnergy, result.LightEnergy, result.Iterations))
			if writer != nil {
				if err := writer.WriteEvent(configuration, result); err != nil {
					logger.Error(fmt.Sprintf("writing event %d: %v", ev.Number, err))
					return
				}
			}
		}
	}

	app.refitter.Stats().Report(logger)
	logger.Info(fmt.Sprintf("refit %d events (%d dropped, %d skipped) in %v",
		processed, dropped, skipped, time.Since(start).Round(time.Millisecond)))
}

package main

// Per-gang APD gains measured with the laser in run 4540, in ADC units per
// electron-hole pair. Bad channels are omitted from the table and get zero
// gain, which removes them from the Poisson noise term.
var laserGains = map[uint16]float64{
	152: 201.230438146,
	153: 178.750438779,
	154: 194.228589338,
	155: 183.33801615,
	156: 218.485999976,
	157: 222.139259152,
	158: 169.982559736,
	159: 140.385120552,
	160: 137.602725389,
	161: 197.78183714,
	162: 155.478773762,
	// 163 omitted: bad channel.
	164: 175.875067527,
	165: 160.014408865,
	166: 183.408055613,
	167: 189.600819126,
	168: 160.339214431,
	169: 168.547991045,
	170: 182.670039836,
	171: 205.567802982,
	172: 195.87450621,
	173: 224.956647122,
	174: 232.062359991,
	175: 241.822881767,
	176: 194.740435753,
	177: 189.867775084,
	// 178 omitted: bad channel.
	179: 206.755206938,
	180: 207.822617603,
	181: 207.501985741,
	182: 218.213137769,
	183: 234.369354843,
	184: 99.908111992,
	185: 238.381809313,
	186: 225.118270743,
	187: 199.078450518,
	188: 221.863823239,
	189: 177.032783679,
	190: 196.787332164,
	// 191 omitted: bad channel.
	192: 194.923448865,
	193: 197.027984846,
	194: 202.757086104,
	195: 194.432937658,
	196: 208.992809367,
	197: 224.762562055,
	198: 217.696006443,
	199: 222.380158829,
	200: 218.358804472,
	201: 209.573057132,
	202: 194.684536629,
	203: 182.543842783,
	204: 193.469930111,
	// 205 omitted: bad channel.
	206: 193.627191472,
	207: 196.073150574,
	208: 189.597962521,
	209: 198.824317108,
	210: 222.747770671,
	211: 216.928470825,
	212: 223.437239807,
	213: 224.316404923,
	214: 216.26783603,
	215: 209.612423384,
	216: 223.041660884,
	217: 202.642254512,
	218: 213.904993632,
	219: 221.988942321,
	220: 201.427174798,
	221: 196.689200146,
	222: 191.457656123,
	223: 186.183873541,
	224: 217.033080346,
	225: 205.858374653,
}

const (
	// Average electron-hole pairs per photon in an APD.
	eholePairsPerPhoton = 1.9
	// Preamp converts electrons to volts, roughly 1/(5 pF).
	preampVoltsPerElectron = 32.e-9
	// Amplification factor of the shapers, including the transfer
	// function gain.
	shaperGain = 12.10
	// Full scale of the 12-bit ADC is 2.5 volts.
	adcCountsPerVolt = 4096. / 2.5
	// Reference time at which the laser gains were measured; the gainmap
	// supplies the time-dependence relative to this point.
	gainmapReferenceTime = 1355409118.254096
)

// gangGainAt returns the ADC counts produced on a gang per photon collected
// at the given unix time. This sets the scale of the Poisson noise term
// relative to the electronic noise. Gangs without a laser measurement or
// without a gainmap get zero. The time-dependence comes from the gainmap,
// normalized to the epoch of the laser run.
func gangGainAt(lm *Lightmap, channel uint16, unixTime float64) float64 {
	laser, ok := laserGains[channel]
	if !ok {
		return 0
	}
	reference := lm.GainAt(channel, gainmapReferenceTime)
	if reference == 0 {
		return 0
	}
	gain := eholePairsPerPhoton * laser
	gain *= lm.GainAt(channel, unixTime) / reference
	gain *= preampVoltsPerElectron
	gain *= shaperGain
	gain *= adcCountsPerVolt
	return gain
}

package refit

// ChannelSet is the ordered list of readout channels participating in an
// event, wire channels first, APD gangs after. The ordering fixes the row
// ordering of the noise blocks and of every solution column, so it must not
// change while a NoiseStore built from it is in use.
type ChannelSet struct {
	IDs      []uint16
	FirstAPD int // index into IDs of the first APD gang
}

func (cs ChannelSet) Len() int { return len(cs.IDs) }

// IsAPD reports whether the channel at index i is an APD gang.
func (cs ChannelSet) IsAPD(i int) bool { return i >= cs.FirstAPD }

// Index returns the position of channel id within the set.
func (cs ChannelSet) Index(id uint16) (int, bool) {
	for i, ch := range cs.IDs {
		if ch == id {
			return i, true
		}
	}
	return 0, false
}

// Equal reports whether two channel sets contain the same channels in the
// same order. Used to decide whether noise blocks can be reused.
func (cs ChannelSet) Equal(other ChannelSet) bool {
	if len(cs.IDs) != len(other.IDs) || cs.FirstAPD != other.FirstAPD {
		return false
	}
	for i := range cs.IDs {
		if cs.IDs[i] != other.IDs[i] {
			return false
		}
	}
	return true
}

// Layout maps the axes of one solution column (frequency bin, channel,
// real/imaginary part, constraint) onto flat row offsets.
//
// Rows for frequency bin f start at 2*nchan*f. Within a bin the real and
// imaginary parts of each channel are interleaved, except for the last bin
// whose imaginary part is identically zero and therefore dropped. The
// Lagrange-multiplier rows sit at the end of the column, one per wire
// signal followed by one for the light signal.
type Layout struct {
	Channels ChannelSet
	NumFreqs int // frequency bins carried per channel
	NumWires int // wire signals in the event
}

// NumSignals counts solution columns: all wire signals plus the light one.
func (l Layout) NumSignals() int { return l.NumWires + 1 }

// ColumnLength is the number of rows in one solution column.
func (l Layout) ColumnLength() int {
	n := l.Channels.Len()
	return 2*n*(l.NumFreqs-1) + n + l.NumSignals()
}

// NoiseRows is the number of leading rows covered by the noise blocks.
func (l Layout) NoiseRows() int {
	n := l.Channels.Len()
	return 2*n*(l.NumFreqs-1) + n
}

// Stride is the number of rows per channel in frequency bin f: two
// (real, imaginary) everywhere except the last bin, which is real-only.
func (l Layout) Stride(f int) int {
	if f == l.NumFreqs-1 {
		return 1
	}
	return 2
}

// BlockStart is the first row of frequency bin f.
func (l Layout) BlockStart(f int) int { return 2 * l.Channels.Len() * f }

// BlockSize is the dimension of the noise block for frequency bin f.
func (l Layout) BlockSize(f int) int { return l.Channels.Len() * l.Stride(f) }

// Row is the flat offset of (frequency bin f, channel index c, part).
// part is 0 for the real part and 1 for the imaginary part; the last bin
// has no imaginary rows.
func (l Layout) Row(f, c, part int) int {
	return l.BlockStart(f) + c*l.Stride(f) + part
}

// ConstraintRow is the Lagrange-multiplier row of signal sig, where wire
// signals are numbered 0..NumWires-1 and the light signal is NumWires.
func (l Layout) ConstraintRow(sig int) int {
	return l.ColumnLength() - l.NumSignals() + sig
}

// LightConstraintRow is the Lagrange row of the light signal.
func (l Layout) LightConstraintRow() int { return l.ColumnLength() - 1 }

// ModelLen is the expected length of an interleaved frequency-domain model
// waveform: real and imaginary values for every bin except the last, which
// contributes its real part only.
func (l Layout) ModelLen() int { return 2*l.NumFreqs - 1 }

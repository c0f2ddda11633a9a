package history

// Sample is a point-in-time orientation estimate in degrees.
//
// Pitch uses the nose-down-positive storage convention; callers that issue
// attitude commands invert it at the edge.
type Sample struct {
	RollDeg  float64
	PitchDeg float64
	YawDeg   float64
}

// Buffer records orientation samples in insertion order (time order) while
// flight is healthy, and replays them newest-first while flying home blind.
//
// The final sample is never removed: once the buffer is down to one entry it
// is held as the terminal target. Not safe for concurrent use; there is
// exactly one writer under the tick model.
type Buffer struct {
	samples []Sample
}

func (b *Buffer) Push(s Sample) {
	b.samples = append(b.samples, s)
}

func (b *Buffer) Len() int {
	return len(b.samples)
}

// Last returns the most recently pushed sample without removing it.
func (b *Buffer) Last() (Sample, bool) {
	if len(b.samples) == 0 {
		return Sample{}, false
	}
	return b.samples[len(b.samples)-1], true
}

// ReplayNext returns the newest sample, removing it only while more than one
// sample remains. The retained final sample is returned on every subsequent
// call, so replay can never underflow.
func (b *Buffer) ReplayNext() (Sample, bool) {
	n := len(b.samples)
	if n == 0 {
		return Sample{}, false
	}
	s := b.samples[n-1]
	if n > 1 {
		b.samples = b.samples[:n-1]
	}
	return s, true
}

// Terminal reports whether replay has drained down to the held final sample.
func (b *Buffer) Terminal() bool {
	return len(b.samples) == 1
}

func (b *Buffer) Clear() {
	b.samples = b.samples[:0]
}

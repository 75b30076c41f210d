package audio

import (
	"errors"
	"math"
	"sync"
)

// Flusher is implemented by sources that hold samples back between reads
type Flusher interface {
	// Flush returns every remaining sample, padding lagging inputs with silence
	Flush() []int16
}

// Mixer sums several sources into one mono stream.
// Inputs are mixed sample-aligned; an input that falls more than maxLag
// samples behind the others is padded with silence so one quiet device
// cannot hold back the rest.
type Mixer struct {
	mu     sync.Mutex
	inputs []*mixInput
	maxLag int
}

type mixInput struct {
	src     Source
	pending []int16
}

// NewMixer creates a mixer over the given sources. maxLag is in samples.
func NewMixer(maxLag int, sources ...Source) *Mixer {
	m := &Mixer{maxLag: maxLag}
	for _, src := range sources {
		m.inputs = append(m.inputs, &mixInput{src: src})
	}
	return m
}

// Start starts every input
func (m *Mixer) Start() error {
	for _, in := range m.inputs {
		if err := in.src.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops every input
func (m *Mixer) Stop() error {
	var errs []error
	for _, in := range m.inputs {
		if err := in.src.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every input
func (m *Mixer) Close() error {
	var errs []error
	for _, in := range m.inputs {
		if err := in.src.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Read returns the mixed samples every input has delivered so far
func (m *Mixer) Read() []int16 {
	m.mu.Lock()
	defer m.mu.Unlock()

	shortest, longest := m.collect()
	n := shortest
	if longest-shortest > m.maxLag {
		n = longest - m.maxLag
	}
	return m.mix(n)
}

// Flush returns everything that is still pending
func (m *Mixer) Flush() []int16 {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, longest := m.collect()
	return m.mix(longest)
}

func (m *Mixer) collect() (shortest, longest int) {
	shortest = -1
	for _, in := range m.inputs {
		in.pending = append(in.pending, in.src.Read()...)
		l := len(in.pending)
		if shortest < 0 || l < shortest {
			shortest = l
		}
		if l > longest {
			longest = l
		}
	}
	if shortest < 0 {
		shortest = 0
	}
	return shortest, longest
}

func (m *Mixer) mix(n int) []int16 {
	if n <= 0 {
		return nil
	}

	acc := make([]int32, n)
	for _, in := range m.inputs {
		count := min(n, len(in.pending))
		for i := 0; i < count; i++ {
			acc[i] += int32(in.pending[i])
		}
		in.pending = in.pending[count:]
	}

	out := make([]int16, n)
	for i, v := range acc {
		out[i] = clamp16(v)
	}
	return out
}

func clamp16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

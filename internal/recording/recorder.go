package recording

import (
	"fmt"
	"sync"
	"time"

	"github.com/yok-tottii/EchoDoc/internal/audio"
)

// Recorder emits encoded chunks from a live source
type Recorder interface {
	// Start begins periodic chunk emission
	Start(onChunk func([]byte)) error

	// Pause suspends capture; chunks already emitted are kept
	Pause() error

	// Resume continues capture after Pause
	Resume() error

	// Stop ends capture. The final chunk is delivered before Stop returns.
	Stop() error
}

// RecorderFactory builds a recorder for one session
type RecorderFactory func(source audio.Source, encoder audio.Encoder, interval time.Duration) Recorder

// StreamRecorder reads a Source on a ticker and encodes what it finds
type StreamRecorder struct {
	source   audio.Source
	encoder  audio.Encoder
	interval time.Duration

	mu      sync.Mutex
	onChunk func([]byte)
	running bool
	paused  bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewStreamRecorder creates a recorder over source
func NewStreamRecorder(source audio.Source, encoder audio.Encoder, interval time.Duration) Recorder {
	if interval <= 0 {
		interval = time.Second
	}
	return &StreamRecorder{
		source:   source,
		encoder:  encoder,
		interval: interval,
	}
}

// Start starts the source and the emission loop
func (r *StreamRecorder) Start(onChunk func([]byte)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("recorder already running")
	}

	if err := r.source.Start(); err != nil {
		return fmt.Errorf("failed to start source: %w", err)
	}

	r.onChunk = onChunk
	r.running = true
	r.paused = false
	r.stopCh = make(chan struct{})

	r.wg.Add(1)
	go r.loop()

	return nil
}

func (r *StreamRecorder) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.emit(r.source.Read())
		case <-r.stopCh:
			return
		}
	}
}

// Pause stops the source; buffered samples go out with the next tick
func (r *StreamRecorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running || r.paused {
		return nil
	}
	if err := r.source.Stop(); err != nil {
		return fmt.Errorf("failed to pause source: %w", err)
	}
	r.paused = true
	return nil
}

// Resume restarts the source
func (r *StreamRecorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running || !r.paused {
		return nil
	}
	if err := r.source.Start(); err != nil {
		return fmt.Errorf("failed to resume source: %w", err)
	}
	r.paused = false
	return nil
}

// Stop halts the loop, stops the source and flushes the remaining samples
func (r *StreamRecorder) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	wasPaused := r.paused
	close(r.stopCh)
	r.mu.Unlock()

	// Wait for the loop so the final chunk is emitted last
	r.wg.Wait()

	var err error
	if !wasPaused {
		if stopErr := r.source.Stop(); stopErr != nil {
			err = fmt.Errorf("failed to stop source: %w", stopErr)
		}
	}

	samples := r.source.Read()
	if f, ok := r.source.(audio.Flusher); ok {
		samples = append(samples, f.Flush()...)
	}
	r.emit(samples)

	return err
}

func (r *StreamRecorder) emit(samples []int16) {
	if len(samples) == 0 {
		return
	}
	chunk := r.encoder.Encode(samples)
	if len(chunk) > 0 && r.onChunk != nil {
		r.onChunk(chunk)
	}
}

package recording

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yok-tottii/EchoDoc/internal/apperr"
	"github.com/yok-tottii/EchoDoc/internal/audio"
)

// Acquirer obtains the live stream for a session
type Acquirer interface {
	Acquire(ctx context.Context, mode audio.Mode, deviceID string, format audio.Format) (*audio.LiveStream, error)
}

// EncoderSource selects and builds encoders
type EncoderSource interface {
	Encoder(choice audio.Choice) (audio.Encoder, error)
}

// Clock tells the time
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Deps are the collaborators of a session
type Deps struct {
	Acquirer Acquirer
	// Encoders builds the encoder for the selected encoding
	Encoders EncoderSource
	// Prober decides which candidates are supported for this session
	Prober audio.Prober
	// NewRecorder defaults to NewStreamRecorder
	NewRecorder RecorderFactory
	// Clock defaults to the system clock
	Clock Clock
	// Notify receives every session event. It must not call back into the
	// session synchronously while handling EventStopped.
	Notify func(Event)
}

// Session is one capture attempt, from start to transcript or failure
type Session struct {
	id     string
	mode   audio.Mode
	config Config
	deps   Deps

	mu                sync.Mutex
	state             State
	starting          bool
	stream            *audio.LiveStream
	recorder          Recorder
	encoder           audio.Encoder
	choice            audio.Choice
	monitor           *Monitor
	chunks            [][]byte
	encodedBytes      int64
	startedAt         time.Time
	pausedAt          time.Time
	pausedAccumulated time.Duration
	stoppedAt         time.Time
	reason            StopReason
	warnings          []string
	capture           *Capture
	err               error

	done chan struct{}
	wg   sync.WaitGroup
}

// NewSession creates an idle session
func NewSession(id string, mode audio.Mode, config Config, deps Deps) *Session {
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.NewRecorder == nil {
		deps.NewRecorder = NewStreamRecorder
	}
	if config.Candidates == nil {
		config.Candidates = audio.DefaultCandidates()
	}

	return &Session{
		id:      id,
		mode:    mode,
		config:  config,
		deps:    deps,
		state:   Idle,
		monitor: NewMonitor(config.Budget),
	}
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// Start acquires the stream, selects the encoding and begins recording.
// Devices are opened without holding the session lock so State stays
// answerable while a slow device opens.
func (s *Session) Start(ctx context.Context, deviceID string) error {
	s.mu.Lock()
	if s.state != Idle || s.starting {
		state := s.state.String()
		if s.starting {
			state = "starting"
		}
		s.mu.Unlock()
		return apperr.Conflict(fmt.Sprintf("session already %s", state))
	}
	s.starting = true
	s.mu.Unlock()

	choice := audio.SelectEncoding(s.config.Candidates, s.deps.Prober)
	encoder, err := s.deps.Encoders.Encoder(choice)
	if err != nil {
		s.endStart()
		return s.fail(apperr.Internalize(err))
	}

	stream, err := s.deps.Acquirer.Acquire(ctx, s.mode, deviceID, encoder.Format())
	if err != nil {
		s.endStart()
		return s.fail(err)
	}

	s.mu.Lock()
	s.starting = false
	if s.state != Idle {
		state := s.state
		s.mu.Unlock()
		stream.Release()
		return apperr.Conflict(fmt.Sprintf("session became %s while starting", state))
	}

	recorder := s.deps.NewRecorder(stream.Source, encoder, s.config.ChunkInterval)
	if err := recorder.Start(s.onChunk); err != nil {
		s.mu.Unlock()
		stream.Release()
		return s.fail(apperr.Wrap(apperr.KindAcquisitionFailed, "failed to start recorder", err))
	}

	now := s.deps.Clock.Now()
	s.stream = stream
	s.recorder = recorder
	s.encoder = encoder
	s.choice = choice
	s.chunks = nil
	s.encodedBytes = 0
	s.startedAt = now
	s.warnings = append([]string(nil), stream.Warnings...)
	s.state = Recording
	s.done = make(chan struct{})

	s.startLoops()
	s.mu.Unlock()

	s.emitState(Recording)
	for _, w := range stream.Warnings {
		s.emit(Event{Type: EventWarning, Warning: &Warning{Code: WarnAcquisition, Message: w, At: now}})
	}

	return nil
}

func (s *Session) endStart() {
	s.mu.Lock()
	s.starting = false
	s.mu.Unlock()
}

func (s *Session) startLoops() {
	if s.config.TickInterval > 0 {
		s.wg.Add(1)
		go s.every(s.config.TickInterval, s.tick)
	}
	if s.config.BudgetInterval > 0 {
		s.wg.Add(1)
		go s.every(s.config.BudgetInterval, func() { s.EvaluateBudget() })
	}
}

func (s *Session) every(interval time.Duration, fn func()) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fn()
		case <-s.done:
			return
		}
	}
}

func (s *Session) tick() {
	s.mu.Lock()
	if !s.state.Active() {
		s.mu.Unlock()
		return
	}
	ev := Event{
		Type:         EventTick,
		State:        s.state,
		Elapsed:      s.elapsedLocked(),
		EncodedBytes: s.encodedBytes,
	}
	s.mu.Unlock()

	s.emit(ev)
}

// onChunk records one encoded chunk. Chunks are accepted while draining.
func (s *Session) onChunk(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	s.mu.Lock()
	if !s.state.Active() && s.state != Stopping {
		s.mu.Unlock()
		return
	}

	s.chunks = append(s.chunks, chunk)
	s.encodedBytes += int64(len(chunk))

	var d Decision
	if s.state != Stopping {
		d = s.monitor.Evaluate(s.encodedBytes, s.elapsedLocked())
	}
	s.mu.Unlock()

	s.apply(d)
}

// EvaluateBudget re-checks the budget without a new chunk
func (s *Session) EvaluateBudget() Decision {
	s.mu.Lock()
	if !s.state.Active() {
		s.mu.Unlock()
		return Decision{}
	}
	d := s.monitor.Evaluate(s.encodedBytes, s.elapsedLocked())
	s.mu.Unlock()

	s.apply(d)
	return d
}

func (s *Session) apply(d Decision) {
	if d.Warn {
		est := d.Estimate
		s.emit(Event{
			Type: EventWarning,
			Warning: &Warning{
				Code:     WarnSizeBudget,
				Message:  "recording is approaching the size limit and will stop automatically soon",
				Estimate: &est,
				At:       s.deps.Clock.Now(),
			},
		})
	}

	if d.ForceStop {
		// The caller may be the recorder goroutine, which Stop waits on
		go s.stop(StopForced)
	}
}

// Pause suspends capture. Pausing a paused session is a no-op.
func (s *Session) Pause() (bool, error) {
	s.mu.Lock()
	switch s.state {
	case Paused:
		s.mu.Unlock()
		return false, nil
	case Recording:
	default:
		state := s.state
		s.mu.Unlock()
		return false, apperr.Conflict(fmt.Sprintf("cannot pause while %s", state))
	}

	if err := s.recorder.Pause(); err != nil {
		s.mu.Unlock()
		return false, apperr.Internalize(err)
	}
	s.pausedAt = s.deps.Clock.Now()
	s.state = Paused
	s.mu.Unlock()

	s.emitState(Paused)
	return true, nil
}

// Resume continues capture. Resuming a recording session is a no-op.
func (s *Session) Resume() (bool, error) {
	s.mu.Lock()
	switch s.state {
	case Recording:
		s.mu.Unlock()
		return false, nil
	case Paused:
	default:
		state := s.state
		s.mu.Unlock()
		return false, apperr.Conflict(fmt.Sprintf("cannot resume while %s", state))
	}

	if err := s.recorder.Resume(); err != nil {
		s.mu.Unlock()
		return false, apperr.Internalize(err)
	}
	s.pausedAccumulated += s.deps.Clock.Now().Sub(s.pausedAt)
	s.pausedAt = time.Time{}
	s.state = Recording
	s.mu.Unlock()

	s.emitState(Recording)
	return true, nil
}

// TogglePause pauses a recording session or resumes a paused one
func (s *Session) TogglePause() (State, error) {
	if s.State() == Paused {
		_, err := s.Resume()
		return s.State(), err
	}
	_, err := s.Pause()
	return s.State(), err
}

// Stop ends capture and assembles the recording. It reports whether this
// call performed the stop; stopping an inactive session is a no-op.
func (s *Session) Stop() (bool, error) {
	return s.stop(StopManual)
}

func (s *Session) stop(reason StopReason) (bool, error) {
	s.mu.Lock()
	if !s.state.Active() {
		s.mu.Unlock()
		return false, nil
	}

	now := s.deps.Clock.Now()
	if s.state == Paused {
		s.pausedAccumulated += now.Sub(s.pausedAt)
		s.pausedAt = time.Time{}
	}
	s.stoppedAt = now
	s.reason = reason
	s.state = Stopping
	recorder := s.recorder
	stream := s.stream
	close(s.done)
	s.mu.Unlock()

	s.emitState(Stopping)

	// Drain: the recorder delivers its last chunk before returning
	flushErr := recorder.Stop()
	s.wg.Wait()
	releaseErr := stream.Release()

	s.mu.Lock()
	if flushErr != nil {
		s.mu.Unlock()
		return true, s.fail(apperr.Wrap(apperr.KindInternal, "failed to flush recorder", flushErr))
	}

	data, err := s.encoder.Assemble(bytes.Join(s.chunks, nil))
	if err != nil {
		s.mu.Unlock()
		return true, s.fail(apperr.Wrap(apperr.KindInternal, "failed to assemble recording", err))
	}

	if releaseErr != nil {
		s.warnings = append(s.warnings, fmt.Sprintf("failed to release audio devices: %v", releaseErr))
	}

	capture := &Capture{
		SessionID:    s.id,
		Data:         data,
		MimeType:     s.encoder.MimeType(),
		Encoding:     s.choice,
		Elapsed:      s.elapsedLocked(),
		EncodedBytes: s.encodedBytes,
		Chunks:       len(s.chunks),
		Reason:       reason,
		Mode:         stream.Mode,
		Warnings:     append([]string(nil), s.warnings...),
		CreatedAt:    now,
	}
	s.capture = capture
	s.chunks = nil
	s.state = Transcribing
	s.mu.Unlock()

	if releaseErr != nil {
		s.emit(Event{Type: EventWarning, Warning: &Warning{
			Code:    WarnRelease,
			Message: releaseErr.Error(),
			At:      now,
		}})
	}
	s.emitState(Transcribing)
	s.emit(Event{Type: EventStopped, State: Transcribing, Capture: capture, Elapsed: capture.Elapsed, EncodedBytes: capture.EncodedBytes})

	return true, nil
}

// Complete marks the handoff as successful
func (s *Session) Complete() error {
	s.mu.Lock()
	if s.state != Transcribing {
		state := s.state
		s.mu.Unlock()
		return apperr.Conflict(fmt.Sprintf("cannot complete while %s", state))
	}
	s.state = Complete
	s.mu.Unlock()

	s.emitState(Complete)
	return nil
}

// Fail marks the session as failed. It is a no-op once the session has ended.
func (s *Session) Fail(err error) {
	s.fail(err)
}

func (s *Session) fail(err error) error {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return err
	}
	s.state = Failed
	s.err = err
	s.mu.Unlock()

	s.emit(Event{Type: EventError, State: Failed, Err: err})
	s.emitState(Failed)
	return err
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Mode returns the mode the session was asked for
func (s *Session) Mode() audio.Mode {
	return s.mode
}

// Err returns the failure, if any
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Capture returns the assembled recording once stopped
func (s *Session) Capture() *Capture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture
}

// Elapsed returns recording time excluding pauses
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked()
}

// EncodedBytes returns the running encoded size
func (s *Session) EncodedBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encodedBytes
}

// Encoding returns the selected encoding
func (s *Session) Encoding() audio.Choice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.choice
}

// Warnings returns the warnings collected so far
func (s *Session) Warnings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.warnings...)
}

func (s *Session) elapsedLocked() time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}

	end := s.stoppedAt
	if end.IsZero() {
		end = s.deps.Clock.Now()
	}

	paused := s.pausedAccumulated
	if s.state == Paused {
		paused += end.Sub(s.pausedAt)
	}

	return end.Sub(s.startedAt) - paused
}

func (s *Session) emitState(state State) {
	s.emit(Event{Type: EventState, State: state})
}

func (s *Session) emit(ev Event) {
	if s.deps.Notify == nil {
		return
	}
	ev.SessionID = s.id
	s.deps.Notify(ev)
}

package dictation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yok-tottii/EchoDoc/internal/apperr"
	"github.com/yok-tottii/EchoDoc/internal/audio"
	"github.com/yok-tottii/EchoDoc/internal/events"
	"github.com/yok-tottii/EchoDoc/internal/generation"
	"github.com/yok-tottii/EchoDoc/internal/logger"
	"github.com/yok-tottii/EchoDoc/internal/recording"
	"github.com/yok-tottii/EchoDoc/internal/redact"
	"github.com/yok-tottii/EchoDoc/internal/store"
	"github.com/yok-tottii/EchoDoc/internal/transcription"
)

// Config holds controller configuration
type Config struct {
	Recording recording.Config
	// TranscribeTimeout bounds one transcription call (0 means no limit)
	TranscribeTimeout time.Duration
	// GenerateTimeout bounds one generation call (0 means no limit)
	GenerateTimeout time.Duration
}

// DefaultConfig returns the default controller configuration
func DefaultConfig() Config {
	return Config{
		Recording:         recording.DefaultConfig(),
		TranscribeTimeout: 2 * time.Minute,
		GenerateTimeout:   2 * time.Minute,
	}
}

// Deps are the collaborators of the controller
type Deps struct {
	Acquirer    recording.Acquirer
	Encoders    *audio.Registry
	Transcriber Transcriber
	// Generator may be nil when no generation provider is configured
	Generator Generator
	// History may be nil when history is disabled
	History  History
	Hub      *events.Hub
	Notifier Notifier
	Logger   *logger.Logger

	NewRecorder recording.RecorderFactory
	Clock       recording.Clock
	NewID       func() string
}

// Controller runs one capture session at a time and keeps its results
type Controller struct {
	config Config
	deps   Deps
	log    *logger.Logger

	mu         sync.Mutex
	session    *recording.Session
	startedAt  time.Time
	transcript *Transcript
	documents  map[generation.DocumentType]*generation.Document
	backup     *recording.Capture
	lastErr    error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a controller
func New(config Config, deps Deps) *Controller {
	if deps.Encoders == nil {
		deps.Encoders = audio.NewRegistry()
	}
	if deps.Hub == nil {
		deps.Hub = events.NewHub(events.DefaultBuffer)
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Clock == nil {
		deps.Clock = clockFunc(time.Now)
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		config:    config,
		deps:      deps,
		log:       deps.Logger.WithComponent("dictation"),
		documents: make(map[generation.DocumentType]*generation.Document),
		ctx:       ctx,
		cancel:    cancel,
	}
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

// Hub returns the event hub
func (c *Controller) Hub() *events.Hub {
	return c.deps.Hub
}

// Start begins a new capture session and returns its id.
// It fails with Conflict while the previous session has not ended.
func (c *Controller) Start(ctx context.Context, mode audio.Mode, deviceID string) (string, error) {
	c.mu.Lock()
	if c.session != nil && !c.session.State().Terminal() {
		state := c.session.State()
		c.mu.Unlock()
		return "", apperr.Conflict(fmt.Sprintf("a session is already %s", strings.ToLower(state.String())))
	}

	id := c.deps.NewID()
	sess := recording.NewSession(id, mode, c.config.Recording, recording.Deps{
		Acquirer:    c.deps.Acquirer,
		Encoders:    c.deps.Encoders,
		Prober:      c.deps.Encoders.Restrict(c.deps.Transcriber.Accepts),
		NewRecorder: c.deps.NewRecorder,
		Clock:       c.deps.Clock,
		Notify:      c.onSessionEvent,
	})
	c.session = sess
	c.startedAt = c.deps.Clock.Now()
	c.mu.Unlock()

	c.log.Info("Starting %s session %s (device %q)", mode, id, deviceID)

	if err := sess.Start(ctx, deviceID); err != nil {
		c.setErr(err)
		c.log.Error("Failed to start session %s: %v", id, err)
		c.notifyStartFailure(err)
		c.recordSession(sess, err)
		return "", err
	}

	// The previous session's artifacts survive until a new capture is
	// actually running.
	c.mu.Lock()
	if c.session == sess {
		c.transcript = nil
		c.documents = make(map[generation.DocumentType]*generation.Document)
		c.backup = nil
		c.lastErr = nil
	}
	c.mu.Unlock()

	c.notify(func(n Notifier) error { return n.RecordingStarted(mode.String()) })
	c.recordSession(sess, nil)
	return id, nil
}

func (c *Controller) notifyStartFailure(err error) {
	switch apperr.KindOf(err) {
	case apperr.KindPermissionDenied:
		c.notify(func(n Notifier) error { return n.MicrophonePermissionDenied() })
	case apperr.KindNoDeviceFound:
		c.notify(func(n Notifier) error { return n.DeviceNotFound() })
	default:
		c.notify(func(n Notifier) error { return n.RecordingFailed(apperr.Internalize(err).Message) })
	}
}

// Stop ends the current session. It reports whether this call stopped it;
// stopping when nothing is recording is a no-op.
func (c *Controller) Stop() (bool, error) {
	sess := c.current()
	if sess == nil {
		return false, nil
	}

	stopped, err := sess.Stop()
	if err != nil {
		c.setErr(err)
		c.log.Error("Failed to stop session %s: %v", sess.ID(), err)
		c.notify(func(n Notifier) error { return n.RecordingFailed(apperr.Internalize(err).Message) })
		c.recordSession(sess, err)
	}
	return stopped, err
}

// Pause suspends capture
func (c *Controller) Pause() (bool, error) {
	sess := c.current()
	if sess == nil {
		return false, apperr.Conflict("no recording in progress")
	}
	return sess.Pause()
}

// Resume continues a paused capture
func (c *Controller) Resume() (bool, error) {
	sess := c.current()
	if sess == nil {
		return false, apperr.Conflict("no recording in progress")
	}
	return sess.Resume()
}

// TogglePause pauses a recording session or resumes a paused one
func (c *Controller) TogglePause() (recording.State, error) {
	sess := c.current()
	if sess == nil {
		return recording.Idle, apperr.Conflict("no recording in progress")
	}
	return sess.TogglePause()
}

// Toggle starts a session when none is active and stops the active one
// otherwise. It backs the global hotkey.
func (c *Controller) Toggle(ctx context.Context, mode audio.Mode, deviceID string) error {
	if sess := c.current(); sess != nil && sess.State().Active() {
		_, err := c.Stop()
		return err
	}
	_, err := c.Start(ctx, mode, deviceID)
	return err
}

func (c *Controller) current() *recording.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Controller) setErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// Status returns a snapshot of the controller
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:         recording.Idle.String(),
		HasTranscript: c.transcript != nil,
		HasBackup:     c.backup != nil,
		Documents:     c.documentTypesLocked(),
	}
	if c.lastErr != nil {
		st.Error = apperr.Internalize(c.lastErr)
	}

	sess := c.session
	if sess == nil {
		return st
	}

	st.SessionID = sess.ID()
	st.State = sess.State().String()
	st.Mode = sess.Mode().String()
	st.ElapsedMs = sess.Elapsed().Milliseconds()
	st.EncodedBytes = sess.EncodedBytes()
	st.Warnings = sess.Warnings()
	if choice := sess.Encoding(); choice.MimeType != "" || choice.PlatformDefault {
		st.Encoding = &choice
	}
	return st
}

func (c *Controller) documentTypesLocked() []string {
	var types []string
	for _, t := range generation.DocumentTypes() {
		if _, ok := c.documents[t]; ok {
			types = append(types, string(t))
		}
	}
	return types
}

// Transcript returns the current transcript, or nil
func (c *Controller) Transcript() *Transcript {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transcript == nil {
		return nil
	}
	tr := *c.transcript
	return &tr
}

// SetTranscript replaces the transcript with text typed or edited by the
// user. Documents generated from the previous text are discarded.
func (c *Controller) SetTranscript(ctx context.Context, text string) (*Transcript, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.EmptyInput()
	}

	now := c.deps.Clock.Now()

	c.mu.Lock()
	if c.session != nil {
		if st := c.session.State(); !st.Terminal() && st != recording.Idle {
			c.mu.Unlock()
			return nil, apperr.Conflict(fmt.Sprintf("cannot edit the transcript while %s", strings.ToLower(st.String())))
		}
	}

	tr := &Transcript{Text: text, Manual: true, CreatedAt: now}
	newSession := true
	if c.transcript != nil {
		tr.SessionID = c.transcript.SessionID
		tr.Language = c.transcript.Language
		newSession = false
	}
	if tr.SessionID == "" {
		tr.SessionID = c.deps.NewID()
	}
	c.transcript = tr
	c.documents = make(map[generation.DocumentType]*generation.Document)
	c.lastErr = nil
	c.mu.Unlock()

	if c.deps.History != nil {
		if newSession {
			if err := c.deps.History.SaveSession(ctx, store.Session{
				ID:        tr.SessionID,
				Mode:      "manual",
				State:     recording.Complete.String(),
				StartedAt: now,
				EndedAt:   &now,
			}); err != nil {
				c.log.Warn("Failed to record manual session: %v", err)
			}
		}
		c.saveTranscript(ctx, tr)
	}

	c.publish(events.TypeTranscript, tr.SessionID, tr)
	out := *tr
	return &out, nil
}

// Generate produces one document from the transcript, or from an earlier
// clinical summary when FromType is set.
func (c *Controller) Generate(ctx context.Context, req GenerateRequest) (*generation.Document, error) {
	if c.deps.Generator == nil {
		return nil, apperr.New(apperr.KindGenerationService, "no document generation provider is configured")
	}
	if req.Type == "" {
		return nil, apperr.InvalidInput("type", "document type is required")
	}

	c.mu.Lock()
	var source, sessionID string
	if c.transcript != nil {
		source = c.transcript.Text
		sessionID = c.transcript.SessionID
	}
	if req.FromType != "" {
		if !req.Type.Derivable() || req.FromType != generation.ClinicalSummary {
			c.mu.Unlock()
			return nil, apperr.InvalidInput("fromType", fmt.Sprintf("%s cannot be derived from %s", req.Type, req.FromType))
		}
		from, ok := c.documents[req.FromType]
		if !ok {
			c.mu.Unlock()
			return nil, apperr.Conflict(fmt.Sprintf("generate a %s first", req.FromType))
		}
		source = from.Text
	}
	c.mu.Unlock()

	if strings.TrimSpace(source) == "" {
		return nil, apperr.EmptyInput()
	}

	if req.Redact {
		res := redact.Apply(source)
		source = res.Text
		c.log.Info("Redacted %d identifiers before generating %s", res.Total(), req.Type)
	}

	if c.config.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.GenerateTimeout)
		defer cancel()
	}

	doc, err := c.deps.Generator.Generate(ctx, source, req.Type)
	if err != nil {
		appErr := apperr.Internalize(err)
		c.log.Error("Failed to generate %s: %v", req.Type, err)
		c.publish(events.TypeError, sessionID, appErr)
		c.notify(func(n Notifier) error { return n.GenerationFailed(appErr.Message) })
		return nil, appErr
	}
	doc.Redacted = req.Redact

	c.mu.Lock()
	c.documents[req.Type] = doc
	c.mu.Unlock()

	c.publish(events.TypeDocument, sessionID, doc)
	c.notify(func(n Notifier) error { return n.DocumentReady(string(req.Type)) })

	if c.deps.History != nil && sessionID != "" {
		if _, err := c.deps.History.SaveDocument(ctx, store.Document{
			SessionID: sessionID,
			Type:      string(doc.Type),
			Text:      doc.Text,
			Provider:  doc.Provider,
			Model:     doc.Model,
			Redacted:  doc.Redacted,
			CreatedAt: doc.CreatedAt,
		}); err != nil {
			c.log.Warn("Failed to record document: %v", err)
		}
	}

	out := *doc
	return &out, nil
}

// Documents returns the documents generated from the current transcript,
// in display order
func (c *Controller) Documents() []generation.Document {
	c.mu.Lock()
	defer c.mu.Unlock()

	docs := make([]generation.Document, 0, len(c.documents))
	for _, t := range generation.DocumentTypes() {
		if d, ok := c.documents[t]; ok {
			docs = append(docs, *d)
		}
	}
	return docs
}

// Document returns one generated document
func (c *Controller) Document(t generation.DocumentType) (*generation.Document, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.documents[t]
	if !ok {
		return nil, false
	}
	out := *d
	return &out, true
}

// Backup returns the capture kept after a failed transcription or a forced
// stop, or nil
func (c *Controller) Backup() *recording.Capture {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backup
}

// BackupFileName names the backup file for a capture
func BackupFileName(capture *recording.Capture) string {
	return fmt.Sprintf("echodoc-%s-%s%s", capture.SessionID, capture.CreatedAt.Format("20060102-150405"), audio.FileExtension(capture.MimeType))
}

// SaveBackup writes the backup capture into dir and returns the file path
func (c *Controller) SaveBackup(dir string) (string, error) {
	backup := c.Backup()
	if backup == nil {
		return "", apperr.Conflict("no backup recording is available")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "failed to create backup directory", err)
	}

	path := filepath.Join(dir, BackupFileName(backup))
	if err := os.WriteFile(path, backup.Data, 0600); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "failed to write backup", err)
	}

	c.log.Info("Saved backup recording to %s", path)
	return path, nil
}

// Wait blocks until background transcriptions have finished
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close stops any active session and waits for pending work. In-flight
// provider calls are cancelled.
func (c *Controller) Close() error {
	_, err := c.Stop()
	c.cancel()
	c.wg.Wait()
	return err
}

// StateData is the payload of state events
type StateData struct {
	State string `json:"state"`
	Mode  string `json:"mode,omitempty"`
}

// TickData is the payload of tick events
type TickData struct {
	ElapsedMs    int64 `json:"elapsedMs"`
	EncodedBytes int64 `json:"encodedBytes"`
}

// StoppedData is the payload of stopped events
type StoppedData struct {
	Reason       string `json:"reason"`
	MimeType     string `json:"mimeType"`
	ElapsedMs    int64  `json:"elapsedMs"`
	EncodedBytes int64  `json:"encodedBytes"`
	AudioBytes   int    `json:"audioBytes"`
}

// onSessionEvent runs on whichever goroutine the session emits from. It must
// not call back into the session synchronously.
func (c *Controller) onSessionEvent(ev recording.Event) {
	switch ev.Type {
	case recording.EventState:
		c.publish(events.TypeState, ev.SessionID, StateData{State: ev.State.String()})

	case recording.EventTick:
		c.publish(events.TypeTick, ev.SessionID, TickData{
			ElapsedMs:    ev.Elapsed.Milliseconds(),
			EncodedBytes: ev.EncodedBytes,
		})

	case recording.EventWarning:
		if ev.Warning == nil {
			return
		}
		c.log.Warn("Session %s: %s", ev.SessionID, ev.Warning.Message)
		c.publish(events.TypeWarning, ev.SessionID, ev.Warning)
		if ev.Warning.Code == recording.WarnSizeBudget && ev.Warning.Estimate != nil {
			remaining := ev.Warning.Estimate.Remaining
			c.notify(func(n Notifier) error { return n.SizeBudgetWarning(remaining) })
		}

	case recording.EventError:
		c.publish(events.TypeError, ev.SessionID, apperr.Internalize(ev.Err))

	case recording.EventStopped:
		capture := ev.Capture
		if capture == nil {
			return
		}
		c.log.Info("Session %s stopped (%s, %d bytes, %s)", ev.SessionID, capture.Reason, len(capture.Data), capture.Elapsed)
		c.publish(events.TypeStopped, ev.SessionID, StoppedData{
			Reason:       capture.Reason.String(),
			MimeType:     capture.MimeType,
			ElapsedMs:    capture.Elapsed.Milliseconds(),
			EncodedBytes: capture.EncodedBytes,
			AudioBytes:   len(capture.Data),
		})
		c.mu.Lock()
		sess := c.session
		if sess != nil && sess.ID() == ev.SessionID && capture.Forced() {
			c.backup = capture
		}
		c.mu.Unlock()

		if capture.Forced() {
			c.notify(func(n Notifier) error { return n.ForcedStop() })
		}
		if sess == nil || sess.ID() != ev.SessionID {
			return
		}

		c.wg.Add(1)
		go c.transcribe(sess, capture)
	}
}

// transcribe hands the capture off and settles the session
func (c *Controller) transcribe(sess *recording.Session, capture *recording.Capture) {
	defer c.wg.Done()

	ctx := c.ctx
	if c.config.TranscribeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.TranscribeTimeout)
		defer cancel()
	}

	result, err := c.deps.Transcriber.Transcribe(ctx, transcription.Audio{
		Data:     capture.Data,
		MimeType: capture.MimeType,
	})
	if err != nil {
		appErr := apperr.Internalize(err)
		c.mu.Lock()
		c.backup = capture
		c.lastErr = appErr
		c.mu.Unlock()

		c.log.Error("Transcription failed for session %s: %v", sess.ID(), err)
		sess.Fail(appErr)
		c.notify(func(n Notifier) error { return n.TranscriptionFailed(appErr.Message) })
		c.notify(func(n Notifier) error { return n.BackupAvailable() })
		c.recordSession(sess, appErr)
		return
	}

	tr := &Transcript{
		SessionID:  sess.ID(),
		Text:       result.Text,
		Provider:   result.Provider,
		Language:   result.Language,
		Confidence: result.Confidence,
		CreatedAt:  result.CreatedAt,
	}

	c.mu.Lock()
	c.transcript = tr
	c.mu.Unlock()

	if err := sess.Complete(); err != nil {
		c.log.Warn("Failed to complete session %s: %v", sess.ID(), err)
	}

	c.log.Info("Transcribed session %s with %s (%d characters)", sess.ID(), result.Provider, len(result.Text))
	c.publish(events.TypeTranscript, sess.ID(), tr)
	c.notify(func(n Notifier) error { return n.TranscriptionComplete() })

	c.recordSession(sess, nil)
	if c.deps.History != nil {
		c.saveTranscript(context.Background(), tr)
	}
}

func (c *Controller) saveTranscript(ctx context.Context, tr *Transcript) {
	if err := c.deps.History.SaveTranscript(ctx, store.Transcript{
		SessionID:  tr.SessionID,
		Text:       tr.Text,
		Provider:   tr.Provider,
		Language:   tr.Language,
		Confidence: tr.Confidence,
		Manual:     tr.Manual,
		CreatedAt:  tr.CreatedAt,
	}); err != nil {
		c.log.Warn("Failed to record transcript: %v", err)
	}
}

// recordSession upserts the session row when history is enabled
func (c *Controller) recordSession(sess *recording.Session, failure error) {
	if c.deps.History == nil {
		return
	}

	c.mu.Lock()
	startedAt := c.startedAt
	c.mu.Unlock()

	state := sess.State()
	row := store.Session{
		ID:           sess.ID(),
		Mode:         sess.Mode().String(),
		State:        state.String(),
		MimeType:     sess.Encoding().MimeType,
		EncodedBytes: sess.EncodedBytes(),
		Duration:     sess.Elapsed(),
		StartedAt:    startedAt,
	}
	if capture := sess.Capture(); capture != nil {
		row.StopReason = capture.Reason.String()
		row.MimeType = capture.MimeType
	}
	if failure != nil {
		row.Error = apperr.Internalize(failure).Message
	}
	if state.Terminal() {
		ended := c.deps.Clock.Now()
		row.EndedAt = &ended
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.deps.History.SaveSession(ctx, row); err != nil {
		c.log.Warn("Failed to record session %s: %v", row.ID, err)
	}
}

func (c *Controller) publish(typ events.Type, sessionID string, data any) {
	c.deps.Hub.Publish(events.Event{Type: typ, SessionID: sessionID, Data: data})
}

func (c *Controller) notify(send func(Notifier) error) {
	if c.deps.Notifier == nil {
		return
	}
	if err := send(c.deps.Notifier); err != nil {
		c.log.Debug("Notification failed: %v", err)
	}
}

package recording

import (
	"time"

	"github.com/yok-tottii/EchoDoc/internal/audio"
)

// State represents the current capture session state
type State int

const (
	// Idle means the session has not started
	Idle State = iota
	// Recording means audio is being captured
	Recording
	// Paused means capture is suspended
	Paused
	// Stopping means the recorder is draining its final chunk
	Stopping
	// Transcribing means the capture has been handed off
	Transcribing
	// Complete means a transcript was produced
	Complete
	// Failed means the session ended with an error
	Failed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Recording:
		return "Recording"
	case Paused:
		return "Paused"
	case Stopping:
		return "Stopping"
	case Transcribing:
		return "Transcribing"
	case Complete:
		return "Complete"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Active reports whether the session still owns live audio
func (s State) Active() bool {
	return s == Recording || s == Paused
}

// Terminal reports whether the session has ended
func (s State) Terminal() bool {
	return s == Complete || s == Failed
}

// StopReason records why a session stopped
type StopReason int

const (
	// StopManual is a stop requested by the user
	StopManual StopReason = iota
	// StopForced is a stop triggered by the size budget
	StopForced
)

// String returns the string representation of the reason
func (r StopReason) String() string {
	if r == StopForced {
		return "forced"
	}
	return "manual"
}

// Config holds configuration for capture sessions
type Config struct {
	// ChunkInterval is how often the recorder emits an encoded chunk
	ChunkInterval time.Duration
	// TickInterval is how often elapsed time is published (0 disables)
	TickInterval time.Duration
	// BudgetInterval is how often the budget is re-evaluated without a chunk (0 disables)
	BudgetInterval time.Duration
	// Budget is the size budget policy
	Budget Budget
	// Candidates is the encoding preference list
	Candidates []audio.Candidate
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		ChunkInterval:  time.Second,
		TickInterval:   time.Second,
		BudgetInterval: 5 * time.Second,
		Budget:         DefaultBudget(),
		Candidates:     audio.DefaultCandidates(),
	}
}

// EventType identifies a session event
type EventType string

const (
	// EventState is published on every state transition
	EventState EventType = "state"
	// EventTick carries elapsed time and size while recording
	EventTick EventType = "tick"
	// EventWarning carries a non-fatal warning
	EventWarning EventType = "warning"
	// EventStopped carries the finished capture
	EventStopped EventType = "stopped"
	// EventError carries a session failure
	EventError EventType = "error"
)

// Event is published by a session to its owner
type Event struct {
	Type         EventType
	SessionID    string
	State        State
	Elapsed      time.Duration
	EncodedBytes int64
	Warning      *Warning
	Capture      *Capture
	Err          error
}

// Warning codes
const (
	WarnSizeBudget  = "size_budget"
	WarnAcquisition = "acquisition"
	WarnRelease     = "release"
)

// Warning is a non-fatal, dismissable notice
type Warning struct {
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	Estimate *Estimate `json:"estimate,omitempty"`
	At       time.Time `json:"at"`
}

// Capture is the finished, assembled recording of one session
type Capture struct {
	SessionID    string
	Data         []byte
	MimeType     string
	Encoding     audio.Choice
	Elapsed      time.Duration
	EncodedBytes int64
	Chunks       int
	Reason       StopReason
	Mode         audio.Mode
	Warnings     []string
	CreatedAt    time.Time
}

// Forced reports whether the capture ended by a forced stop
func (c *Capture) Forced() bool {
	return c.Reason == StopForced
}

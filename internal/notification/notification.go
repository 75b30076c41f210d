package notification

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	// TypeInfo is an informational notification
	TypeInfo NotificationType = "info"
	// TypeWarning is a warning notification
	TypeWarning NotificationType = "warning"
	// TypeError is an error notification
	TypeError NotificationType = "error"
	// TypeSuccess is a success notification
	TypeSuccess NotificationType = "success"
)

// Notification represents a desktop notification
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
}

// Sender delivers a notification to the desktop
type Sender func(n *Notification) error

// beeepSender uses an alert for errors and a plain notification otherwise
func beeepSender(n *Notification) error {
	if n.Type == TypeError {
		return beeep.Alert(n.Title, n.Message, "")
	}
	return beeep.Notify(n.Title, n.Message, "")
}

// NotificationManager handles sending notifications to the user
type NotificationManager struct {
	appName string
	send    Sender

	mu      sync.RWMutex
	enabled bool
}

// NewNotificationManager creates a notification manager backed by the
// system notification center
func NewNotificationManager(appName string) *NotificationManager {
	return NewWithSender(appName, beeepSender)
}

// NewWithSender creates a notification manager with a custom sender
func NewWithSender(appName string, send Sender) *NotificationManager {
	return &NotificationManager{
		appName: appName,
		send:    send,
		enabled: true,
	}
}

// SetEnabled turns notifications on or off
func (nm *NotificationManager) SetEnabled(enabled bool) {
	nm.mu.Lock()
	nm.enabled = enabled
	nm.mu.Unlock()
}

// Enabled reports whether notifications are sent
func (nm *NotificationManager) Enabled() bool {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	return nm.enabled
}

// Send sends a notification to the user
func (nm *NotificationManager) Send(notification *Notification) error {
	if notification == nil {
		return fmt.Errorf("notification cannot be nil")
	}
	if !nm.Enabled() {
		return nil
	}
	if notification.Title == "" {
		notification.Title = nm.appName
	}

	if err := nm.send(notification); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

// SendInfo sends an informational notification
func (nm *NotificationManager) SendInfo(title, message string) error {
	return nm.Send(&Notification{Title: title, Message: message, Type: TypeInfo})
}

// SendWarning sends a warning notification
func (nm *NotificationManager) SendWarning(title, message string) error {
	return nm.Send(&Notification{Title: title, Message: message, Type: TypeWarning})
}

// SendError sends an error notification
func (nm *NotificationManager) SendError(title, message string) error {
	return nm.Send(&Notification{Title: title, Message: message, Type: TypeError})
}

// SendSuccess sends a success notification
func (nm *NotificationManager) SendSuccess(title, message string) error {
	return nm.Send(&Notification{Title: title, Message: message, Type: TypeSuccess})
}

// RecordingStarted sends a notification that recording has started
func (nm *NotificationManager) RecordingStarted(mode string) error {
	if mode == "telephone" {
		return nm.SendInfo(nm.appName, "Telephone call recording started")
	}
	return nm.SendInfo(nm.appName, "Dictation started")
}

// SizeBudgetWarning warns that the recording is approaching the upload limit
func (nm *NotificationManager) SizeBudgetWarning(remaining time.Duration) error {
	minutes := int(remaining.Round(time.Minute) / time.Minute)
	message := "Recording is approaching the size limit and will stop soon."
	if minutes >= 1 {
		message = fmt.Sprintf("Recording is approaching the size limit. About %d min left.", minutes)
	}
	return nm.SendWarning(nm.appName, message)
}

// ForcedStop reports a stop at the size limit
func (nm *NotificationManager) ForcedStop() error {
	return nm.SendWarning(nm.appName, "Recording reached the size limit and was stopped. The audio captured so far is being transcribed.")
}

// TranscriptionComplete sends a notification that transcription is complete
func (nm *NotificationManager) TranscriptionComplete() error {
	return nm.SendSuccess(nm.appName, "Transcript ready")
}

// DocumentReady sends a notification that a document was generated
func (nm *NotificationManager) DocumentReady(docType string) error {
	return nm.SendSuccess(nm.appName, fmt.Sprintf("Document ready: %s", docType))
}

// PasteComplete sends a notification that text has been pasted
func (nm *NotificationManager) PasteComplete() error {
	return nm.SendSuccess(nm.appName, "Text pasted")
}

// MicrophonePermissionDenied sends a notification that microphone permission is denied
func (nm *NotificationManager) MicrophonePermissionDenied() error {
	return nm.SendError(nm.appName, "Microphone access was denied. Allow it in System Settings.")
}

// AccessibilityPermissionDenied sends a notification that accessibility permission is denied
func (nm *NotificationManager) AccessibilityPermissionDenied() error {
	return nm.SendError(nm.appName, "Accessibility access was denied. Allow it in System Settings to paste.")
}

// RecordingFailed sends a notification that recording failed
func (nm *NotificationManager) RecordingFailed(reason string) error {
	return nm.SendError(nm.appName, withReason("Recording failed", reason))
}

// TranscriptionFailed sends a notification that transcription failed
func (nm *NotificationManager) TranscriptionFailed(reason string) error {
	return nm.SendError(nm.appName, withReason("Transcription failed", reason))
}

// GenerationFailed sends a notification that document generation failed
func (nm *NotificationManager) GenerationFailed(reason string) error {
	return nm.SendError(nm.appName, withReason("Document generation failed", reason))
}

// BackupAvailable tells the user the recording can still be downloaded
func (nm *NotificationManager) BackupAvailable() error {
	return nm.SendWarning(nm.appName, "The recording could not be transcribed. A backup is available in EchoDoc.")
}

// DeviceNotFound sends a notification that audio device is not found
func (nm *NotificationManager) DeviceNotFound() error {
	return nm.SendError(nm.appName, "No audio input device found. Reconnect the device and try again.")
}

func withReason(message, reason string) string {
	if reason == "" {
		return message
	}
	return message + ": " + reason
}

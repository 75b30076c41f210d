package notification

import (
	"errors"
	"strings"
	"testing"
	"time"
)

type recorder struct {
	sent []*Notification
	err  error
}

func (r *recorder) send(n *Notification) error {
	r.sent = append(r.sent, n)
	return r.err
}

func newTestManager() (*NotificationManager, *recorder) {
	r := &recorder{}
	return NewWithSender("EchoDoc", r.send), r
}

func TestNewNotificationManager(t *testing.T) {
	nm := NewNotificationManager("TestApp")

	if nm == nil {
		t.Fatal("Expected notification manager to be created")
	}

	if nm.appName != "TestApp" {
		t.Errorf("Expected appName to be TestApp, got %s", nm.appName)
	}

	if !nm.Enabled() {
		t.Error("Expected notifications to be enabled by default")
	}
}

func TestSendTypes(t *testing.T) {
	nm, r := newTestManager()

	nm.SendInfo("T", "info")
	nm.SendWarning("T", "warning")
	nm.SendError("T", "error")
	nm.SendSuccess("T", "success")

	expected := []NotificationType{TypeInfo, TypeWarning, TypeError, TypeSuccess}
	if len(r.sent) != len(expected) {
		t.Fatalf("Expected %d notifications, got %d", len(expected), len(r.sent))
	}
	for i, nt := range expected {
		if r.sent[i].Type != nt {
			t.Errorf("Expected type %s, got %s", nt, r.sent[i].Type)
		}
		if r.sent[i].Message != string(nt) {
			t.Errorf("Expected message %q, got %q", nt, r.sent[i].Message)
		}
	}
}

func TestDomainMessages(t *testing.T) {
	tests := []struct {
		name     string
		send     func(nm *NotificationManager) error
		typ      NotificationType
		contains string
	}{
		{"dictation started", func(nm *NotificationManager) error { return nm.RecordingStarted("microphone") }, TypeInfo, "Dictation"},
		{"telephone started", func(nm *NotificationManager) error { return nm.RecordingStarted("telephone") }, TypeInfo, "Telephone"},
		{"budget", func(nm *NotificationManager) error { return nm.SizeBudgetWarning(3 * time.Minute) }, TypeWarning, "About 3 min"},
		{"budget soon", func(nm *NotificationManager) error { return nm.SizeBudgetWarning(10 * time.Second) }, TypeWarning, "stop soon"},
		{"forced", func(nm *NotificationManager) error { return nm.ForcedStop() }, TypeWarning, "size limit"},
		{"transcript", func(nm *NotificationManager) error { return nm.TranscriptionComplete() }, TypeSuccess, "Transcript"},
		{"document", func(nm *NotificationManager) error { return nm.DocumentReady("referral") }, TypeSuccess, "referral"},
		{"paste", func(nm *NotificationManager) error { return nm.PasteComplete() }, TypeSuccess, "pasted"},
		{"mic denied", func(nm *NotificationManager) error { return nm.MicrophonePermissionDenied() }, TypeError, "Microphone"},
		{"accessibility", func(nm *NotificationManager) error { return nm.AccessibilityPermissionDenied() }, TypeError, "Accessibility"},
		{"recording failed", func(nm *NotificationManager) error { return nm.RecordingFailed("busy") }, TypeError, "Recording failed: busy"},
		{"transcription failed", func(nm *NotificationManager) error { return nm.TranscriptionFailed("") }, TypeError, "Transcription failed"},
		{"generation failed", func(nm *NotificationManager) error { return nm.GenerationFailed("rate limited") }, TypeError, "rate limited"},
		{"backup", func(nm *NotificationManager) error { return nm.BackupAvailable() }, TypeWarning, "backup"},
		{"device", func(nm *NotificationManager) error { return nm.DeviceNotFound() }, TypeError, "No audio input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nm, r := newTestManager()
			if err := tt.send(nm); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(r.sent) != 1 {
				t.Fatalf("Expected 1 notification, got %d", len(r.sent))
			}
			n := r.sent[0]
			if n.Type != tt.typ {
				t.Errorf("Expected type %s, got %s", tt.typ, n.Type)
			}
			if n.Title != "EchoDoc" {
				t.Errorf("Expected title EchoDoc, got %s", n.Title)
			}
			if !strings.Contains(n.Message, tt.contains) {
				t.Errorf("Expected message to contain %q, got %q", tt.contains, n.Message)
			}
		})
	}
}

func TestDisabled(t *testing.T) {
	nm, r := newTestManager()
	nm.SetEnabled(false)

	if err := nm.TranscriptionComplete(); err != nil {
		t.Errorf("Expected no error when disabled, got %v", err)
	}
	if len(r.sent) != 0 {
		t.Errorf("Expected nothing sent when disabled, got %d", len(r.sent))
	}
}

func TestSendFailure(t *testing.T) {
	nm, r := newTestManager()
	r.err = errors.New("no display")

	if err := nm.SendInfo("T", "m"); err == nil {
		t.Error("Expected sender error to be returned")
	}
}

func TestSendNilNotification(t *testing.T) {
	nm, _ := newTestManager()

	if err := nm.Send(nil); err == nil {
		t.Error("Expected error when sending nil notification")
	}
}

func TestDefaultTitle(t *testing.T) {
	nm, r := newTestManager()
	nm.Send(&Notification{Message: "m", Type: TypeInfo})

	if r.sent[0].Title != "EchoDoc" {
		t.Errorf("Expected app name as default title, got %q", r.sent[0].Title)
	}
}

// Package permissions checks the macOS privacy permissions EchoDoc needs:
// the microphone for recording, screen recording for telephone mode and
// accessibility for pasting into the clinical system.
package permissions

import (
	"os/exec"
	"strings"

	"github.com/yok-tottii/EchoDoc/internal/i18n"
)

// PermissionStatus represents the status of a system permission
type PermissionStatus int

const (
	// PermissionNotDetermined means the user hasn't been asked yet
	PermissionNotDetermined PermissionStatus = 0
	// PermissionRestricted means the permission is restricted by device management
	PermissionRestricted PermissionStatus = 1
	// PermissionDenied means the user has explicitly denied the permission
	PermissionDenied PermissionStatus = 2
	// PermissionAuthorized means the user has authorized the permission
	PermissionAuthorized PermissionStatus = 3
)

// Permission names a privacy permission
type Permission string

const (
	Microphone    Permission = "microphone"
	ScreenCapture Permission = "screen_capture"
	Accessibility Permission = "accessibility"
)

// settingsURLs open the matching System Settings pane
var settingsURLs = map[Permission]string{
	Microphone:    "x-apple.systempreferences:com.apple.preference.security?Privacy_Microphone",
	ScreenCapture: "x-apple.systempreferences:com.apple.preference.security?Privacy_ScreenCapture",
	Accessibility: "x-apple.systempreferences:com.apple.preference.security?Privacy_Accessibility",
}

// Probes read the platform permission state
type Probes struct {
	Microphone    func() PermissionStatus
	ScreenCapture func() PermissionStatus
	Accessibility func() PermissionStatus
	// Open shows a System Settings URL
	Open func(url string) error
}

// PermissionChecker provides methods for checking system permissions
type PermissionChecker struct {
	probes Probes
}

// NewPermissionChecker creates a permission checker for this platform
func NewPermissionChecker() *PermissionChecker {
	return NewWithProbes(Probes{
		Microphone:    microphoneStatus,
		ScreenCapture: screenCaptureStatus,
		Accessibility: accessibilityStatus,
		Open:          openURL,
	})
}

// NewWithProbes creates a permission checker over the given probes.
// A missing probe reports the permission as authorized.
func NewWithProbes(probes Probes) *PermissionChecker {
	authorized := func() PermissionStatus { return PermissionAuthorized }
	if probes.Microphone == nil {
		probes.Microphone = authorized
	}
	if probes.ScreenCapture == nil {
		probes.ScreenCapture = authorized
	}
	if probes.Accessibility == nil {
		probes.Accessibility = authorized
	}
	if probes.Open == nil {
		probes.Open = openURL
	}
	return &PermissionChecker{probes: probes}
}

func openURL(url string) error {
	return exec.Command("open", url).Run()
}

// CheckMicrophonePermission checks if the application has microphone access permission
func (pc *PermissionChecker) CheckMicrophonePermission() PermissionStatus {
	return pc.probes.Microphone()
}

// CheckScreenCapturePermission checks the permission telephone mode needs to capture system audio
func (pc *PermissionChecker) CheckScreenCapturePermission() PermissionStatus {
	return pc.probes.ScreenCapture()
}

// CheckAccessibilityPermission checks if the application has accessibility permission
func (pc *PermissionChecker) CheckAccessibilityPermission() PermissionStatus {
	return pc.probes.Accessibility()
}

// Check returns the status of one permission
func (pc *PermissionChecker) Check(p Permission) PermissionStatus {
	switch p {
	case Microphone:
		return pc.CheckMicrophonePermission()
	case ScreenCapture:
		return pc.CheckScreenCapturePermission()
	case Accessibility:
		return pc.CheckAccessibilityPermission()
	default:
		return PermissionNotDetermined
	}
}

// IsMicrophoneAuthorized returns whether microphone permission is granted
func (pc *PermissionChecker) IsMicrophoneAuthorized() bool {
	return pc.CheckMicrophonePermission() == PermissionAuthorized
}

// IsAccessibilityAuthorized returns whether accessibility permission is granted
func (pc *PermissionChecker) IsAccessibilityAuthorized() bool {
	return pc.CheckAccessibilityPermission() == PermissionAuthorized
}

// Request opens System Settings at the pane for a permission
func (pc *PermissionChecker) Request(p Permission) error {
	url, ok := settingsURLs[p]
	if !ok {
		return nil
	}
	return pc.probes.Open(url)
}

// RequestMicrophonePermission opens system settings for microphone permission
func (pc *PermissionChecker) RequestMicrophonePermission() error {
	return pc.Request(Microphone)
}

// RequestAccessibilityPermission opens system settings for accessibility permission
func (pc *PermissionChecker) RequestAccessibilityPermission() error {
	return pc.Request(Accessibility)
}

// PermissionStatus string representation
func (ps PermissionStatus) String() string {
	switch ps {
	case PermissionNotDetermined:
		return "NotDetermined"
	case PermissionRestricted:
		return "Restricted"
	case PermissionDenied:
		return "Denied"
	case PermissionAuthorized:
		return "Authorized"
	default:
		return "Unknown"
	}
}

// MarshalText lets a status appear by name in JSON
func (ps PermissionStatus) MarshalText() ([]byte, error) {
	return []byte(ps.String()), nil
}

// Report is the state of every permission
type Report struct {
	Microphone    PermissionStatus `json:"microphone"`
	ScreenCapture PermissionStatus `json:"screen_capture"`
	Accessibility PermissionStatus `json:"accessibility"`
}

// CheckAll checks every permission
func (pc *PermissionChecker) CheckAll() Report {
	return Report{
		Microphone:    pc.CheckMicrophonePermission(),
		ScreenCapture: pc.CheckScreenCapturePermission(),
		Accessibility: pc.CheckAccessibilityPermission(),
	}
}

// CheckAllPermissions checks the permissions dictation cannot work without
func (pc *PermissionChecker) CheckAllPermissions() map[string]bool {
	return map[string]bool{
		string(Microphone):    pc.IsMicrophoneAuthorized(),
		string(Accessibility): pc.IsAccessibilityAuthorized(),
	}
}

// AreAllPermissionsGranted returns whether all required permissions are granted
func (pc *PermissionChecker) AreAllPermissionsGranted() bool {
	perms := pc.CheckAllPermissions()
	for _, granted := range perms {
		if !granted {
			return false
		}
	}
	return true
}

// GetMissingPermissionsMessage lists the missing required permissions in the translator's language
func (pc *PermissionChecker) GetMissingPermissionsMessage(tr *i18n.Translator) string {
	var missing []string

	if !pc.IsMicrophoneAuthorized() {
		missing = append(missing, tr.Translate("permission.microphone"))
	}
	if !pc.IsAccessibilityAuthorized() {
		missing = append(missing, tr.Translate("permission.accessibility"))
	}

	if len(missing) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(tr.Translate("permission.missing"))
	b.WriteString("\n")
	for _, perm := range missing {
		b.WriteString("  • " + perm + "\n")
	}
	return b.String()
}

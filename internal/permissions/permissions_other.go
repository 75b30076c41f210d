//go:build !darwin

package permissions

// Other platforms have no privacy prompts to check.

func microphoneStatus() PermissionStatus    { return PermissionAuthorized }
func accessibilityStatus() PermissionStatus { return PermissionAuthorized }
func screenCaptureStatus() PermissionStatus { return PermissionAuthorized }

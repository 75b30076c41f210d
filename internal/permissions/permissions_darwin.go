//go:build darwin

package permissions

/*
#cgo CFLAGS: -x objective-c -fmodules
#cgo LDFLAGS: -framework AVFoundation -framework ApplicationServices -framework CoreGraphics

#import <AVFoundation/AVFoundation.h>
#import <ApplicationServices/ApplicationServices.h>
#import <CoreGraphics/CoreGraphics.h>

int check_microphone_permission() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
    return (int)status;
}

int check_accessibility_permission() {
    Boolean isAccessibilityEnabled = AXIsProcessTrusted();
    return isAccessibilityEnabled ? 1 : 0;
}

int check_screen_capture_permission() {
    return CGPreflightScreenCaptureAccess() ? 1 : 0;
}
*/
import "C"

func microphoneStatus() PermissionStatus {
	return PermissionStatus(C.check_microphone_permission())
}

func accessibilityStatus() PermissionStatus {
	if C.check_accessibility_permission() == 1 {
		return PermissionAuthorized
	}
	return PermissionDenied
}

func screenCaptureStatus() PermissionStatus {
	if C.check_screen_capture_permission() == 1 {
		return PermissionAuthorized
	}
	return PermissionNotDetermined
}

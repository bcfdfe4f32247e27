package capture

import (
	"image"

	"github.com/vova616/screenshot"
)

// Grab returns a capture of the whole primary screen.
func Grab() (*image.RGBA, error) {
	return screenshot.CaptureScreen()
}

// GrabSelection captures only the given screen rectangle.
func GrabSelection(sel image.Rectangle) (*image.RGBA, error) {
	return screenshot.CaptureRect(sel)
}

// ScreenBounds reports the primary screen rectangle.
func ScreenBounds() (image.Rectangle, error) {
	return screenshot.ScreenRect()
}

// grabber captures either the selection or the full screen.
func grabber(sel *image.Rectangle) (*image.RGBA, error) {
	if sel != nil && !sel.Empty() {
		return GrabSelection(*sel)
	}
	return Grab()
}

package capture

import (
	"sync"

	"gocv.io/x/gocv"
)

// Camera reads frames from an OpenCV video capture device or video file.
type Camera struct {
	// Device is either a device index (int) or a file path / stream URL (string).
	Device interface{}

	mu      sync.Mutex
	capture *gocv.VideoCapture
}

// NewCamera creates a camera source for the given device index or path.
//
// @example
// cam := NewCamera(0)
// if err := cam.Open(); err != nil {
//     return err
// }
// defer cam.Release()
func NewCamera(device interface{}) *Camera {
	return &Camera{Device: device}
}

// Open implements Source.
func (c *Camera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture != nil {
		return nil
	}

	vc, err := gocv.OpenVideoCapture(c.Device)
	if err != nil {
		return deviceError(c.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return deviceError(c.Device, nil)
	}

	c.capture = vc
	return nil
}

// Read implements Source.
func (c *Camera) Read(dst *gocv.Mat) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return false
	}
	if ok := c.capture.Read(dst); !ok {
		return false
	}
	return !dst.Empty()
}

// IsOpen implements Source.
func (c *Camera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture != nil && c.capture.IsOpened()
}

// Release implements Source.
func (c *Camera) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil
	}
	err := c.capture.Close()
	c.capture = nil
	return err
}

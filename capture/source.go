// Package capture - Frame sources feeding the sampling loop.
//
// A Source is opened once per counting session, read once per tick and released
// when the session stops. Two implementations are provided: Camera, backed by an
// OpenCV video capture device or file, and Sequence, which replays a directory of
// still frames.
package capture

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrDevice is returned by Open when the underlying device cannot be opened.
var ErrDevice = errors.New("capture: device error")

// Source produces raw frames.
type Source interface {
	// Open acquires the underlying device. It fails with an error wrapping ErrDevice.
	Open() error
	// Read copies the next frame into dst. It returns false when no frame is
	// available; dst is then left empty or unchanged and must not be used.
	Read(dst *gocv.Mat) bool
	// IsOpen reports whether Open succeeded and Release has not been called since.
	IsOpen() bool
	// Release frees the underlying device. Releasing a closed source is a no-op.
	Release() error
}

// deviceError wraps ErrDevice with the name of the device and the cause.
func deviceError(device interface{}, cause error) error {
	if cause == nil {
		return errors.Wrapf(ErrDevice, "open %v", device)
	}
	return errors.Wrapf(ErrDevice, "open %v: %v", device, cause)
}

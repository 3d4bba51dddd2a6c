// Package test - Shared fixtures for tests that need real OpenCV frames.
package test

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// MockFrameGenerator creates deterministic test frames.
//
// Every frame is a flat mid-gray background. Motion frames add a solid white
// square, which a freshly trained background model reports as foreground.
//
// @example
// gen := NewMockFrameGenerator(320, 240)
// frame := gen.GenerateStaticFrame()
// defer frame.Close()
type MockFrameGenerator struct {
	width  int
	height int
}

// NewMockFrameGenerator creates a new frame generator with specified dimensions.
//
// Arguments:
// - width: Frame width in pixels.
// - height: Frame height in pixels.
//
// Returns:
// - A configured MockFrameGenerator instance.
func NewMockFrameGenerator(width, height int) *MockFrameGenerator {
	return &MockFrameGenerator{
		width:  width,
		height: height,
	}
}

// Bounds returns the frame rectangle.
func (g *MockFrameGenerator) Bounds() image.Rectangle {
	return image.Rect(0, 0, g.width, g.height)
}

// GenerateStaticFrame creates a static background frame.
//
// Returns:
// - A 3-channel Mat filled with mid-gray. The caller must Close it.
func (g *MockFrameGenerator) GenerateStaticFrame() gocv.Mat {
	frame := gocv.NewMatWithSize(g.height, g.width, gocv.MatTypeCV8UC3)
	frame.SetTo(gocv.NewScalar(128, 128, 128, 0))
	return frame
}

// GenerateMotionFrame creates a frame with a white square at a specific position.
//
// Arguments:
// - x: X coordinate of the square.
// - y: Y coordinate of the square.
// - size: Side of the square in pixels.
//
// Returns:
// - A 3-channel Mat. The caller must Close it.
func (g *MockFrameGenerator) GenerateMotionFrame(x, y, size int) gocv.Mat {
	frame := g.GenerateStaticFrame()
	rect := image.Rect(x, y, x+size, y+size)
	gocv.Rectangle(&frame, rect, color.RGBA{255, 255, 255, 0}, -1)
	return frame
}

// GenerateImage returns an image.Image counterpart of GenerateMotionFrame, or of
// GenerateStaticFrame when size is zero.
func (g *MockFrameGenerator) GenerateImage(x, y, size int) *image.RGBA {
	img := image.NewRGBA(g.Bounds())
	gray := color.RGBA{128, 128, 128, 255}
	white := color.RGBA{255, 255, 255, 255}
	square := image.Rect(x, y, x+size, y+size)

	for py := 0; py < g.height; py++ {
		for px := 0; px < g.width; px++ {
			if size > 0 && image.Pt(px, py).In(square) {
				img.SetRGBA(px, py, white)
				continue
			}
			img.SetRGBA(px, py, gray)
		}
	}
	return img
}

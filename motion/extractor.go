// Package motion - Foreground extraction using an adaptive background model.
//
// The Extractor wraps gocv's MOG2 background subtractor and turns every frame
// into a cleaned binary foreground mask and a scalar activity value:
//
//	┌──────────────┐
//	│ Input Frame  │
//	└──────┬───────┘
//	┌────────────────────────────┐
//	│ Background Subtraction     │
//	│       (MOG2)               │
//	└──────┬─────────────────────┘
//	┌────────────────────────────┐
//	│ Morphological opening      │
//	│ (erode, then dilate)       │
//	└──────┬─────────────────────┘
//	┌────────────────────────────┐
//	│ CountNonZero -> activity   │
//	└────────────────────────────┘
//
// The background model carries state across frames. Call Reset to start a new
// model and Close to release the native resources.
package motion

import (
	"image"
	"sync"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrEmptyFrame is returned when Extract is handed a frame with no pixels.
var ErrEmptyFrame = errors.New("motion: empty frame")

// Config contains the parameters of the background model and the mask cleanup.
type Config struct {
	// History is the number of frames the background model remembers.
	History int
	// Threshold is the squared Mahalanobis distance above which a pixel is foreground.
	Threshold float64
	// KernelSize is the width and height of the elliptical structuring element.
	KernelSize int
	// DetectRegions enables bounding-box extraction of the foreground blobs.
	DetectRegions bool
	// MinRegionArea discards contours smaller than this many pixels.
	MinRegionArea float64
}

// DefaultConfig returns the background model used for repetition counting:
// 100 frames of history, threshold 75, no shadow detection, 10x10 ellipse.
func DefaultConfig() Config {
	return Config{
		History:       100,
		Threshold:     75.0,
		KernelSize:    10,
		DetectRegions: false,
		MinRegionArea: 0,
	}
}

// Result is the output of a single Extract call.
type Result struct {
	// Mask is the cleaned foreground mask. It is owned by the Extractor and is
	// only valid until the next call to Extract, Reset or Close.
	Mask gocv.Mat
	// Activity is the number of non-zero pixels in Mask.
	Activity int
	// Coverage is Activity as a fraction of the frame area.
	Coverage float32
	// Regions are the merged bounding boxes of the foreground blobs.
	Regions []image.Rectangle
}

// Extractor converts frames into foreground masks and activity counts.
type Extractor struct {
	config     Config
	subtractor gocv.BackgroundSubtractorMOG2
	kernel     gocv.Mat
	mask       gocv.Mat
	frameCount int64
	closed     bool
	mu         sync.Mutex
}

// NewExtractor creates a new extractor with a fresh background model.
//
// Arguments:
//   - config: Background model and morphology parameters.
//
// Returns:
//   - *Extractor: The initialized extractor.
//
// @example
// e := NewExtractor(DefaultConfig())
// defer e.Close()
// res, err := e.Extract(frame)
func NewExtractor(config Config) *Extractor {
	def := DefaultConfig()
	if config.History <= 0 {
		config.History = def.History
	}
	if config.Threshold <= 0 {
		config.Threshold = def.Threshold
	}
	if config.KernelSize <= 0 {
		config.KernelSize = def.KernelSize
	}

	return &Extractor{
		config:     config,
		subtractor: newSubtractor(config),
		kernel:     gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(config.KernelSize, config.KernelSize)),
		mask:       gocv.NewMat(),
	}
}

func newSubtractor(config Config) gocv.BackgroundSubtractorMOG2 {
	return gocv.NewBackgroundSubtractorMOG2WithParams(
		config.History,
		config.Threshold,
		false, // Detect shadows
	)
}

// Extract feeds frame into the background model and measures the foreground.
//
// The first frame after construction or Reset always reports Activity 0: the
// model has not converged yet and would otherwise flag the whole frame.
//
// Arguments:
//   - frame: The video frame to analyze.
//
// Returns:
//   - Result: The cleaned mask and activity measurements.
//   - error: ErrEmptyFrame for an empty frame, or a wrapped OpenCV error.
func (e *Extractor) Extract(frame gocv.Mat) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return Result{}, errors.New("motion: extractor is closed")
	}
	if frame.Empty() {
		return Result{}, ErrEmptyFrame
	}

	if err := e.subtractor.Apply(frame, &e.mask); err != nil {
		return Result{}, errors.Wrap(err, "apply background model")
	}

	// Opening removes speckle noise before counting.
	if err := gocv.Erode(e.mask, &e.mask, e.kernel); err != nil {
		return Result{}, errors.Wrap(err, "erode foreground mask")
	}
	if err := gocv.Dilate(e.mask, &e.mask, e.kernel); err != nil {
		return Result{}, errors.Wrap(err, "dilate foreground mask")
	}

	e.frameCount++
	res := Result{Mask: e.mask}
	if e.frameCount == 1 {
		return res, nil
	}

	res.Activity = gocv.CountNonZero(e.mask)
	res.Coverage = coverage(res.Activity, e.mask.Rows()*e.mask.Cols())

	if e.config.DetectRegions && res.Activity > 0 {
		res.Regions = e.regions()
	}

	return res, nil
}

// regions returns the merged bounding boxes of the contours in the current mask.
func (e *Extractor) regions() []image.Rectangle {
	contours := gocv.FindContours(e.mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	rects := make([]image.Rectangle, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		if gocv.ContourArea(contour) < e.config.MinRegionArea {
			continue
		}
		rects = append(rects, gocv.BoundingRect(contour))
	}

	return MergeOverlapping(rects)
}

func coverage(active, total int) float32 {
	if total <= 0 {
		return 0
	}
	return math32.Min(float32(active)/float32(total), 1)
}

// FrameCount returns the number of frames fed to the current background model.
func (e *Extractor) FrameCount() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frameCount
}

// Config returns the extractor configuration.
func (e *Extractor) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config
}

// Reset discards the background model and re-arms the first-frame zero floor.
//
// Use this when a new counting session starts so the previous scene does not
// leak into the new baseline.
func (e *Extractor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	e.subtractor.Close()
	e.subtractor = newSubtractor(e.config)
	e.mask.Close()
	e.mask = gocv.NewMat()
	e.frameCount = 0
}

// Close releases the background model and the OpenCV matrices.
//
// This method must be called when the extractor is no longer needed. It is safe
// to call more than once.
func (e *Extractor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true

	e.subtractor.Close()
	e.kernel.Close()
	e.mask.Close()
}

package capture

import (
	"bytes"
	"image"
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"sync"

	"github.com/nfnt/resize"
	"github.com/nvr-ai/go-reps/util"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

var errNoFrames = errors.New("no frames in directory")

// Sequence replays a directory of still frames as if it were a camera.
//
// Frames are decoded lazily, one per Read, and optionally downscaled so that
// they are at most Width pixels wide. Once every frame has been read, Read
// reports no frame unless Loop is set.
type Sequence struct {
	// Dir is the directory holding the frames.
	Dir string
	// Width is the maximum processing width. Zero keeps the native size.
	Width uint
	// Loop restarts from the first frame after the last one.
	Loop bool

	mu     sync.Mutex
	files  []util.ImageFile
	next   int
	opened bool
}

// NewSequence creates a source replaying the frames in dir.
func NewSequence(dir string, width uint, loop bool) *Sequence {
	return &Sequence{Dir: dir, Width: width, Loop: loop}
}

// Open implements Source.
func (s *Sequence) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return nil
	}

	files, err := util.LoadDirectoryImageFiles(s.Dir)
	if err != nil {
		return deviceError(s.Dir, err)
	}
	if len(files) == 0 {
		return deviceError(s.Dir, errNoFrames)
	}

	s.files = files
	s.next = 0
	s.opened = true
	return nil
}

// Read implements Source. A frame that fails to decode is reported as missing.
func (s *Sequence) Read(dst *gocv.Mat) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return false
	}
	if s.next >= len(s.files) {
		if !s.Loop {
			return false
		}
		s.next = 0
	}

	file := s.files[s.next]
	s.next++

	img, _, err := image.Decode(bytes.NewReader(file.Data))
	if err != nil {
		return false
	}
	if s.Width > 0 && uint(img.Bounds().Dx()) > s.Width {
		img = resize.Resize(s.Width, 0, img, resize.Bilinear)
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return false
	}
	defer mat.Close()

	mat.CopyTo(dst)
	return !dst.Empty()
}

// Remaining returns the number of frames left before the end of the sequence.
func (s *Sequence) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files) - s.next
}

// IsOpen implements Source.
func (s *Sequence) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// Release implements Source.
func (s *Sequence) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.files = nil
	s.next = 0
	s.opened = false
	return nil
}

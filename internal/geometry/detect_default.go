//go:build !gocv

package geometry

// NewAutoDetector returns the automatic corner detector compiled into this
// build.
func NewAutoDetector() Detector {
	return NewContourDetector()
}

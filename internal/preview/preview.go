// Package preview produces encoded preview frames for assets. Rendering
// itself is outside this module; renderers here either read frames produced
// by an external capture step or report that rendering is unavailable.
package preview

import (
	"context"
	"errors"
	"math"
	"strconv"

	"github.com/leefowlercu/asset-snapshot/internal/registry"
)

const (
	// DefaultResolution is the square capture size in pixels.
	DefaultResolution = 1024

	// DefaultFOV is the horizontal camera field of view in degrees.
	DefaultFOV = 30.0

	// MinDistance is the closest the camera is ever placed, in centimeters.
	MinDistance = 50.0
)

var (
	// ErrUnavailable is returned by renderers that cannot capture in the
	// current environment.
	ErrUnavailable = errors.New("preview rendering unavailable")

	// ErrNoFrames is returned when a renderer found nothing to return.
	ErrNoFrames = errors.New("no preview frames")
)

// Request describes one capture.
type Request struct {
	Asset registry.Asset

	// Frames is the number of frames wanted, at least 1.
	Frames int

	// DiscardFrames is the number of warm-up frames dropped before capture.
	DiscardFrames int

	Resolution int
	FOV        float64

	// Padding scales the fitted camera distance.
	Padding float64

	// MinFrameBytes flags captures with smaller encoded frames as low quality.
	// Zero disables the check.
	MinFrameBytes int
}

// Result is a completed capture. Frames are encoded WebP images in order.
type Result struct {
	Frames     [][]byte
	Distance   float64
	LowQuality bool
}

// Renderer captures preview frames for an asset.
type Renderer interface {
	Capture(ctx context.Context, req Request) (Result, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, req Request) (Result, error)

// Capture calls f.
func (f RendererFunc) Capture(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// FrameName returns the archive name of frame i.
func FrameName(i int) string {
	return strconv.Itoa(i) + ".webp"
}

// CameraDistance fits a bounding sphere of radius into a camera with the
// given field of view, scaled by padding and never below MinDistance.
func CameraDistance(radius, fovDeg, padding float64) float64 {
	halfFOV := fovDeg * 0.5 * math.Pi / 180
	dist := radius / math.Tan(halfFOV) * padding
	return math.Max(MinDistance, dist)
}

// BoundsRadius returns the bounding sphere radius of an axis-aligned box.
func BoundsRadius(b registry.Bounds) float64 {
	return math.Sqrt(b.X*b.X+b.Y*b.Y+b.Z*b.Z) / 2
}

// Headless is the renderer used when no capture backend exists. Every
// capture reports ErrUnavailable so callers fall back to a placeholder.
type Headless struct{}

// Capture implements Renderer.
func (Headless) Capture(ctx context.Context, req Request) (Result, error) {
	return Result{}, ErrUnavailable
}

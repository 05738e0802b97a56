package tracer

import (
	"time"

	"github.com/achilleasa/boxtrace/scene"
)

// Debug modes replace the path traced radiance with a visualization of the
// primary ray intersection.
type DebugMode uint8

const (
	DebugOff DebugMode = iota
	DebugDepth
	DebugNormals
	DebugSteps
)

func (m DebugMode) String() string {
	switch m {
	case DebugDepth:
		return "depth"
	case DebugNormals:
		return "normals"
	case DebugSteps:
		return "steps"
	}
	return "off"
}

// Settings that control how rays are sampled and shaded.
type Settings struct {
	// The maximum number of traversal steps (box entries, leaf tests and
	// ascents) for a single sample path. Exceeding the budget terminates
	// the path with whatever radiance it has accumulated.
	MaxSteps uint32

	// Number of diffuse events allowed before the path is terminated.
	MaxDiffuseBounces uint32

	// When set, the sky contributes light along paths that underwent a
	// diffuse bounce, like any other light source. By default the sky is
	// only a backdrop seen directly or through mirrors, so diffuse
	// surfaces are lit by emissive objects alone and an enclosed scene
	// without emitters renders black.
	SkyLighting bool

	Debug DebugMode
}

// Get the default sampling settings.
func DefaultSettings() Settings {
	return Settings{
		MaxSteps:          20,
		MaxDiffuseBounces: 1,
	}
}

// A unit of work that is processed by a tracer.
type BlockRequest struct {
	// The scene and camera view to render. The scene must not be modified
	// while a request referencing it is in flight.
	Scene *scene.Scene
	View  scene.View

	Settings Settings

	// Frame dimensions.
	FrameW uint32
	FrameH uint32

	// Block start row and height.
	BlockY uint32
	BlockH uint32

	// A random seed value for the tracer's random number generator.
	Seed uint32

	// Number of sequential rendered frames from current camera position. A
	// value of 1 discards the previous running sum.
	FrameCount uint32

	// The running radiance sums (packed RGB, FrameW * FrameH * 3 floats).
	// Tracers read the previous sum from ReadBuffer and write the updated
	// sum for their block rows into WriteBuffer.
	ReadBuffer  []float32
	WriteBuffer []float32

	// A channel to signal on block completion with the number of completed rows.
	DoneChan chan<- uint32

	// A channel to signal if an error occurs.
	ErrChan chan<- error
}

// Tracer statistics.
type Stats struct {
	// The rendered block height
	BlockH uint32

	// The time for rendering this block
	BlockTime time.Duration

	// Number of traversal steps executed for the last block.
	Steps uint64

	// Number of samples that produced invalid radiance and were replaced
	// by black.
	DiscardedSamples uint64
}

type Tracer interface {
	// Get tracer id.
	Id() string

	// Shutdown and cleanup tracer.
	Close()

	// Get the tracers computation speed estimate compared to a
	// baseline (single cpu core) implementation.
	SpeedEstimate() float32

	// Enqueue block request.
	Enqueue(BlockRequest)

	// Retrieve last block statistics.
	Stats() *Stats
}

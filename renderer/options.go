package renderer

import (
	"runtime"

	"github.com/achilleasa/boxtrace/tracer"
)

type Options struct {
	// Frame dims.
	FrameW uint32
	FrameH uint32

	// Number of cpu tracers to spawn. A zero value uses one tracer per cpu.
	NumTracers uint32

	// Base seed for the per-pixel random number generators. The seed
	// passed to the tracers is offset by the total number of rendered
	// frames so consecutive frames draw different samples.
	Seed uint32

	// Sampling settings passed through to the tracers.
	Settings tracer.Settings

	// Exposure for tonemapping.
	Exposure float32

	// Denoise filter parameters. The kernel radius is round(DenoiseKSigma * sigma)
	// where sigma is DenoiseSigma scaled down by sqrt(frame count). A zero
	// DenoiseSigma disables the filter.
	DenoiseSigma     float32
	DenoiseKSigma    float32
	DenoiseThreshold float32
}

// Get the default render options.
func DefaultOptions() Options {
	return Options{
		FrameW:           512,
		FrameH:           512,
		NumTracers:       uint32(runtime.NumCPU()),
		Seed:             1,
		Settings:         tracer.DefaultSettings(),
		Exposure:         1,
		DenoiseSigma:     5,
		DenoiseKSigma:    1,
		DenoiseThreshold: 0.12,
	}
}

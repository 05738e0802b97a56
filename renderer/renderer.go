package renderer

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/achilleasa/boxtrace/log"
	"github.com/achilleasa/boxtrace/scene"
	"github.com/achilleasa/boxtrace/scene/compiler"
	"github.com/achilleasa/boxtrace/tracer"
	"github.com/achilleasa/boxtrace/tracer/cpu"
	"golang.org/x/sync/errgroup"
)

type Renderer interface {
	// Compile and publish a new scene. The new scene is used starting
	// with the next rendered frame. On error the previous scene is kept.
	LoadScene(roots []*scene.Object) error

	// Set the camera view. Any change to the view resets the accumulator.
	UpdateCamera(view scene.View)

	// Trace one sample per pixel, add it to the accumulator and return
	// the denoised and tonemapped running estimate.
	RenderFrame(ctx context.Context) (*image.RGBA, error)

	// Discard the accumulated samples.
	Reset()

	// Number of frames accumulated since the last reset.
	FrameCount() uint32

	// Get a copy of the accumulated radiance sum and its per-pixel mean.
	Sum() []float32
	Mean() []float32

	// Shutdown renderer and any attached tracer.
	Close()

	// Get render statistics.
	Stats() FrameStats
}

type defaultRenderer struct {
	logger log.Logger

	// Serializes frame rendering and accumulator access.
	sync.Mutex

	options   Options
	scheduler tracer.BlockScheduler
	tracers   []tracer.Tracer
	closed    bool

	// Rows assigned to each tracer for the last frame.
	blockAssignments []uint32

	// Published scene. Tracers only ever see a fully compiled scene.
	scene atomic.Pointer[scene.Scene]

	viewMu sync.Mutex
	view   *scene.View

	// Bumped whenever the camera, the scene or the accumulator is reset.
	// A frame is only committed if the generation it was traced with is
	// still current.
	generation   atomic.Uint64
	committedGen uint64

	// Ping-pong running sums; buffers[readIndex] holds the committed sum.
	buffers    [2][]float32
	readIndex  int
	frameCount atomic.Uint32
	frameSeq   uint32

	stats atomic.Pointer[FrameStats]
}

// Create a new renderer that distributes frame rows to the supplied tracers
// using the given block scheduler.
func NewDefault(scheduler tracer.BlockScheduler, tracers []tracer.Tracer, opts Options) (Renderer, error) {
	if len(tracers) == 0 {
		return nil, ErrNoTracers
	}
	if opts.FrameW == 0 || opts.FrameH == 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidFrame, opts.FrameW, opts.FrameH)
	}
	if scheduler == nil {
		scheduler = tracer.PerfectScheduler()
	}

	bufLen := int(opts.FrameW * opts.FrameH * 3)
	r := &defaultRenderer{
		logger:    log.New("renderer"),
		options:   opts,
		scheduler: scheduler,
		tracers:   tracers,
		buffers:   [2][]float32{make([]float32, bufLen), make([]float32, bufLen)},
	}
	r.stats.Store(&FrameStats{})

	return r, nil
}

// Create a new renderer backed by opts.NumTracers cpu tracers.
func NewCPU(opts Options) (Renderer, error) {
	numTracers := int(opts.NumTracers)
	if numTracers == 0 {
		numTracers = runtime.NumCPU()
	}

	tracers := make([]tracer.Tracer, numTracers)
	for index := range tracers {
		tracers[index] = cpu.NewTracer(fmt.Sprintf("cpu-%d", index), 1)
	}

	r, err := NewDefault(tracer.PerfectScheduler(), tracers, opts)
	if err != nil {
		for _, tr := range tracers {
			tr.Close()
		}
		return nil, err
	}
	return r, nil
}

func (r *defaultRenderer) LoadScene(roots []*scene.Object) error {
	sc, err := compiler.Compile(roots)
	if err != nil {
		r.logger.Errorf("scene rejected; keeping previous scene: %v", err)
		return err
	}

	r.scene.Store(sc)
	r.generation.Add(1)
	r.logger.Noticef("published scene with %d objects and %d triangles", len(sc.Objects), len(sc.Triangles))
	return nil
}

func (r *defaultRenderer) UpdateCamera(view scene.View) {
	view.Width = r.options.FrameW
	view.Height = r.options.FrameH

	r.viewMu.Lock()
	defer r.viewMu.Unlock()
	if r.view != nil && *r.view == view {
		return
	}
	r.view = &view
	r.generation.Add(1)
}

func (r *defaultRenderer) Reset() {
	r.generation.Add(1)
}

func (r *defaultRenderer) FrameCount() uint32 {
	return r.frameCount.Load()
}

func (r *defaultRenderer) Sum() []float32 {
	r.Lock()
	defer r.Unlock()

	out := make([]float32, len(r.buffers[r.readIndex]))
	copy(out, r.buffers[r.readIndex])
	return out
}

func (r *defaultRenderer) Mean() []float32 {
	r.Lock()
	defer r.Unlock()

	out := make([]float32, len(r.buffers[r.readIndex]))
	frameCount := r.frameCount.Load()
	if frameCount == 0 {
		return out
	}
	scale := 1.0 / float32(frameCount)
	for index, v := range r.buffers[r.readIndex] {
		out[index] = v * scale
	}
	return out
}

func (r *defaultRenderer) Stats() FrameStats {
	return *r.stats.Load()
}

func (r *defaultRenderer) Close() {
	r.Lock()
	defer r.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for _, tr := range r.tracers {
		tr.Close()
	}
}

func (r *defaultRenderer) RenderFrame(ctx context.Context) (*image.RGBA, error) {
	r.Lock()
	defer r.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	// Snapshot the generation before the scene so that a scene published
	// while we trace always invalidates this frame.
	r.viewMu.Lock()
	gen := r.generation.Load()
	view := r.view
	r.viewMu.Unlock()

	sc := r.scene.Load()
	if sc == nil {
		return nil, ErrSceneNotDefined
	}
	if view == nil {
		return nil, ErrCameraNotDefined
	}
	if ctx.Err() != nil {
		return nil, ErrInterrupted
	}

	frameCount := r.frameCount.Load() + 1
	if gen != r.committedGen {
		frameCount = 1
	}
	r.frameSeq++

	start := time.Now()
	if err := r.traceFrame(ctx, sc, *view, frameCount); err != nil {
		return nil, err
	}

	if r.generation.Load() != gen {
		r.logger.Debugf("discarding frame %d; camera or scene changed while tracing", frameCount)
		return nil, ErrFrameSkipped
	}

	// Commit
	r.readIndex = 1 - r.readIndex
	r.committedGen = gen
	r.frameCount.Store(frameCount)
	renderTime := time.Since(start)

	start = time.Now()
	img, err := r.display(ctx, r.buffers[r.readIndex], frameCount)
	if err != nil {
		return nil, err
	}

	r.updateStats(frameCount, renderTime, time.Since(start))
	return img, nil
}

// Split the frame rows between the tracers and wait for all blocks to
// complete. In-flight blocks always run to completion, even if ctx is
// cancelled, so the write buffer is never shared with a later frame.
func (r *defaultRenderer) traceFrame(ctx context.Context, sc *scene.Scene, view scene.View, frameCount uint32) error {
	r.blockAssignments = r.scheduler.Schedule(r.tracers, r.options.FrameH)
	blockAssignments := r.blockAssignments

	doneChan := make(chan uint32, len(r.tracers))
	errChan := make(chan error, len(r.tracers))

	var blockY uint32
	pending := 0
	for index, tr := range r.tracers {
		if blockAssignments[index] == 0 {
			continue
		}
		tr.Enqueue(tracer.BlockRequest{
			Scene:       sc,
			View:        view,
			Settings:    r.options.Settings,
			FrameW:      r.options.FrameW,
			FrameH:      r.options.FrameH,
			BlockY:      blockY,
			BlockH:      blockAssignments[index],
			Seed:        r.options.Seed + r.frameSeq,
			FrameCount:  frameCount,
			ReadBuffer:  r.buffers[r.readIndex],
			WriteBuffer: r.buffers[1-r.readIndex],
			DoneChan:    doneChan,
			ErrChan:     errChan,
		})
		blockY += blockAssignments[index]
		pending++
	}

	var err error
	ctxDone := ctx.Done()
	for pending > 0 {
		select {
		case <-doneChan:
			pending--
		case blockErr := <-errChan:
			pending--
			if err == nil {
				err = blockErr
			}
		case <-ctxDone:
			ctxDone = nil
			if err == nil {
				err = ErrInterrupted
			}
		}
	}

	if err != nil && err != ErrInterrupted {
		r.logger.Errorf("frame %d failed: %v", frameCount, err)
	}
	return err
}

// Average, denoise and tonemap the running sum into an RGBA image. Rows are
// processed in parallel bands.
func (r *defaultRenderer) display(ctx context.Context, sum []float32, frameCount uint32) (*image.RGBA, error) {
	frameW, frameH := int(r.options.FrameW), int(r.options.FrameH)
	img := image.NewRGBA(image.Rect(0, 0, frameW, frameH))

	kernel := newDenoiseKernel(r.options.DenoiseSigma, r.options.DenoiseKSigma, r.options.DenoiseThreshold, frameCount)
	scale := 1.0 / float32(frameCount)

	numBands := runtime.GOMAXPROCS(0)
	if numBands > frameH {
		numBands = frameH
	}
	bandH := (frameH + numBands - 1) / numBands

	g, gctx := errgroup.WithContext(ctx)
	for bandY := 0; bandY < frameH; bandY += bandH {
		g.Go(func() error {
			for y := bandY; y < bandY+bandH && y < frameH; y++ {
				if gctx.Err() != nil {
					return ErrInterrupted
				}
				for x := 0; x < frameW; x++ {
					c := kernel.filter(sum, scale, frameW, frameH, x, y)
					img.SetRGBA(x, y, tonemapSimpleReinhard(c, r.options.Exposure))
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return img, nil
}

func (r *defaultRenderer) updateStats(frameCount uint32, renderTime, displayTime time.Duration) {
	stats := &FrameStats{
		Tracers:     make([]TracerStat, len(r.tracers)),
		FrameCount:  frameCount,
		RenderTime:  renderTime,
		DisplayTime: displayTime,
	}

	var discarded uint64
	for index, tr := range r.tracers {
		trStats := tr.Stats()
		blockH := r.blockAssignments[index]
		stats.Tracers[index] = TracerStat{
			Id:               tr.Id(),
			IsPrimary:        index == 0,
			BlockH:           blockH,
			FramePercent:     100.0 * float32(blockH) / float32(r.options.FrameH),
			RenderTime:       trStats.BlockTime,
			Steps:            trStats.Steps,
			DiscardedSamples: trStats.DiscardedSamples,
		}
		discarded += trStats.DiscardedSamples
	}
	if discarded > 0 {
		r.logger.Warningf("frame %d: discarded %d invalid samples", frameCount, discarded)
	}

	r.stats.Store(stats)
}

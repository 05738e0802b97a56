package cpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/achilleasa/boxtrace/log"
	"github.com/achilleasa/boxtrace/tracer"
	"github.com/achilleasa/boxtrace/types"
)

type cpuTracer struct {
	logger log.Logger

	sync.Mutex
	wg sync.WaitGroup

	// The tracer id.
	id string

	// A channel for receiving block requests from the renderer.
	blockReqChan chan tracer.BlockRequest

	// A channel for signaling the worker to exit.
	closeChan chan struct{}

	// Statistics for last rendered block.
	stats *tracer.Stats

	// Speed relative to a single cpu core.
	speed float32

	rng *pixelRNG
}

// Create a new cpu tracer and start its block worker.
func NewTracer(id string, speed float32) tracer.Tracer {
	if speed <= 0 {
		speed = 1
	}

	tr := &cpuTracer{
		logger:       log.New(fmt.Sprintf("cpu tracer (%s)", id)),
		id:           id,
		blockReqChan: make(chan tracer.BlockRequest, 1),
		stats:        &tracer.Stats{},
		speed:        speed,
		rng:          newPixelRNG(),
	}
	tr.startWorker()

	return tr
}

// Get tracer id.
func (tr *cpuTracer) Id() string {
	return tr.id
}

// Get the computation speed estimate.
func (tr *cpuTracer) SpeedEstimate() float32 {
	return tr.speed
}

// Shutdown and cleanup tracer.
func (tr *cpuTracer) Close() {
	tr.Lock()
	defer tr.Unlock()

	// If the worker is running shut it down
	if tr.closeChan != nil {
		tr.closeChan <- struct{}{}

		// wait for worker to ack close and shutdown channel
		<-tr.closeChan
		close(tr.closeChan)
		tr.closeChan = nil
	}
	tr.wg.Wait()
}

// Enqueue block request.
func (tr *cpuTracer) Enqueue(blockReq tracer.BlockRequest) {
	tr.Lock()
	running := tr.closeChan != nil
	tr.Unlock()

	if !running {
		blockReq.ErrChan <- ErrTracerClosed
		return
	}

	select {
	case tr.blockReqChan <- blockReq:
	default:
		// drop the request if worker is not listening
		tr.logger.Error("request processor did not receive block request")
		blockReq.ErrChan <- ErrTracerBusy
	}
}

// Retrieve last block statistics.
func (tr *cpuTracer) Stats() *tracer.Stats {
	return tr.stats
}

// Spawn a go-routine to process block render requests.
func (tr *cpuTracer) startWorker() {
	// Worker already running
	if tr.closeChan != nil {
		return
	}

	tr.closeChan = make(chan struct{})
	closeChan := tr.closeChan
	readyChan := make(chan struct{})
	tr.wg.Add(1)
	go func() {
		defer tr.wg.Done()
		var blockReq tracer.BlockRequest
		var startTime time.Time
		var err error
		close(readyChan)
		for {
			select {
			case blockReq = <-tr.blockReqChan:
				startTime = time.Now()

				// Render block and reply with our completion status
				err = tr.renderBlock(&blockReq)
				if err != nil {
					blockReq.ErrChan <- err
					continue
				}

				// Update stats
				tr.stats.BlockH = blockReq.BlockH
				tr.stats.BlockTime = time.Since(startTime)

				blockReq.DoneChan <- blockReq.BlockH
			case <-closeChan:
				// Ack close
				closeChan <- struct{}{}
				return
			}
		}
	}()

	// Wait for go-routine to start
	<-readyChan
}

// Trace one sample for each pixel in the requested block and add it to the
// running sum.
func (tr *cpuTracer) renderBlock(blockReq *tracer.BlockRequest) error {
	if blockReq.Scene == nil {
		return ErrNoSceneData
	}
	if blockReq.BlockY+blockReq.BlockH > blockReq.FrameH {
		return fmt.Errorf("%w: rows [%d, %d) exceed frame height %d", ErrInvalidBlock, blockReq.BlockY, blockReq.BlockY+blockReq.BlockH, blockReq.FrameH)
	}
	bufLen := int(blockReq.FrameW * blockReq.FrameH * 3)
	if len(blockReq.WriteBuffer) < bufLen || (blockReq.FrameCount > 1 && len(blockReq.ReadBuffer) < bufLen) {
		return fmt.Errorf("%w: expected at least %d floats", ErrInvalidBlock, bufLen)
	}

	tv := NewTraverser(blockReq.Scene, blockReq.Settings)
	view := blockReq.View
	reset := blockReq.FrameCount <= 1

	var steps, discarded uint64
	for y := blockReq.BlockY; y < blockReq.BlockY+blockReq.BlockH; y++ {
		for x := uint32(0); x < blockReq.FrameW; x++ {
			rng := tr.rng.seed(blockReq.Seed, blockReq.FrameCount, x, y)
			dir := view.Ray(x, y, rng.Float32()-0.5, rng.Float32()-0.5)

			sample, sampleSteps := tv.trace(view.Origin, dir, rng)
			steps += uint64(sampleSteps)
			if sample.IsInvalid() {
				discarded++
				sample = types.Vec3{}
			}

			offset := int(y*blockReq.FrameW+x) * 3
			for c := 0; c < 3; c++ {
				var prev float32
				if !reset {
					prev = blockReq.ReadBuffer[offset+c]
				}
				blockReq.WriteBuffer[offset+c] = prev + sample[c]
			}
		}
	}

	tr.stats.Steps = steps
	tr.stats.DiscardedSamples = discarded
	if discarded > 0 {
		tr.logger.Warningf("discarded %d invalid samples in rows [%d, %d)", discarded, blockReq.BlockY, blockReq.BlockY+blockReq.BlockH)
	}
	return nil
}

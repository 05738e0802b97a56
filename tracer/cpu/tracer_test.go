package cpu

import (
	"errors"
	"testing"
	"time"

	"github.com/achilleasa/boxtrace/scene"
	"github.com/achilleasa/boxtrace/tracer"
	"github.com/achilleasa/boxtrace/types"
	"github.com/chewxy/math32"
)

// A camera looking at a wide emissive wall; every primary ray hits the wall
// so every sample equals the wall emission.
func emissiveWallRequest(t *testing.T, frameW, frameH uint32) tracer.BlockRequest {
	mat := scene.NewMaterial("wall")
	mat.Emissive = types.XYZ(0.5, 1, 2)
	sc := compileScene(t, scene.NewObject("wall", types.Vec3{}, types.XYZ(50, 50, 1), scene.CubeMesh(), mat))

	cam := scene.NewCamera(30)
	cam.Position = types.XYZ(0, 0, 5)
	cam.LookAt = types.Vec3{}

	return tracer.BlockRequest{
		Scene:       sc,
		View:        cam.View(frameW, frameH),
		Settings:    tracer.DefaultSettings(),
		FrameW:      frameW,
		FrameH:      frameH,
		BlockY:      0,
		BlockH:      frameH,
		Seed:        1,
		FrameCount:  1,
		WriteBuffer: make([]float32, frameW*frameH*3),
	}
}

func waitForBlock(t *testing.T, doneChan chan uint32, errChan chan error) uint32 {
	select {
	case rows := <-doneChan:
		return rows
	case err := <-errChan:
		t.Fatal(err)
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for block to complete")
	}
	return 0
}

func TestTracerBlockWorker(t *testing.T) {
	tr := NewTracer("test", 1)
	defer tr.Close()

	doneChan := make(chan uint32, 1)
	errChan := make(chan error, 1)

	req := emissiveWallRequest(t, 8, 4)
	req.DoneChan = doneChan
	req.ErrChan = errChan

	tr.Enqueue(req)
	if rows := waitForBlock(t, doneChan, errChan); rows != 4 {
		t.Fatalf("expected 4 completed rows; got %d", rows)
	}

	exp := types.XYZ(0.5, 1, 2)
	for pixel := 0; pixel < 8*4; pixel++ {
		got := types.XYZ(req.WriteBuffer[3*pixel], req.WriteBuffer[3*pixel+1], req.WriteBuffer[3*pixel+2])
		if !got.ApproxEqual(exp, 1e-5) {
			t.Fatalf("[pixel %d] expected radiance %v; got %v", pixel, exp, got)
		}
	}

	// Second frame adds to the previous running sum
	next := req
	next.FrameCount = 2
	next.ReadBuffer = req.WriteBuffer
	next.WriteBuffer = make([]float32, len(req.WriteBuffer))
	tr.Enqueue(next)
	waitForBlock(t, doneChan, errChan)

	exp = exp.Mul(2)
	for pixel := 0; pixel < 8*4; pixel++ {
		got := types.XYZ(next.WriteBuffer[3*pixel], next.WriteBuffer[3*pixel+1], next.WriteBuffer[3*pixel+2])
		if !got.ApproxEqual(exp, 1e-5) {
			t.Fatalf("[pixel %d] expected running sum %v; got %v", pixel, exp, got)
		}
	}

	stats := tr.Stats()
	if stats.BlockH != 4 {
		t.Fatalf("expected stats block height 4; got %d", stats.BlockH)
	}
	if stats.Steps == 0 {
		t.Fatal("expected step counter to be updated")
	}
}

func TestTracerPartialBlock(t *testing.T) {
	tr := NewTracer("test", 1)
	defer tr.Close()

	doneChan := make(chan uint32, 1)
	errChan := make(chan error, 1)

	req := emissiveWallRequest(t, 4, 4)
	req.BlockY = 2
	req.BlockH = 2
	req.DoneChan = doneChan
	req.ErrChan = errChan
	tr.Enqueue(req)
	waitForBlock(t, doneChan, errChan)

	for index, v := range req.WriteBuffer {
		row := index / (3 * 4)
		if row < 2 && v != 0 {
			t.Fatalf("expected rows outside of the block to be untouched; got %f at offset %d", v, index)
		}
		if row >= 2 && v == 0 {
			t.Fatalf("expected block rows to be written; got 0 at offset %d", index)
		}
	}
}

func TestTracerErrors(t *testing.T) {
	tr := NewTracer("test", 1)

	doneChan := make(chan uint32, 1)
	errChan := make(chan error, 1)

	type spec struct {
		mutate func(*tracer.BlockRequest)
		expErr error
	}
	specs := []spec{
		{func(r *tracer.BlockRequest) { r.Scene = nil }, ErrNoSceneData},
		{func(r *tracer.BlockRequest) { r.BlockH = 10 }, ErrInvalidBlock},
		{func(r *tracer.BlockRequest) { r.WriteBuffer = r.WriteBuffer[:3] }, ErrInvalidBlock},
		{func(r *tracer.BlockRequest) { r.FrameCount = 2 }, ErrInvalidBlock},
	}

	for index, s := range specs {
		req := emissiveWallRequest(t, 4, 4)
		req.DoneChan = doneChan
		req.ErrChan = errChan
		s.mutate(&req)
		tr.Enqueue(req)

		select {
		case err := <-errChan:
			if !errors.Is(err, s.expErr) {
				t.Fatalf("[spec %d] expected error %v; got %v", index, s.expErr, err)
			}
		case <-doneChan:
			t.Fatalf("[spec %d] expected block to fail", index)
		case <-time.After(10 * time.Second):
			t.Fatalf("[spec %d] timeout waiting for error", index)
		}
	}

	tr.Close()
	req := emissiveWallRequest(t, 4, 4)
	req.DoneChan = doneChan
	req.ErrChan = errChan
	tr.Enqueue(req)
	if err := <-errChan; err != ErrTracerClosed {
		t.Fatalf("expected ErrTracerClosed after close; got %v", err)
	}
}

func TestDebugModes(t *testing.T) {
	sc := cubeScene(t, nil)
	origin := types.XYZ(0, 0, 5)
	dir := types.XYZ(0, 0, -1)
	rng := newPixelRNG()

	type spec struct {
		mode tracer.DebugMode
		exp  types.Vec3
	}
	specs := []spec{
		{tracer.DebugDepth, types.Splat(1.0 / 5.0)},
		{tracer.DebugNormals, types.XYZ(0.5, 0.5, 1)},
	}

	for index, s := range specs {
		settings := tracer.DefaultSettings()
		settings.Debug = s.mode
		tv := NewTraverser(sc, settings)

		got, _ := tv.trace(origin, dir, rng.seed(1, 1, 0, 0))
		if !got.ApproxEqual(s.exp, 1e-4) {
			t.Fatalf("[spec %d] expected %s debug output %v; got %v", index, s.mode, s.exp, got)
		}
	}

	settings := tracer.DefaultSettings()
	settings.Debug = tracer.DebugSteps
	got, steps := NewTraverser(sc, settings).trace(origin, dir, rng.seed(1, 1, 0, 0))
	if exp := float32(steps) / float32(settings.MaxSteps); steps == 0 || !got.ApproxEqual(types.Splat(exp), 1e-6) {
		t.Fatalf("expected step visualization %f; got %v (%d steps)", exp, got, steps)
	}
}

func TestTracerDiscardsNonFiniteSamples(t *testing.T) {
	tr := NewTracer("test", 1)
	defer tr.Close()

	doneChan := make(chan uint32, 1)
	errChan := make(chan error, 1)

	// The wall emission is finite but the lit sky seen after the diffuse
	// bounce overflows the accumulated radiance to +Inf.
	req := emissiveWallRequest(t, 8, 4)
	mat := scene.NewMaterial("overflow")
	mat.Albedo = types.Splat(math32.MaxFloat32)
	mat.Emissive = types.Splat(math32.MaxFloat32)
	req.Scene = compileScene(t, scene.NewObject("wall", types.Vec3{}, types.XYZ(50, 50, 1), scene.CubeMesh(), mat))
	req.Settings.SkyLighting = true

	// Previous running sum; invalid samples must leave it untouched.
	req.FrameCount = 2
	req.ReadBuffer = make([]float32, len(req.WriteBuffer))
	for index := range req.ReadBuffer {
		req.ReadBuffer[index] = 1
	}
	req.DoneChan = doneChan
	req.ErrChan = errChan

	tr.Enqueue(req)
	waitForBlock(t, doneChan, errChan)

	for index, v := range req.WriteBuffer {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			t.Fatalf("[float %d] expected running sum to stay finite; got %v", index, v)
		}
		if v != 1 {
			t.Fatalf("[float %d] expected previous running sum 1 to be kept; got %v", index, v)
		}
	}

	if got := tr.Stats().DiscardedSamples; got != 8*4 {
		t.Fatalf("expected %d discarded samples; got %d", 8*4, got)
	}
}

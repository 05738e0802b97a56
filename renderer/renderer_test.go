package renderer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/achilleasa/boxtrace/scene"
	"github.com/achilleasa/boxtrace/tracer"
	"github.com/achilleasa/boxtrace/types"
)

var wallEmission = types.XYZ(0.5, 1, 2)

// A wide emissive wall that fills the view of wallCamera.
func wallScene() []*scene.Object {
	mat := scene.NewMaterial("wall")
	mat.Emissive = wallEmission
	return []*scene.Object{
		scene.NewObject("wall", types.Vec3{}, types.XYZ(50, 50, 1), scene.CubeMesh(), mat),
	}
}

func wallCamera() *scene.Camera {
	cam := scene.NewCamera(30)
	cam.Position = types.XYZ(0, 0, 5)
	cam.LookAt = types.Vec3{}
	return cam
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.FrameW = 8
	opts.FrameH = 6
	opts.NumTracers = 2
	return opts
}

func newWallRenderer(t *testing.T) (Renderer, *scene.Camera) {
	opts := testOptions()
	r, err := NewCPU(opts)
	if err != nil {
		t.Fatal(err)
	}
	if err = r.LoadScene(wallScene()); err != nil {
		r.Close()
		t.Fatal(err)
	}
	cam := wallCamera()
	r.UpdateCamera(cam.View(opts.FrameW, opts.FrameH))
	return r, cam
}

func assertBuffer(t *testing.T, buf []float32, exp types.Vec3, label string) {
	for pixel := 0; pixel < len(buf)/3; pixel++ {
		got := types.XYZ(buf[3*pixel], buf[3*pixel+1], buf[3*pixel+2])
		if !got.ApproxEqual(exp, 1e-4) {
			t.Fatalf("[pixel %d] expected %s %v; got %v", pixel, label, exp, got)
		}
	}
}

func TestProgressiveAccumulation(t *testing.T) {
	r, _ := newWallRenderer(t)
	defer r.Close()

	for frame := uint32(1); frame <= 4; frame++ {
		img, err := r.RenderFrame(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 6 {
			t.Fatalf("expected 8x6 image; got %v", img.Bounds())
		}
		if got := r.FrameCount(); got != frame {
			t.Fatalf("expected frame count %d; got %d", frame, got)
		}
		assertBuffer(t, r.Sum(), wallEmission.Mul(float32(frame)), "running sum")
		assertBuffer(t, r.Mean(), wallEmission, "mean")
	}

	stats := r.Stats()
	if stats.FrameCount != 4 {
		t.Fatalf("expected stats frame count 4; got %d", stats.FrameCount)
	}
	if len(stats.Tracers) != 2 {
		t.Fatalf("expected stats for 2 tracers; got %d", len(stats.Tracers))
	}
	var rows uint32
	for _, ts := range stats.Tracers {
		rows += ts.BlockH
	}
	if rows != 6 {
		t.Fatalf("expected tracer blocks to cover 6 rows; got %d", rows)
	}
}

func TestCameraMoveResetsAccumulator(t *testing.T) {
	r, cam := newWallRenderer(t)
	defer r.Close()

	for i := 0; i < 3; i++ {
		if _, err := r.RenderFrame(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	// An identical view must not reset the accumulator
	r.UpdateCamera(cam.View(8, 6))
	if _, err := r.RenderFrame(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := r.FrameCount(); got != 4 {
		t.Fatalf("expected frame count 4 after setting an unchanged view; got %d", got)
	}

	cam.Move(types.XYZ(0.1, 0, 0))
	r.UpdateCamera(cam.View(8, 6))
	if _, err := r.RenderFrame(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := r.FrameCount(); got != 1 {
		t.Fatalf("expected frame count 1 after camera move; got %d", got)
	}
	assertBuffer(t, r.Sum(), wallEmission, "running sum")

	r.Reset()
	if _, err := r.RenderFrame(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := r.FrameCount(); got != 1 {
		t.Fatalf("expected frame count 1 after reset; got %d", got)
	}
}

func TestLoadSceneErrorKeepsPreviousScene(t *testing.T) {
	r, _ := newWallRenderer(t)
	defer r.Close()

	if _, err := r.RenderFrame(context.Background()); err != nil {
		t.Fatal(err)
	}

	err := r.LoadScene([]*scene.Object{nil})
	if err == nil {
		t.Fatal("expected malformed scene to be rejected")
	}

	// The accumulator keeps going with the previous scene
	if _, err = r.RenderFrame(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := r.FrameCount(); got != 2 {
		t.Fatalf("expected frame count 2; got %d", got)
	}
	assertBuffer(t, r.Sum(), wallEmission.Mul(2), "running sum")

	// A new scene resets the accumulator
	if err = r.LoadScene(wallScene()); err != nil {
		t.Fatal(err)
	}
	if _, err = r.RenderFrame(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := r.FrameCount(); got != 1 {
		t.Fatalf("expected frame count 1 after loading a new scene; got %d", got)
	}
}

func TestStaleFrameIsSkipped(t *testing.T) {
	opts := testOptions()
	tr := &mockTracer{id: "mock"}
	r, err := NewDefault(tracer.NaiveScheduler(), []tracer.Tracer{tr}, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if err = r.LoadScene(wallScene()); err != nil {
		t.Fatal(err)
	}
	r.UpdateCamera(wallCamera().View(opts.FrameW, opts.FrameH))

	// The camera moves while the frame is being traced
	moved := wallCamera()
	moved.Move(types.XYZ(0, 0.5, 0))
	tr.onEnqueue = func() {
		r.UpdateCamera(moved.View(opts.FrameW, opts.FrameH))
	}
	if _, err = r.RenderFrame(context.Background()); err != ErrFrameSkipped {
		t.Fatalf("expected ErrFrameSkipped; got %v", err)
	}
	if got := r.FrameCount(); got != 0 {
		t.Fatalf("expected skipped frame not to be committed; got frame count %d", got)
	}

	tr.onEnqueue = nil
	if _, err = r.RenderFrame(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := r.FrameCount(); got != 1 {
		t.Fatalf("expected frame count 1; got %d", got)
	}
	if tr.lastReq.FrameCount != 1 {
		t.Fatalf("expected tracer to receive a reset request; got frame count %d", tr.lastReq.FrameCount)
	}
}

func TestTracerErrorAbortsFrame(t *testing.T) {
	opts := testOptions()
	tr := &mockTracer{id: "mock", err: errors.New("device lost")}
	r, err := NewDefault(tracer.NaiveScheduler(), []tracer.Tracer{tr}, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if err = r.LoadScene(wallScene()); err != nil {
		t.Fatal(err)
	}
	r.UpdateCamera(wallCamera().View(opts.FrameW, opts.FrameH))

	if _, err = r.RenderFrame(context.Background()); err != tr.err {
		t.Fatalf("expected tracer error to be returned; got %v", err)
	}
	if got := r.FrameCount(); got != 0 {
		t.Fatalf("expected failed frame not to be committed; got frame count %d", got)
	}
}

func TestRendererErrors(t *testing.T) {
	if _, err := NewDefault(nil, nil, testOptions()); err != ErrNoTracers {
		t.Fatalf("expected ErrNoTracers; got %v", err)
	}

	opts := testOptions()
	opts.FrameH = 0
	if _, err := NewDefault(nil, []tracer.Tracer{&mockTracer{}}, opts); !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("expected ErrInvalidFrame; got %v", err)
	}

	r, err := NewDefault(nil, []tracer.Tracer{&mockTracer{}}, testOptions())
	if err != nil {
		t.Fatal(err)
	}

	if _, err = r.RenderFrame(context.Background()); err != ErrSceneNotDefined {
		t.Fatalf("expected ErrSceneNotDefined; got %v", err)
	}

	if err = r.LoadScene(wallScene()); err != nil {
		t.Fatal(err)
	}
	if _, err = r.RenderFrame(context.Background()); err != ErrCameraNotDefined {
		t.Fatalf("expected ErrCameraNotDefined; got %v", err)
	}

	r.UpdateCamera(wallCamera().View(8, 6))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err = r.RenderFrame(ctx); err != ErrInterrupted {
		t.Fatalf("expected ErrInterrupted; got %v", err)
	}

	r.Close()
	if _, err = r.RenderFrame(context.Background()); err != ErrClosed {
		t.Fatalf("expected ErrClosed; got %v", err)
	}
}

func TestDenoiseKernelRadius(t *testing.T) {
	type spec struct {
		sigma, kSigma, threshold float32
		frameCount               uint32
		expRadius                int
	}
	specs := []spec{
		{5, 1, 0.12, 1, 5},
		{5, 1, 0.12, 4, 3},
		{5, 1, 0.12, 25, 1},
		{5, 1, 0.12, 121, 0},
		{5, 2, 0.12, 4, 5},
		{0, 1, 0.12, 1, 0},
		{5, 1, 0, 1, 0},
	}

	for index, s := range specs {
		k := newDenoiseKernel(s.sigma, s.kSigma, s.threshold, s.frameCount)
		if k.radius != s.expRadius {
			t.Fatalf("[spec %d] expected radius %d; got %d", index, s.expRadius, k.radius)
		}
	}
}

func TestDenoiseFilter(t *testing.T) {
	const w, h = 12, 12
	src := make([]float32, w*h*3)

	// Uniform image stays uniform
	for index := range src {
		src[index] = 2
	}
	k := newDenoiseKernel(5, 1, 0.12, 1)
	for _, p := range [][2]int{{0, 0}, {5, 5}, {11, 3}} {
		got := k.filter(src, 0.5, w, h, p[0], p[1])
		if !got.ApproxEqual(types.Splat(1), 1e-5) {
			t.Fatalf("expected uniform pixel (%d, %d) to be 1; got %v", p[0], p[1], got)
		}
	}

	// Edges are preserved
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := float32(0)
			if x >= w/2 {
				v = 1
			}
			offset := (y*w + x) * 3
			src[offset], src[offset+1], src[offset+2] = v, v, v
		}
	}
	if got := k.filter(src, 1, w, h, w/2-1, h/2); got.MaxComponent() > 1e-3 {
		t.Fatalf("expected dark side of edge to stay dark; got %v", got)
	}
	if got := k.filter(src, 1, w, h, w/2, h/2); !got.ApproxEqual(types.Splat(1), 1e-3) {
		t.Fatalf("expected bright side of edge to stay bright; got %v", got)
	}

	// Zero radius is the identity
	src[0], src[1], src[2] = 7, 8, 9
	identity := newDenoiseKernel(5, 1, 0.12, 1000)
	if got := identity.filter(src, 1, w, h, 0, 0); got != types.XYZ(7, 8, 9) {
		t.Fatalf("expected identity filter to return the source pixel; got %v", got)
	}
}

func TestTonemapSimpleReinhard(t *testing.T) {
	type spec struct {
		in       float32
		exposure float32
		exp      uint8
	}
	specs := []spec{
		{0, 1, 0},
		{-1, 1, 0},
		{1, 1, 186},
		{1, 0, 0},
		{1e9, 1, 255},
	}

	for index, s := range specs {
		got := tonemapSimpleReinhard(types.Splat(s.in), s.exposure)
		if got.R != s.exp || got.G != s.exp || got.B != s.exp || got.A != 255 {
			t.Fatalf("[spec %d] expected channel value %d; got %v", index, s.exp, got)
		}
	}

	// Monotonic in both radiance and exposure
	var last uint8
	for _, v := range []float32{0.01, 0.1, 0.5, 1, 2, 10} {
		got := tonemapSimpleReinhard(types.Splat(v), 1).R
		if got < last {
			t.Fatalf("expected tonemapping to be monotonic; %f mapped to %d after %d", v, got, last)
		}
		last = got
	}
	if tonemapSimpleReinhard(types.Splat(0.2), 4).R <= tonemapSimpleReinhard(types.Splat(0.2), 1).R {
		t.Fatal("expected higher exposure to brighten the pixel")
	}
}

func TestFrameStatsTable(t *testing.T) {
	stats := FrameStats{
		Tracers: []TracerStat{
			{Id: "cpu-0", IsPrimary: true, BlockH: 3, FramePercent: 50},
			{Id: "cpu-1", BlockH: 3, FramePercent: 50, DiscardedSamples: 2},
		},
		FrameCount:  7,
		RenderTime:  12 * time.Millisecond,
		DisplayTime: 3 * time.Millisecond,
	}

	var buf bytes.Buffer
	stats.Write(&buf)
	out := buf.String()
	for _, exp := range []string{"cpu-0", "cpu-1", "50.0 %", "frame 7", "12ms", "display", "3ms", "Block height"} {
		if !strings.Contains(out, exp) {
			t.Fatalf("expected stats table to contain %q; got:\n%s", exp, out)
		}
	}
}

type mockTracer struct {
	id        string
	err       error
	onEnqueue func()
	lastReq   tracer.BlockRequest
	stats     tracer.Stats
}

func (m *mockTracer) Id() string             { return m.id }
func (m *mockTracer) Close()                 {}
func (m *mockTracer) SpeedEstimate() float32 { return 1 }
func (m *mockTracer) Stats() *tracer.Stats   { return &m.stats }
func (m *mockTracer) Enqueue(req tracer.BlockRequest) {
	m.lastReq = req
	if m.onEnqueue != nil {
		m.onEnqueue()
	}
	if m.err != nil {
		req.ErrChan <- m.err
		return
	}
	m.stats.BlockH = req.BlockH
	req.DoneChan <- req.BlockH
}

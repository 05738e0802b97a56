package cmd

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/achilleasa/boxtrace/renderer"
	"github.com/achilleasa/boxtrace/scene"
	"github.com/achilleasa/boxtrace/types"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli"
)

const (
	// Coefficients for converting delta cursor movements to yaw/pitch camera angles.
	mouseSensitivityX float32 = 0.005
	mouseSensitivityY float32 = 0.005

	// Camera movement speed
	cameraMoveSpeed float32 = 0.05
)

// A camera update request. Move is expressed in camera space (right, up,
// forward) in movement steps; Yaw and Pitch in cursor pixels.
type cameraRequest struct {
	Move  [3]float32 `json:"move"`
	Yaw   float32    `json:"yaw"`
	Pitch float32    `json:"pitch"`
}

type cameraResponse struct {
	Position   types.Vec3 `json:"position"`
	LookAt     types.Vec3 `json:"look_at"`
	FrameCount uint32     `json:"frame_count"`
}

type previewServer struct {
	r      renderer.Renderer
	frameW uint32
	frameH uint32

	// Stop accumulating after this many frames; 0 renders forever.
	maxFrames uint32

	camMu  sync.Mutex
	camera *scene.Camera

	frameMu sync.RWMutex
	frame   []byte

	// Wakes up an idle render loop after a camera change or a reset.
	wakeChan chan struct{}
}

func newPreviewServer(r renderer.Renderer, camera *scene.Camera, opts renderer.Options, maxFrames uint32) *previewServer {
	return &previewServer{
		r:         r,
		frameW:    opts.FrameW,
		frameH:    opts.FrameH,
		maxFrames: maxFrames,
		camera:    camera,
		wakeChan:  make(chan struct{}, 1),
	}
}

func (s *previewServer) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(corsMiddleware)

	e.GET("/frame.png", s.getFrame)
	e.GET("/stats", s.getStats)
	e.POST("/camera", s.updateCamera)
	e.POST("/reset", s.reset)
	return e
}

// Render frames until ctx is cancelled.
func (s *previewServer) renderLoop(ctx context.Context) error {
	for {
		if s.maxFrames != 0 && s.r.FrameCount() >= s.maxFrames {
			select {
			case <-ctx.Done():
				return nil
			case <-s.wakeChan:
			}
		}

		img, err := s.r.RenderFrame(ctx)
		switch {
		case errors.Is(err, renderer.ErrInterrupted):
			return nil
		case errors.Is(err, renderer.ErrFrameSkipped):
			continue
		case err != nil:
			return err
		}

		var buf bytes.Buffer
		if err = png.Encode(&buf, img); err != nil {
			return err
		}
		s.frameMu.Lock()
		s.frame = buf.Bytes()
		s.frameMu.Unlock()
	}
}

func (s *previewServer) wake() {
	select {
	case s.wakeChan <- struct{}{}:
	default:
	}
}

func (s *previewServer) getFrame(c echo.Context) error {
	s.frameMu.RLock()
	frame := s.frame
	s.frameMu.RUnlock()

	if frame == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "no frame rendered yet",
		})
	}
	return c.Blob(http.StatusOK, "image/png", frame)
}

func (s *previewServer) getStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.r.Stats())
}

func (s *previewServer) updateCamera(c echo.Context) error {
	var req cameraRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "failed to parse request: " + err.Error(),
		})
	}

	s.camMu.Lock()
	view := s.camera.View(s.frameW, s.frameH)
	delta := view.Right.Mul(req.Move[0]).
		Add(view.Up.Mul(req.Move[1])).
		Add(view.Forward.Mul(req.Move[2])).
		Mul(cameraMoveSpeed)
	s.camera.Move(delta)
	s.camera.Rotate(-req.Yaw*mouseSensitivityX, -req.Pitch*mouseSensitivityY)
	view = s.camera.View(s.frameW, s.frameH)
	res := cameraResponse{Position: s.camera.Position, LookAt: s.camera.LookAt}
	s.camMu.Unlock()

	s.r.UpdateCamera(view)
	s.wake()

	res.FrameCount = s.r.FrameCount()
	return c.JSON(http.StatusOK, res)
}

func (s *previewServer) reset(c echo.Context) error {
	s.r.Reset()
	s.wake()
	return c.NoContent(http.StatusNoContent)
}

func corsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set("Access-Control-Allow-Origin", "*")
		c.Response().Header().Set("Access-Control-Allow-Methods", "GET, POST")
		c.Response().Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")

		if c.Request().Method == http.MethodOptions {
			return c.NoContent(http.StatusOK)
		}

		return next(c)
	}
}

// Serve a progressively rendered preview of the scene over http.
func Serve(ctx *cli.Context) error {
	setupLogging(ctx)

	opts, err := renderOptions(ctx)
	if err != nil {
		return err
	}
	r, camera, err := setupRenderer(ctx, opts)
	if err != nil {
		return err
	}
	defer r.Close()

	sigCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	s := newPreviewServer(r, camera, opts, uint32(ctx.Uint("max-frames")))
	e := s.routes()

	renderErr := make(chan error, 1)
	go func() {
		renderErr <- s.renderLoop(sigCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- e.Start(ctx.String("addr"))
	}()
	logger.Noticef("serving preview at http://%s/frame.png", ctx.String("addr"))

	select {
	case <-sigCtx.Done():
	case err = <-renderErr:
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

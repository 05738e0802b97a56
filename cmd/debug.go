package cmd

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/achilleasa/boxtrace/renderer"
	"github.com/achilleasa/boxtrace/scene"
	"github.com/achilleasa/boxtrace/tracer"
	"github.com/chewxy/math32"
	"github.com/urfave/cli"
)

var debugModes = []tracer.DebugMode{
	tracer.DebugDepth,
	tracer.DebugNormals,
	tracer.DebugSteps,
}

// Render debug images for the primary ray intersections: hit depth, surface
// normals and traversal step counts.
func Debug(ctx *cli.Context) error {
	setupLogging(ctx)

	desc, err := loadScene(ctx)
	if err != nil {
		return err
	}

	prefix := ctx.String("prefix")
	for _, mode := range debugModes {
		opts, err := renderOptions(ctx)
		if err != nil {
			return err
		}
		opts.Settings.Debug = mode
		opts.DenoiseSigma = 0

		r, err := renderer.NewCPU(opts)
		if err != nil {
			return err
		}

		imgFile := fmt.Sprintf("%s-%s.png", prefix, mode)
		err = renderDebugImage(r, desc.Roots, desc.Camera.View(opts.FrameW, opts.FrameH), opts, imgFile)
		r.Close()
		if err != nil {
			return err
		}
		logger.Noticef("wrote %s debug image to %s", mode, imgFile)
	}

	return nil
}

func renderDebugImage(r renderer.Renderer, roots []*scene.Object, view scene.View, opts renderer.Options, imgFile string) error {
	if err := r.LoadScene(roots); err != nil {
		return err
	}
	r.UpdateCamera(view)
	if _, err := r.RenderFrame(context.Background()); err != nil {
		return err
	}

	return writeImage(imgFile, linearImage(r.Mean(), int(opts.FrameW), int(opts.FrameH)))
}

// Map a packed RGB buffer with values in [0, 1] to an image without any
// tone-mapping.
func linearImage(buf []float32, frameW, frameH int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, frameW, frameH))
	toByte := func(v float32) uint8 {
		return uint8(math32.Round(255 * math32.Max(0, math32.Min(v, 1))))
	}
	for y := 0; y < frameH; y++ {
		for x := 0; x < frameW; x++ {
			offset := (y*frameW + x) * 3
			img.SetRGBA(x, y, color.RGBA{toByte(buf[offset]), toByte(buf[offset+1]), toByte(buf[offset+2]), 255})
		}
	}
	return img
}

package cmd

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"os/signal"
	"time"

	"github.com/achilleasa/boxtrace/renderer"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli"
)

// Render a still frame by accumulating spp frames.
func RenderFrame(ctx *cli.Context) error {
	setupLogging(ctx)

	opts, err := renderOptions(ctx)
	if err != nil {
		return err
	}
	r, _, err := setupRenderer(ctx, opts)
	if err != nil {
		return err
	}
	defer r.Close()

	sigCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	spp := int(ctx.Uint("spp"))
	if spp <= 0 {
		spp = 1
	}

	logger.Noticef("rendering %dx%d frame with %d samples per pixel", opts.FrameW, opts.FrameH, spp)
	start := time.Now()
	var img *image.RGBA
	for frame := 0; frame < spp; frame++ {
		if img, err = r.RenderFrame(sigCtx); err != nil {
			return err
		}
	}
	logger.Noticef("rendered frame in %s", time.Since(start))

	displayFrameStats(r.Stats())
	return writeImage(ctx.String("out"), img)
}

// Render a progressively refined frame. The current estimate is written to
// the output image every snapshot frames and on interruption.
func RenderProgressive(ctx *cli.Context) error {
	setupLogging(ctx)

	opts, err := renderOptions(ctx)
	if err != nil {
		return err
	}
	r, _, err := setupRenderer(ctx, opts)
	if err != nil {
		return err
	}
	defer r.Close()

	sigCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	frames := int(ctx.Uint("frames"))
	snapshot := int(ctx.Uint("snapshot"))
	imgFile := ctx.String("out")

	// An unbounded render displays a spinner instead of a progress bar.
	barMax := frames
	if frames == 0 {
		barMax = -1
	}
	bar := progressbar.NewOptions(
		barMax,
		progressbar.OptionSetDescription("rendering"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
	)

	var img *image.RGBA
	for frame := 1; frames == 0 || frame <= frames; frame++ {
		next, err := r.RenderFrame(sigCtx)
		if errors.Is(err, renderer.ErrInterrupted) {
			logger.Notice("interrupted; saving current estimate")
			break
		}
		if err != nil {
			return err
		}
		img = next
		bar.Add(1)

		if snapshot > 0 && frame%snapshot == 0 {
			if err = writeImage(imgFile, img); err != nil {
				return err
			}
		}
	}
	bar.Finish()

	if img == nil {
		return renderer.ErrInterrupted
	}

	displayFrameStats(r.Stats())
	return writeImage(imgFile, img)
}

func displayFrameStats(stats renderer.FrameStats) {
	var buf bytes.Buffer
	stats.Write(&buf)
	logger.Noticef("frame statistics\n%s", buf.String())
}

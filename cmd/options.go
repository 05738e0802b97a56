package cmd

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"

	"github.com/achilleasa/boxtrace/asset/scene/reader"
	"github.com/achilleasa/boxtrace/renderer"
	"github.com/achilleasa/boxtrace/scene"
	"github.com/achilleasa/boxtrace/types"
	"github.com/chewxy/math32"
	"github.com/urfave/cli"
)

// Flags shared by all commands that render frames.
func RenderFlags() []cli.Flag {
	defaults := renderer.DefaultOptions()
	return []cli.Flag{
		cli.UintFlag{
			Name:  "width",
			Value: uint(defaults.FrameW),
			Usage: "frame width",
		},
		cli.UintFlag{
			Name:  "height",
			Value: uint(defaults.FrameH),
			Usage: "frame height",
		},
		cli.UintFlag{
			Name:  "tracers",
			Value: 0,
			Usage: "number of cpu tracers; 0 uses one tracer per cpu",
		},
		cli.UintFlag{
			Name:  "seed",
			Value: uint(defaults.Seed),
			Usage: "random seed for sampling",
		},
		cli.UintFlag{
			Name:  "max-steps",
			Value: uint(defaults.Settings.MaxSteps),
			Usage: "max traversal steps per sample path",
		},
		cli.UintFlag{
			Name:  "diffuse-bounces",
			Value: uint(defaults.Settings.MaxDiffuseBounces),
			Usage: "number of diffuse bounces before a path is terminated",
		},
		cli.BoolFlag{
			Name:  "sky-lighting",
			Usage: "let the sky light diffuse surfaces",
		},
		cli.Float64Flag{
			Name:  "exposure",
			Value: float64(defaults.Exposure),
			Usage: "camera exposure for tone-mapping",
		},
		cli.Float64Flag{
			Name:  "denoise-sigma",
			Value: float64(defaults.DenoiseSigma),
			Usage: "denoise filter sigma for the first frame; 0 disables denoising",
		},
		cli.Float64Flag{
			Name:  "denoise-ksigma",
			Value: float64(defaults.DenoiseKSigma),
			Usage: "denoise kernel radius as a multiple of sigma",
		},
		cli.Float64Flag{
			Name:  "denoise-threshold",
			Value: float64(defaults.DenoiseThreshold),
			Usage: "denoise edge sharpening threshold for the first frame",
		},
	}
}

// Frames larger than this along either axis are rejected.
const maxFrameDim = 16384

func renderOptions(ctx *cli.Context) (renderer.Options, error) {
	opts := renderer.DefaultOptions()
	dst := []struct {
		flag string
		val  *uint32
	}{
		{"width", &opts.FrameW},
		{"height", &opts.FrameH},
		{"tracers", &opts.NumTracers},
		{"seed", &opts.Seed},
		{"max-steps", &opts.Settings.MaxSteps},
		{"diffuse-bounces", &opts.Settings.MaxDiffuseBounces},
	}
	for _, d := range dst {
		v := ctx.Uint(d.flag)
		if uint64(v) > math.MaxUint32 {
			return opts, fmt.Errorf("--%s: value %d is out of range", d.flag, v)
		}
		*d.val = uint32(v)
	}
	if opts.FrameW == 0 || opts.FrameH == 0 || opts.FrameW > maxFrameDim || opts.FrameH > maxFrameDim {
		return opts, fmt.Errorf("frame dimensions %dx%d must be between 1 and %d", opts.FrameW, opts.FrameH, maxFrameDim)
	}

	opts.Settings.SkyLighting = ctx.Bool("sky-lighting")
	opts.Exposure = float32(ctx.Float64("exposure"))
	opts.DenoiseSigma = float32(ctx.Float64("denoise-sigma"))
	opts.DenoiseKSigma = float32(ctx.Float64("denoise-ksigma"))
	opts.DenoiseThreshold = float32(ctx.Float64("denoise-threshold"))
	return opts, nil
}

// Load the scene passed as the first command argument.
func loadScene(ctx *cli.Context) (*reader.Description, error) {
	if ctx.NArg() != 1 {
		return nil, errors.New("missing scene file argument")
	}

	desc, err := reader.ReadScene(ctx.Args().First())
	if err != nil {
		return nil, err
	}
	if desc.Camera == nil {
		desc.Camera = defaultCamera(desc.Roots)
		logger.Noticef("scene does not define a camera; using camera at %v", desc.Camera.Position)
	}
	return desc, nil
}

// Load the scene and create a cpu renderer for it.
func setupRenderer(ctx *cli.Context, opts renderer.Options) (renderer.Renderer, *scene.Camera, error) {
	desc, err := loadScene(ctx)
	if err != nil {
		return nil, nil, err
	}

	r, err := renderer.NewCPU(opts)
	if err != nil {
		return nil, nil, err
	}

	if err = r.LoadScene(desc.Roots); err != nil {
		r.Close()
		return nil, nil, err
	}
	r.UpdateCamera(desc.Camera.View(opts.FrameW, opts.FrameH))

	return r, desc.Camera, nil
}

// Create a camera that looks at the scene bounding box from the +z side.
func defaultCamera(roots []*scene.Object) *scene.Camera {
	cam := scene.NewCamera(45)

	bbox := types.EmptyBBox()
	for _, obj := range roots {
		objBBox := obj.BBox()
		bbox[0] = types.MinVec3(bbox[0], objBBox[0])
		bbox[1] = types.MaxVec3(bbox[1], objBBox[1])
	}
	if len(roots) == 0 {
		bbox = [2]types.Vec3{}
	}

	center := bbox[0].Add(bbox[1]).Mul(0.5)
	extents := bbox[1].Sub(bbox[0]).Mul(0.5)
	distance := extents[2] + math32.Max(extents[0], extents[1])/math32.Tan(0.5*cam.FOV*math32.Pi/180)

	cam.LookAt = center
	cam.Position = center.Add(types.XYZ(0, 0, math32.Max(distance, 1)))
	return cam
}

func writeImage(imgFile string, img image.Image) error {
	f, err := os.Create(imgFile)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", imgFile, err)
	}
	defer f.Close()

	return png.Encode(f, img)
}

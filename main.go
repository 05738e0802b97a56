package main

import (
	"os"

	"github.com/achilleasa/boxtrace/cmd"
	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "boxtrace"
	app.Usage = "render hierarchical box scenes using path tracing"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "log level (debug, info, notice, warning, error)",
		},
		cli.StringSliceFlag{
			Name:  "log-module",
			Value: &cli.StringSlice{},
			Usage: `override the level of a named logger, e.g. "renderer=debug"`,
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "render",
			Usage: "render scene",
			Subcommands: []cli.Command{
				{
					Name:  "frame",
					Usage: "render single frame",
					Description: `
Accumulate a fixed number of samples per pixel and write the denoised,
tone-mapped result to an image file.`,
					ArgsUsage: "scene_file",
					Flags: append(cmd.RenderFlags(),
						cli.UintFlag{
							Name:  "spp",
							Value: 16,
							Usage: "samples per pixel",
						},
						cli.StringFlag{
							Name:  "out, o",
							Value: "frame.png",
							Usage: "image filename for the rendered frame",
						},
					),
					Action: cmd.RenderFrame,
				},
				{
					Name:  "progressive",
					Usage: "render frames progressively until interrupted",
					Description: `
Keep accumulating frames until the frame limit is reached or the command is
interrupted. The current estimate is periodically written to the output file.`,
					ArgsUsage: "scene_file",
					Flags: append(cmd.RenderFlags(),
						cli.UintFlag{
							Name:  "frames",
							Value: 0,
							Usage: "number of frames to render; 0 renders until interrupted",
						},
						cli.UintFlag{
							Name:  "snapshot",
							Value: 32,
							Usage: "write the output image every N frames; 0 only writes the final frame",
						},
						cli.StringFlag{
							Name:  "out, o",
							Value: "frame.png",
							Usage: "image filename for the rendered frame",
						},
					),
					Action: cmd.RenderProgressive,
				},
			},
		},
		{
			Name:  "scene",
			Usage: "inspect scene files",
			Subcommands: []cli.Command{
				{
					Name:      "info",
					Usage:     "compile scene and display its statistics",
					ArgsUsage: "scene_file",
					Flags: []cli.Flag{
						cli.UintFlag{
							Name:  "width",
							Value: 512,
							Usage: "frame width used for the camera view",
						},
						cli.UintFlag{
							Name:  "height",
							Value: 512,
							Usage: "frame height used for the camera view",
						},
					},
					Action: cmd.ShowSceneInfo,
				},
			},
		},
		{
			Name:      "debug",
			Usage:     "render depth, normal and traversal step images",
			ArgsUsage: "scene_file",
			Flags: append(cmd.RenderFlags(),
				cli.StringFlag{
					Name:  "prefix",
					Value: "debug",
					Usage: "filename prefix for the debug images",
				},
			),
			Action: cmd.Debug,
		},
		{
			Name:  "serve",
			Usage: "serve a progressive preview of the scene over http",
			Description: `
Render the scene in the background and expose the latest frame at /frame.png.
The camera can be moved by posting to /camera and the accumulated samples
discarded by posting to /reset.`,
			ArgsUsage: "scene_file",
			Flags: append(cmd.RenderFlags(),
				cli.StringFlag{
					Name:  "addr",
					Value: "localhost:8080",
					Usage: "listen address",
				},
				cli.UintFlag{
					Name:  "max-frames",
					Value: 1024,
					Usage: "pause rendering after accumulating this many frames; 0 never pauses",
				},
			),
			Action: cmd.Serve,
		},
	}

	app.Run(os.Args)
}

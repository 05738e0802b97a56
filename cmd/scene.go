package cmd

import (
	"github.com/achilleasa/boxtrace/scene/compiler"
	"github.com/urfave/cli"
)

// Display compiled scene info.
func ShowSceneInfo(ctx *cli.Context) error {
	setupLogging(ctx)

	desc, err := loadScene(ctx)
	if err != nil {
		return err
	}

	sc, err := compiler.Compile(desc.Roots)
	if err != nil {
		return err
	}

	logger.Noticef("scene information:\n%s", sc.Stats())
	logger.Noticef("camera: %s", desc.Camera.View(uint32(ctx.Uint("width")), uint32(ctx.Uint("height"))))
	return nil
}

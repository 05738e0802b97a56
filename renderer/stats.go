package renderer

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
)

type TracerStat struct {
	// The tracer id.
	Id string

	// True if this is the primary tracer
	IsPrimary bool

	// The block height and the percentage of total frame area it represents.
	BlockH       uint32
	FramePercent float32

	// Render time for assigned block
	RenderTime time.Duration

	// Traversal steps and discarded samples for the assigned block.
	Steps            uint64
	DiscardedSamples uint64
}

type FrameStats struct {
	// Individual tracer stats.
	Tracers []TracerStat

	// Number of accumulated frames since the last reset.
	FrameCount uint32

	// Total render time for entire frame.
	RenderTime time.Duration

	// Time spent averaging, denoising and tonemapping the accumulator.
	DisplayTime time.Duration
}

// Render the frame stats as a table to w.
func (fs FrameStats) Write(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Tracer", "Primary", "Block height", "% of frame", "Render time", "Steps", "Discarded"})
	for _, ts := range fs.Tracers {
		primary := ""
		if ts.IsPrimary {
			primary = "*"
		}
		table.Append([]string{
			ts.Id,
			primary,
			fmt.Sprintf("%d", ts.BlockH),
			fmt.Sprintf("%02.1f %%", ts.FramePercent),
			ts.RenderTime.String(),
			fmt.Sprintf("%d", ts.Steps),
			fmt.Sprintf("%d", ts.DiscardedSamples),
		})
	}
	table.SetFooter([]string{"", "", "", fmt.Sprintf("frame %d", fs.FrameCount), fs.RenderTime.String(), "display", fs.DisplayTime.String()})
	table.Render()
}

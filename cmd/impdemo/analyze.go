package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gogpu/imp"
	"github.com/gogpu/imp/analyzer"
	"github.com/gogpu/imp/gpucore"
	"github.com/gogpu/imp/histogram"
	"github.com/gogpu/imp/imageio"
)

// loadTexture decodes path onto the device of ctx, scaled to the context
// limit.
func (a *app) loadTexture(ctx *imp.Context, path string) (gpucore.Texture, error) {
	img, format, err := imageio.Load(path)
	if err != nil {
		return nil, err
	}
	tex, err := imageio.Texture(ctx.Device(), img, ctx.MaxTextureSize())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	a.logger.Debug("image loaded", "path", path, "format", format, "size", tex.Size().String())
	return tex, nil
}

func (a *app) histogramCommand() *cobra.Command {
	var (
		region string
		scale  float64
	)
	cmd := &cobra.Command{
		Use:   "histogram <image>",
		Short: "Print channel ranges, means and exposure zones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := a.cfg.region()
			if cmd.Flags().Changed("region") {
				var err error
				if r, err = parseRegion(region); err != nil {
					return err
				}
			}
			ctx, err := a.openContext()
			if err != nil {
				return err
			}
			defer ctx.Close()
			tex, err := a.loadTexture(ctx, args[0])
			if err != nil {
				return err
			}
			defer tex.Destroy()

			an, err := analyzer.NewHistogramAnalyzer(ctx,
				analyzer.WithChannels(histogram.MaxChannels),
				analyzer.WithRegion(r),
				analyzer.WithScale(scale))
			if err != nil {
				return err
			}
			ranges := histogram.NewRangeSolver()
			means := &histogram.DominantColorSolver{}
			zones := &histogram.ZonesSolver{}
			an.AddSolver(ranges)
			an.AddSolver(means)
			an.AddSolver(zones)
			h, err := an.AnalyzeContext(cmd.Context(), tex)
			if err != nil {
				return err
			}
			a.printHistogram(args[0], h, ranges, means, zones)
			return nil
		},
	}
	cmd.Flags().StringVar(&region, "region", "", "region of interest as left,top,right,bottom fractions")
	cmd.Flags().Float64Var(&scale, "scale", 1, "sample grid scale in (0,1]")
	return cmd
}

var channelNames = [histogram.MaxChannels]string{"red", "green", "blue", "luma"}

func (a *app) printHistogram(path string, h *histogram.Histogram, ranges *histogram.RangeSolver,
	means *histogram.DominantColorSolver, zones *histogram.ZonesSolver) {
	printTitle(a.out, path)
	printKV(a.out, "samples", printer.Sprintf("%d", int64(h.Total(0))))
	for c := range h.Channels() {
		printKV(a.out, channelNames[c], fmt.Sprintf("range %.3f..%.3f  mean %.3f",
			ranges.Min[c], ranges.Max[c], means.Color[c]))
	}
	fmt.Fprintln(a.out)
	printTitle(a.out, "zones")
	for i, v := range zones.Steps {
		printKV(a.out, fmt.Sprintf("zone %d", i), bar(v, 30)+fmt.Sprintf(" %5.1f%%", v*100))
	}
	printKV(a.out, "balance", fmt.Sprintf("%.3f %.3f %.3f", zones.Balance[0], zones.Balance[1], zones.Balance[2]))
}

func (a *app) paletteCommand() *cobra.Command {
	var (
		count      int
		medianCut  bool
		region     string
		shadows    float64
		highlights float64
	)
	cmd := &cobra.Command{
		Use:   "palette <image>",
		Short: "Extract the dominant colors of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.Palette
			flags := cmd.Flags()
			if flags.Changed("count") {
				cfg.Size = count
			}
			if flags.Changed("median-cut") {
				cfg.MedianCut = medianCut
			}
			if flags.Changed("shadows") {
				cfg.Shadows = shadows
			}
			if flags.Changed("highlights") {
				cfg.Highlights = highlights
			}
			r := a.cfg.region()
			if flags.Changed("region") {
				var err error
				if r, err = parseRegion(region); err != nil {
					return err
				}
			}
			if cfg.Size <= 0 {
				return fmt.Errorf("palette size must be positive, got %d", cfg.Size)
			}

			ctx, err := a.openContext()
			if err != nil {
				return err
			}
			defer ctx.Close()
			tex, err := a.loadTexture(ctx, args[0])
			if err != nil {
				return err
			}
			defer tex.Destroy()

			an, err := analyzer.NewCubeAnalyzer(ctx,
				analyzer.WithRegion(r),
				analyzer.WithClipping(cfg.clipping()))
			if err != nil {
				return err
			}
			solver := &histogram.PaletteSolver{Count: cfg.Size, MedianCut: cfg.MedianCut}
			an.AddSolver(solver)
			if err := an.AnalyzeContext(cmd.Context(), tex); err != nil {
				return err
			}

			method := "cube maxima"
			if cfg.MedianCut {
				method = "median cut"
			}
			printTitle(a.out, fmt.Sprintf("%s (%s)", args[0], method))
			printKV(a.out, "samples", printer.Sprintf("%d", an.Total()))
			for i, c := range solver.Colors {
				printKV(a.out, fmt.Sprintf("color %d", i+1), swatch(c))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVarP(&count, "count", "n", 8, "number of colors")
	f.BoolVar(&medianCut, "median-cut", false, "split the color cube by median cut instead of using maxima")
	f.StringVar(&region, "region", "", "region of interest as left,top,right,bottom fractions")
	f.Float64Var(&shadows, "shadows", 0, "ignore colors with every channel below this fraction")
	f.Float64Var(&highlights, "highlights", 0, "ignore colors with every channel above 1 minus this fraction")
	return cmd
}

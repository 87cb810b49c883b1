package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/imp"
	"github.com/gogpu/imp/filters"
	"github.com/gogpu/imp/geometry"
	"github.com/gogpu/imp/histogram"
	"github.com/gogpu/imp/imageio"
)

// applyFile runs passes over the image at in and saves the result to out.
func (a *app) applyFile(ctx context.Context, ictx *imp.Context, in, out string, passes ...imp.Pass) error {
	return a.filterFile(ctx, ictx, in, out, func(f *imp.Filter) (func(), error) {
		f.SetPasses(passes...)
		return nil, nil
	})
}

// filterFile lets setup configure a filter before the image at in becomes
// its source, then saves the destination to out.
func (a *app) filterFile(ctx context.Context, ictx *imp.Context, in, out string,
	setup func(*imp.Filter) (release func(), err error)) error {
	src, err := a.loadTexture(ictx, in)
	if err != nil {
		return err
	}
	defer src.Destroy()

	f := imp.NewFilter(ictx, imp.WithName(filepath.Base(in)))
	defer f.Close()
	release, err := setup(f)
	if err != nil {
		return err
	}
	if release != nil {
		defer release()
	}
	f.SetSource(src)
	if err := f.ApplyContext(ctx); err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}
	dst, err := f.Destination()
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}
	if err := ictx.Wait(ctx); err != nil {
		return err
	}
	img, err := imageio.Image(dst)
	if err != nil {
		return err
	}
	if err := imageio.Save(out, img); err != nil {
		return err
	}
	a.logger.Debug("image written", "path", out, "size", dst.Size().String())
	return nil
}

// runPasses opens a context, applies passes to one file and reports it.
func (a *app) runPasses(cmd *cobra.Command, in, out string, build func(*imp.Context) ([]imp.Pass, func(), error)) error {
	ictx, err := a.openContext()
	if err != nil {
		return err
	}
	defer ictx.Close()
	passes, release, err := build(ictx)
	if err != nil {
		return err
	}
	if release != nil {
		defer release()
	}
	if err := a.applyFile(cmd.Context(), ictx, in, out, passes...); err != nil {
		return err
	}
	printDone(a.out, "wrote %s", out)
	return nil
}

func (a *app) cropCommand() *cobra.Command {
	var region string
	cmd := &cobra.Command{
		Use:   "crop <in> <out>",
		Short: "Cut a region out of an image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := a.cfg.region()
			if cmd.Flags().Changed("region") {
				var err error
				if r, err = parseRegion(region); err != nil {
					return err
				}
			}
			return a.runPasses(cmd, args[0], args[1], func(*imp.Context) ([]imp.Pass, func(), error) {
				crop, err := filters.NewCropPass(r)
				if err != nil {
					return nil, nil, err
				}
				return []imp.Pass{crop}, nil, nil
			})
		},
	}
	cmd.Flags().StringVar(&region, "region", "", "left,top,right,bottom fractions to cut away")
	return cmd
}

func (a *app) warpCommand() *cobra.Command {
	var (
		quad    string
		nearest bool
	)
	cmd := &cobra.Command{
		Use:   "warp <in> <out>",
		Short: "Map the image onto a quadrilateral",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dst, err := parseQuad(quad)
			if err != nil {
				return err
			}
			return a.runPasses(cmd, args[0], args[1], func(ictx *imp.Context) ([]imp.Pass, func(), error) {
				warp := filters.NewWarpPass(ictx)
				warp.SetLinear(!nearest)
				if err := warp.SetQuads(geometry.UnitQuad(), dst); err != nil {
					return nil, nil, err
				}
				return []imp.Pass{warp}, nil, nil
			})
		},
	}
	cmd.Flags().StringVar(&quad, "quad", "-1,-1,-1,1,1,-1,1,1",
		"destination corners x,y for left-bottom, left-top, right-bottom, right-top in [-1,1]")
	cmd.Flags().BoolVar(&nearest, "nearest", false, "sample with nearest neighbour instead of bilinear")
	return cmd
}

// lutPasses loads a .cube file into a LUT pass. Tables are parsed once per
// file and shared through a.luts.
func (a *app) lutPasses(path string, intensity float64) func(*imp.Context) ([]imp.Pass, func(), error) {
	return func(ictx *imp.Context) ([]imp.Pass, func(), error) {
		table, err := a.luts.Load(path)
		if err != nil {
			return nil, nil, err
		}
		p, err := filters.NewLUTPass(ictx, table)
		if err != nil {
			return nil, nil, err
		}
		p.SetIntensity(intensity)
		return []imp.Pass{p}, p.Close, nil
	}
}

func (a *app) lutCommand() *cobra.Command {
	var intensity float64
	cmd := &cobra.Command{
		Use:   "lut <in> <table.cube> <out>",
		Short: "Color grade an image with a .cube lookup table",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPasses(cmd, args[0], args[2], a.lutPasses(args[1], intensity))
		},
	}
	cmd.Flags().Float64Var(&intensity, "intensity", 1, "blend between the input (0) and the graded color (1)")
	return cmd
}

func (a *app) adjustCommand() *cobra.Command {
	var (
		levels, wb bool
		intensity  float64
		clipping   float64
	)
	cmd := &cobra.Command{
		Use:   "adjust <in> <out>",
		Short: "Stretch levels and balance white from the image histogram",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !levels && !wb {
				return errors.New("adjust: nothing to do, enable --levels or --white-balance")
			}
			ictx, err := a.openContext()
			if err != nil {
				return err
			}
			defer ictx.Close()
			err = a.filterFile(cmd.Context(), ictx, args[0], args[1], func(f *imp.Filter) (func(), error) {
				var closers []func()
				release := func() {
					for _, c := range closers {
						c()
					}
				}
				if wb {
					aw, err := filters.NewAutoWhiteBalance(f)
					if err != nil {
						return nil, err
					}
					aw.SetIntensity(intensity)
					closers = append(closers, aw.Close)
				}
				if levels {
					al, err := filters.NewAutoLevels(f)
					if err != nil {
						release()
						return nil, err
					}
					al.SetClipping(histogram.Clipping{Shadows: clipping, Highlights: clipping})
					al.SetIntensity(intensity)
					closers = append(closers, al.Close)
				}
				return release, nil
			})
			if err != nil {
				return err
			}
			printDone(a.out, "wrote %s", args[1])
			return nil
		},
	}
	cmd.Flags().BoolVar(&levels, "levels", true, "stretch every channel to the full range")
	cmd.Flags().BoolVar(&wb, "white-balance", true, "neutralize the dominant color")
	cmd.Flags().Float64Var(&intensity, "intensity", 1, "blend between the input (0) and the adjusted color (1)")
	cmd.Flags().Float64Var(&clipping, "clipping", 0.001, "fraction of samples ignored at each end of the range")
	return cmd
}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// listImages returns the image files directly inside dir, by name.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

func (a *app) batchCommand() *cobra.Command {
	var (
		outDir    string
		lutPath   string
		intensity float64
		maxSide   int
		jobs      int
	)
	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Grade or resize every image in a directory in parallel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outDir == "" {
				return fmt.Errorf("--out is required")
			}
			files, err := listImages(args[0])
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o750); err != nil {
				return err
			}
			ictx, err := a.openContext()
			if err != nil {
				return err
			}
			defer ictx.Close()

			var build []func(*imp.Context) ([]imp.Pass, func(), error)
			if maxSide > 0 {
				build = append(build, func(ictx *imp.Context) ([]imp.Pass, func(), error) {
					return []imp.Pass{filters.NewMaxSizePass(ictx, maxSide)}, nil, nil
				})
			}
			if lutPath != "" {
				build = append(build, a.lutPasses(lutPath, intensity))
			}

			var done atomic.Int64
			g, gctx := errgroup.WithContext(cmd.Context())
			if jobs > 0 {
				g.SetLimit(jobs)
			}
			for _, in := range files {
				g.Go(func() error {
					var passes []imp.Pass
					for _, b := range build {
						p, release, err := b(ictx)
						if err != nil {
							return err
						}
						if release != nil {
							defer release()
						}
						passes = append(passes, p...)
					}
					out := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))+".png")
					if err := a.applyFile(gctx, ictx, in, out, passes...); err != nil {
						return err
					}
					done.Add(1)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			printDone(a.out, "processed %d of %d images into %s", done.Load(), len(files), outDir)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&outDir, "out", "", "output directory")
	f.StringVar(&lutPath, "lut", "", ".cube lookup table to apply")
	f.Float64Var(&intensity, "intensity", 1, "LUT blend intensity")
	f.IntVar(&maxSide, "max", 0, "scale results so the longer side is at most this")
	f.IntVar(&jobs, "jobs", 4, "images processed at once (0 = unlimited)")
	return cmd
}

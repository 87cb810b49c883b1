package main

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/gogpu/imp"
	"github.com/gogpu/imp/gpu"
	"github.com/gogpu/imp/gpucore"
	"github.com/gogpu/imp/lut"
)

// app holds the state shared by every command.
type app struct {
	out    io.Writer
	logger *log.Logger

	configPath string
	verbose    bool
	device     string
	policy     string
	workers    int
	maxSize    int

	cfg  config
	luts *lut.Cache
}

func newApp(out, errOut io.Writer) *app {
	return &app{
		out:  out,
		luts: lut.NewCache(8),
		logger: log.NewWithOptions(errOut, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           log.InfoLevel,
		}),
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:               "impdemo",
		Short:             "impdemo analyzes and filters images on the GPU",
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "TOML config file")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&a.device, "device", "auto", "device: auto, soft or gpu")
	pf.StringVar(&a.policy, "policy", "deferred", "hazard policy: immediate or deferred")
	pf.IntVar(&a.workers, "workers", 0, "software device workers (0 = GOMAXPROCS)")
	pf.IntVar(&a.maxSize, "max-size", 0, "scale images down to this longer side (0 = device limit)")

	root.AddCommand(a.histogramCommand())
	root.AddCommand(a.paletteCommand())
	root.AddCommand(a.cropCommand())
	root.AddCommand(a.warpCommand())
	root.AddCommand(a.lutCommand())
	root.AddCommand(a.adjustCommand())
	root.AddCommand(a.batchCommand())
	return root
}

// setup loads the config, lets explicit flags override it and routes imp
// logging through the CLI logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("device") || cfg.Device == "" {
		cfg.Device = a.device
	}
	if flags.Changed("policy") || cfg.Policy == "" {
		cfg.Policy = a.policy
	}
	if flags.Changed("workers") {
		cfg.Workers = a.workers
	}
	if flags.Changed("max-size") {
		cfg.MaxSize = a.maxSize
	}
	a.cfg = cfg

	if a.verbose {
		a.logger.SetLevel(log.DebugLevel)
	}
	imp.SetLogger(slog.New(a.logger))
	return nil
}

// openDevice picks the device named by the config.
func (a *app) openDevice() (gpucore.Device, error) {
	switch a.cfg.Device {
	case "soft":
		return imp.NewSoftwareDevice(a.cfg.Workers), nil
	case "gpu":
		return gpu.Open()
	case "auto", "":
		return gpu.OpenOrSoftware(a.cfg.Workers), nil
	default:
		return nil, fmt.Errorf("unknown device %q (want auto, soft or gpu)", a.cfg.Device)
	}
}

// openContext opens the device and wraps it in a Context the caller closes.
func (a *app) openContext() (*imp.Context, error) {
	policy, err := imp.ParseHazardPolicy(a.cfg.Policy)
	if err != nil {
		return nil, err
	}
	dev, err := a.openDevice()
	if err != nil {
		return nil, err
	}
	opts := []imp.ContextOption{imp.WithHazardPolicy(policy)}
	if a.cfg.MaxSize > 0 {
		opts = append(opts, imp.WithMaxTextureSize(a.cfg.MaxSize))
	}
	ctx, err := imp.NewContext(dev, opts...)
	if err != nil {
		dev.Destroy()
		return nil, err
	}
	a.logger.Debug("context ready", "device", dev.Name(), "policy", policy, "cpus", runtime.NumCPU())
	return ctx, nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/natefinch/lumberjack"
	"gonum.org/v1/gonum/spatial/r3"

	"volgeom/internal/phantom"
	"volgeom/pkg/config"
	"volgeom/pkg/mask"
	"volgeom/pkg/mesh"
	"volgeom/pkg/palette"
	"volgeom/pkg/reconstruction"
	"volgeom/pkg/reformation"
	"volgeom/pkg/stl"
	"volgeom/pkg/visualization"
	"volgeom/pkg/volume"
)

// Colour modes for -colors.
const (
	colorsByName  = "name"
	colorsByLabel = "label"
)

// demoPath runs through both spheres and the tube joining them, in voxel
// indices of the phantom.
var demoPath = []r3.Vec{
	{X: 3, Y: 20, Z: 20},
	{X: 14, Y: 22, Z: 20},
	{X: 24, Y: 20, Z: 22},
	{X: 34, Y: 18, Z: 20},
	{X: 45, Y: 20, Z: 20},
}

// options collects the flags that are not configuration overrides.
type options struct {
	extractSlices bool
	planes        []visualization.Plane
	colors        string
}

func main() {
	os.Exit(realMain())
}

func realMain() int {
	// Parse command line arguments
	configPath := flag.String("config", "volgeom.yaml", "Configuration file (.yaml or .toml)")
	initConfig := flag.Bool("init-config", false, "Write the default configuration to -config and exit")
	outputDir := flag.String("output", "", "Output directory (overrides output.dir)")
	numWorkers := flag.Int("workers", -1, "Labels meshed concurrently (overrides processing.numWorkers)")
	ascii := flag.Bool("ascii", false, "Write ASCII STL instead of binary")
	extractSlices := flag.Bool("extract-slices", false, "Save the phantom's orthogonal slices")
	planeList := flag.String("planes", "axial,coronal,sagittal", "Slice planes for -extract-slices (axial/coronal/sagittal or z/y/x)")
	colorMode := flag.String("colors", colorsByName, "Part colours: \"name\" (keyword rules) or \"label\" (golden-ratio hue per label)")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			return 1
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return 0
	}

	planes, err := parsePlanes(*planeList)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid -planes: %v\n", err)
		return 2
	}
	if *colorMode != colorsByName && *colorMode != colorsByLabel {
		fmt.Fprintf(os.Stderr, "Invalid -colors %q (must be %q or %q)\n", *colorMode, colorsByName, colorsByLabel)
		return 2
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *numWorkers >= 0 {
		cfg.Processing.NumWorkers = *numWorkers
	}
	if *ascii {
		cfg.Output.STLBinary = false
	}
	if *verbose {
		cfg.Output.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration:\n%v\n", err)
		return 1
	}

	logger, closeLog := newLogger(cfg)
	defer func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close log file: %v\n", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println("================================")
	fmt.Println("VOLUME GEOMETRY: LABEL SURFACES AND CURVED REFORMATION")
	fmt.Println("================================")

	opts := options{extractSlices: *extractSlices, planes: planes, colors: *colorMode}
	if err := run(ctx, cfg, logger, opts); err != nil {
		logger.Error("run failed", "error", err)
		return 1
	}
	return 0
}

// newLogger writes text logs to stderr and, when configured, to a rotated
// log file. The returned function closes the log file.
func newLogger(cfg *config.Config) (*slog.Logger, func() error) {
	level := slog.LevelInfo
	if cfg.Output.Verbose {
		level = slog.LevelDebug
	}
	var w io.Writer = os.Stderr
	closeLog := func() error { return nil }
	if cfg.Output.LogFile != "" {
		rotated := &lumberjack.Logger{
			Filename: cfg.Output.LogFile,
			MaxSize:  cfg.Output.MaxLogSize,
			MaxAge:   cfg.Output.MaxLogAge,
		}
		w = io.MultiWriter(os.Stderr, rotated)
		closeLog = rotated.Close
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closeLog
}

// parsePlanes reads a comma-separated plane list. Repeats are dropped.
func parsePlanes(list string) ([]visualization.Plane, error) {
	var planes []visualization.Plane
	seen := make(map[visualization.Plane]bool)
	for _, field := range strings.Split(list, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		p, err := visualization.ParsePlane(field)
		if err != nil {
			return nil, err
		}
		if !seen[p] {
			seen[p] = true
			planes = append(planes, p)
		}
	}
	if len(planes) == 0 {
		return nil, fmt.Errorf("no plane in %q", list)
	}
	return planes, nil
}

// loadDemo merges the per-structure phantom masks the way a folder of
// segmentation files is combined, naming each label after its file.
func loadDemo(logger *slog.Logger) (*volume.LabelMask, map[int32]string, error) {
	parts := phantom.DemoParts()
	masks := make([]*volume.LabelMask, len(parts))
	for i, p := range parts {
		masks[i] = p.Mask
	}
	merged, entries, err := mask.Merge(masks)
	if err != nil {
		return nil, nil, fmt.Errorf("merging masks: %w", err)
	}

	names := make(map[int32]string, len(entries))
	for _, e := range entries {
		file := parts[e.Index].File
		if e.Skipped() {
			logger.Warn("mask skipped", "file", file, "error", e.Err)
			continue
		}
		names[e.Label] = mask.PartName(file)
		logger.Debug("mask merged", "file", file, "label", e.Label, "voxels", humanize.Comma(int64(e.Voxels)))
	}
	return merged, names, nil
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts options) error {
	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	labels, names, err := loadDemo(logger)
	if err != nil {
		return err
	}
	grid := phantom.GridFromMask(labels, 0, 100)
	d := grid.Dims()
	logger.Info("volume ready",
		"dims", fmt.Sprintf("%dx%dx%d", d.NX, d.NY, d.NZ),
		"voxels", humanize.Comma(int64(d.Len())),
		"spacing", grid.Spacing(),
		"parts", len(names))

	startTime := time.Now()
	results, meshErr := meshLabels(ctx, grid, labels, cfg, logger)
	if meshErr != nil && !errors.Is(meshErr, context.Canceled) {
		return meshErr
	}
	// Labels finished before an interrupt are still written.
	if err := writeMeshes(cfg, results, names, opts.colors, logger); err != nil {
		return err
	}
	if meshErr != nil {
		return meshErr
	}
	logger.Info("meshing finished", "elapsed", time.Since(startTime).Round(time.Millisecond))

	if err := writeReformation(grid, cfg, logger); err != nil {
		return err
	}

	if opts.extractSlices {
		viewer := visualization.NewViewer(grid, visualization.Window{})
		slicesPath := filepath.Join(cfg.Output.Dir, "slices")
		for _, plane := range opts.planes {
			planeDir := filepath.Join(slicesPath, plane.String())
			if err := viewer.SaveSliceSequence(plane, planeDir); err != nil {
				logger.Warn("failed to save slices", "plane", plane, "error", err)
				continue
			}
			logger.Info("slices saved", "plane", plane, "count", viewer.SliceCount(plane), "dir", planeDir)
		}
	}
	return nil
}

// meshLabels runs the batch pipeline with a console progress line.
func meshLabels(ctx context.Context, grid *volume.Grid, labels *volume.LabelMask, cfg *config.Config, logger *slog.Logger) (map[int32]reconstruction.LabelResult, error) {
	params := cfg.PipelineParams(logger)
	progress := func(p reconstruction.Progress) {
		fmt.Printf("\rMeshing labels... %.1f%% complete (%d/%d)", p.Percent, p.Index, p.Total)
		if p.Index == p.Total {
			fmt.Println()
		}
	}
	results, err := reconstruction.BuildAllLabelMeshes(ctx, grid, labels, params, progress, nil)
	if err != nil {
		fmt.Println()
		return results, fmt.Errorf("meshing labels: %w", err)
	}
	return results, nil
}

// partColors colours the given labels either by part name through mapper or
// by label value on the golden-ratio wheel.
func partColors(ids []int32, names map[int32]string, mode string, mapper palette.Mapper) map[int32]colorful.Color {
	out := make(map[int32]colorful.Color, len(ids))
	if mode == colorsByLabel {
		for _, id := range ids {
			out[id] = palette.GoldenRatio(id)
		}
		return out
	}
	partNames := make([]string, len(ids))
	for i, id := range ids {
		partNames[i] = reconstruction.PartName(id, names)
	}
	byName := palette.Assign(partNames, mapper)
	for i, id := range ids {
		out[id] = byName[partNames[i]]
	}
	return out
}

// writeMeshes saves every successful label as <part>.stl and logs the rest.
func writeMeshes(cfg *config.Config, results map[int32]reconstruction.LabelResult, names map[int32]string, colorMode string, logger *slog.Logger) error {
	ids := make([]int32, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var written []int32
	for _, id := range ids {
		if results[id].Status.OK() {
			written = append(written, id)
		}
	}
	mapper, err := cfg.PaletteMapper()
	if err != nil {
		return err
	}
	colors := partColors(written, names, colorMode, mapper)

	for _, id := range ids {
		res := results[id]
		name := reconstruction.PartName(id, names)
		if !res.Status.OK() {
			logger.Warn("label skipped", "label", id, "part", name, "status", res.Status.Code, "error", res.Status.Err)
			continue
		}

		filename := filepath.Join(cfg.Output.Dir, name+".stl")
		if err := stl.SaveMesh(filename, res.Mesh, !cfg.Output.STLBinary); err != nil {
			return err
		}
		size := int64(0)
		if info, err := os.Stat(filename); err == nil {
			size = info.Size()
		}

		s := mesh.ComputeStats(res.Mesh)
		logger.Info("part written",
			"label", id,
			"part", name,
			"color", colors[id].Hex(),
			"triangles", humanize.Comma(int64(s.Triangles)),
			"volume", fmt.Sprintf("%.1f", s.Volume),
			"area", fmt.Sprintf("%.1f", s.Area),
			"elapsed", res.Status.Elapsed.Round(time.Millisecond),
			"file", filename,
			"size", humanize.Bytes(uint64(size)))
	}
	return nil
}

// writeReformation renders the curved reformation along demoPath.
func writeReformation(grid *volume.Grid, cfg *config.Config, logger *slog.Logger) error {
	geom := grid.Geometry()
	path := make([]r3.Vec, len(demoPath))
	for i, p := range demoPath {
		path[i] = geom.IndexToWorld(p)
	}

	res, err := reformation.Fit(grid, path, cfg.ReformationParams(logger))
	if err != nil {
		return fmt.Errorf("reformation: %w", err)
	}
	img := visualization.RenderReformation(res.Grid, cfg.DisplayOptions())

	filename := filepath.Join(cfg.Output.Dir, "reformation.png")
	if err := visualization.SaveImage(img, filename); err != nil {
		return err
	}
	columns, rows := res.Grid.Shape()
	logger.Info("reformation written",
		"columns", columns,
		"rows", rows,
		"length", fmt.Sprintf("%.1f", res.Status.Length),
		"markers", len(res.Overlay.Markers),
		"outOfBounds", fmt.Sprintf("%.1f%%", 100*res.Status.OutOfBoundsRatio),
		"file", filename)
	return nil
}

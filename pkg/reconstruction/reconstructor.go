// Package reconstruction turns labelled voxel masks into closed surface
// meshes, one mesh per label.
//
// The per-label sequence is fixed:
//  1. Isolate the label and clean the binary region (hole filling and
//     connected-component filtering)
//  2. Smooth the 0/1 region into a continuous field with a 3D Gaussian
//  3. Extract the isosurface with marching cubes in world coordinates
//  4. Weld coincident vertices and drop degenerate triangles
//  5. Close small holes, apply Laplacian smoothing and compute normals
//  6. Reduce the triangle count with topology-preserving decimation
//
// Labels are independent of each other, so BuildAllLabelMeshes processes
// them on a bounded worker pool. Cancellation is only observed between
// labels: a label that has started always runs to completion.
package reconstruction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"volgeom/pkg/filter"
	"volgeom/pkg/isosurface"
	"volgeom/pkg/mask"
	"volgeom/pkg/mesh"
	"volgeom/pkg/volume"
)

// Params holds the configuration of the mask-to-surface pipeline.
type Params struct {
	// Mask controls hole filling and component filtering of each label.
	Mask mask.Options

	// Sigma is the standard deviation, in voxels, of the Gaussian applied to
	// the binary region before surface extraction. Zero disables smoothing.
	Sigma float64

	// KernelRadius is the half-width of the Gaussian kernel in voxels. Zero
	// selects filter.DefaultRadius(Sigma).
	KernelRadius int

	// IsoValue is the threshold at which the smoothed field is contoured.
	IsoValue float64

	// MergeTolerance is the world distance below which vertices are welded.
	MergeTolerance float64

	// MaxHoleArea bounds the area of boundary loops closed after extraction.
	MaxHoleArea float64

	// SmoothIterations and Relaxation configure Laplacian smoothing.
	SmoothIterations int
	Relaxation       float64

	// Decimate configures the final triangle reduction.
	Decimate mesh.DecimateOptions

	// NumWorkers bounds the number of labels processed concurrently by
	// BuildAllLabelMeshes. Values below 1 select runtime.NumCPU().
	NumWorkers int

	// Logger receives per-label diagnostics. Nil discards them.
	Logger *slog.Logger
}

// DefaultParams returns the parameters used by the reference workflow:
// sigma 1.0, iso value 0.3, holes up to 10 units², 20 smoothing passes at
// 0.15 and decimation to 70% of the extracted triangles.
func DefaultParams() Params {
	return Params{
		Mask:             mask.DefaultOptions(),
		Sigma:            1.0,
		IsoValue:         isosurface.DefaultIso,
		MergeTolerance:   1e-6,
		MaxHoleArea:      mesh.DefaultMaxHoleArea,
		SmoothIterations: mesh.DefaultSmoothIterations,
		Relaxation:       mesh.DefaultRelaxation,
		Decimate:         mesh.DefaultDecimateOptions(),
		NumWorkers:       runtime.NumCPU(),
	}
}

func (p Params) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p.Logger
}

func (p Params) workers() int {
	if p.NumWorkers < 1 {
		return runtime.NumCPU()
	}
	return p.NumWorkers
}

// StatusCode classifies the outcome of building one label.
type StatusCode int

const (
	StatusOK StatusCode = iota
	StatusEmptyRegion
	StatusDimensionMismatch
	StatusCanceled
	StatusFailed
)

func (c StatusCode) String() string {
	switch c {
	case StatusOK:
		return "ok"
	case StatusEmptyRegion:
		return "empty region"
	case StatusDimensionMismatch:
		return "dimension mismatch"
	case StatusCanceled:
		return "canceled"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("StatusCode(%d)", int(c))
}

// Status describes how a label went through the pipeline. Counters are
// filled in for every stage that ran.
type Status struct {
	Code StatusCode

	// Err is nil for StatusOK and carries the cause otherwise.
	Err error

	RawVoxels     int
	CleanedVoxels int

	ExtractedTriangles int
	CleanedTriangles   int
	FinalTriangles     int

	Elapsed time.Duration
}

// OK reports whether a mesh was produced.
func (s Status) OK() bool { return s.Code == StatusOK }

// LabelResult pairs the mesh built for a label with its status. Mesh is nil
// unless the status is OK.
type LabelResult struct {
	Label  int32
	Mesh   *mesh.Mesh
	Status Status
}

// Progress is reported after each label of a batch completes.
type Progress struct {
	// Index counts completed labels, starting at 1.
	Index int
	Total int
	Label int32

	// Percent is 100*Index/Total.
	Percent float64
	Message string
}

// ProgressFunc receives batch progress. Calls are serialized.
type ProgressFunc func(Progress)

// CancelFunc is polled before each label starts; returning true stops the
// batch. Labels already running are not interrupted.
type CancelFunc func() bool

// BuildLabelMesh runs the complete pipeline for one label.
//
// Parameters:
//   - grid: Volume that supplies the geometry. Its voxel values are not read
//   - m: Label mask with the same dimensions and spacing as grid
//   - label: The label to mesh
//   - params: Pipeline configuration
//
// Returns:
//   - The final mesh, or nil when the status is not OK
//   - The status, whose Err is a *volume.DimensionMismatchError for shape
//     disagreements and a *mask.EmptyRegionError when the label yields no
//     surface
func BuildLabelMesh(grid *volume.Grid, m *volume.LabelMask, label int32, params Params) (out *mesh.Mesh, st Status) {
	start := time.Now()
	log := params.logger().With("label", label)
	defer func() {
		if r := recover(); r != nil {
			out = nil
			st.Code = StatusFailed
			st.Err = fmt.Errorf("label %d: %v", label, r)
		}
		st.Elapsed = time.Since(start)
		if st.Code == StatusOK {
			log.Debug("label meshed", "triangles", st.FinalTriangles, "elapsed", st.Elapsed)
		} else {
			log.Warn("label skipped", "status", st.Code.String(), "err", st.Err)
		}
	}()

	if err := volume.CheckCompatible(grid, m); err != nil {
		return nil, Status{Code: StatusDimensionMismatch, Err: err}
	}

	st.RawVoxels = m.Count(label)
	region, err := mask.Preprocess(m, label, params.Mask)
	if err != nil {
		st.Code = classify(err)
		st.Err = err
		return nil, st
	}
	st.CleanedVoxels = region.Count()
	log.Debug("region cleaned", "raw", st.RawVoxels, "kept", st.CleanedVoxels)

	field := filter.Gaussian(region, params.Sigma, params.KernelRadius)
	surface := isosurface.Extract(field, params.IsoValue, grid.Geometry())
	st.ExtractedTriangles = surface.TriangleCount()
	if st.ExtractedTriangles == 0 {
		st.Code = StatusEmptyRegion
		st.Err = &mask.EmptyRegionError{Label: label, Reason: fmt.Sprintf("no surface at iso value %g", params.IsoValue)}
		return nil, st
	}

	surface = mesh.Clean(surface, params.MergeTolerance)
	st.CleanedTriangles = surface.TriangleCount()
	if st.CleanedTriangles == 0 {
		st.Code = StatusEmptyRegion
		st.Err = &mask.EmptyRegionError{Label: label, Reason: "all triangles degenerate"}
		return nil, st
	}
	surface = mesh.FillHoles(surface, params.MaxHoleArea)
	surface = mesh.Smooth(surface, params.SmoothIterations, params.Relaxation)
	surface = mesh.ComputeNormals(surface)
	surface = mesh.Decimate(surface, params.Decimate)

	st.FinalTriangles = surface.TriangleCount()
	st.Code = StatusOK
	return surface, st
}

func classify(err error) StatusCode {
	var empty *mask.EmptyRegionError
	var mismatch *volume.DimensionMismatchError
	switch {
	case errors.As(err, &empty):
		return StatusEmptyRegion
	case errors.As(err, &mismatch):
		return StatusDimensionMismatch
	}
	return StatusFailed
}

// BuildAllLabelMeshes meshes every non-zero label of m.
//
// Labels are processed on at most params.NumWorkers goroutines. Before a
// label starts, ctx and cancel are checked; once either reports
// cancellation, every label that has not started is recorded with
// StatusCanceled. progress is called after each label completes.
//
// Parameters:
//   - ctx: Cancels the batch between labels
//   - grid: Volume that supplies the geometry
//   - m: Multi-label mask with the same dimensions and spacing as grid
//   - params: Pipeline configuration shared by all labels
//   - progress: Optional progress sink
//   - cancel: Optional cancellation predicate
//
// Returns:
//   - One result per label present in m
//   - A *volume.DimensionMismatchError, before any voxel is read, when grid
//     and m disagree; ctx.Err() when the context ended the batch early
func BuildAllLabelMeshes(ctx context.Context, grid *volume.Grid, m *volume.LabelMask, params Params, progress ProgressFunc, cancel CancelFunc) (map[int32]LabelResult, error) {
	if err := volume.CheckCompatible(grid, m); err != nil {
		return nil, err
	}
	log := params.logger()

	labels := m.Labels()
	total := len(labels)
	results := make(map[int32]LabelResult, total)
	log.Info("building label meshes", "labels", total, "workers", params.workers())

	var (
		mu       sync.Mutex
		done     int
		canceled bool
	)
	// stop is called with mu held.
	stop := func() bool {
		if !canceled && (ctx.Err() != nil || (cancel != nil && cancel())) {
			canceled = true
			log.Info("batch canceled", "completed", done, "total", total)
		}
		return canceled
	}

	var g errgroup.Group
	g.SetLimit(params.workers())
	for _, label := range labels {
		label := label
		g.Go(func() error {
			mu.Lock()
			if stop() {
				results[label] = LabelResult{
					Label:  label,
					Status: Status{Code: StatusCanceled, Err: fmt.Errorf("label %d: %w", label, context.Canceled)},
				}
				mu.Unlock()
				return nil
			}
			mu.Unlock()

			out, st := BuildLabelMesh(grid, m, label, params)

			mu.Lock()
			defer mu.Unlock()
			results[label] = LabelResult{Label: label, Mesh: out, Status: st}
			done++
			if progress != nil {
				progress(Progress{
					Index:   done,
					Total:   total,
					Label:   label,
					Percent: 100 * float64(done) / float64(total),
					Message: describe(label, st),
				})
			}
			return nil
		})
	}
	// Tasks never return errors; failures are recorded in their status.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func describe(label int32, st Status) string {
	if st.Code == StatusOK {
		return fmt.Sprintf("label %d: %d triangles", label, st.FinalTriangles)
	}
	return fmt.Sprintf("label %d: %s", label, st.Code)
}

// PartName returns the display name of a label: its entry in names when
// present, otherwise "Region_<label>".
func PartName(label int32, names map[int32]string) string {
	if n, ok := names[label]; ok && n != "" {
		return n
	}
	return fmt.Sprintf("Region_%d", label)
}

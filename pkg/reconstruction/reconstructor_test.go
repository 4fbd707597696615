package reconstruction

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"volgeom/internal/phantom"
	"volgeom/pkg/mask"
	"volgeom/pkg/mesh"
	"volgeom/pkg/volume"
)

// scene returns two spheres (labels 1 and 2) and a single-voxel speck
// (label 3) in a 24^3 volume.
func scene() (*volume.Grid, *volume.LabelMask) {
	b := phantom.New(volume.Dims{NX: 24, NY: 24, NZ: 24})
	b.Sphere(r3.Vec{X: 7, Y: 7, Z: 7}, 4, 1)
	b.Sphere(r3.Vec{X: 16, Y: 16, Z: 16}, 5, 2)
	b.Voxel(22, 2, 2, 3)
	return b.Grid(0, 100), b.Mask()
}

func TestBuildLabelMeshSphere(t *testing.T) {
	b := phantom.New(volume.Dims{NX: 10, NY: 10, NZ: 10})
	b.Sphere(r3.Vec{X: 4.5, Y: 4.5, Z: 4.5}, 4, 1)

	m, st := BuildLabelMesh(b.Grid(0, 1), b.Mask(), 1, DefaultParams())
	require.Equal(t, StatusOK, st.Code, "err: %v", st.Err)
	require.NotNil(t, m)
	assert.NoError(t, st.Err)
	assert.Greater(t, m.TriangleCount(), 0)
	assert.Equal(t, m.TriangleCount(), st.FinalTriangles)
	assert.LessOrEqual(t, st.FinalTriangles, st.CleanedTriangles)
	assert.True(t, m.IsWatertight())
	assert.Len(t, m.Normals, m.VertexCount())
	assert.Greater(t, m.Volume(), 0.0)
	assert.Equal(t, b.Mask().Count(1), st.RawVoxels)
}

func TestBuildLabelMeshSpecks(t *testing.T) {
	b := phantom.New(volume.Dims{NX: 10, NY: 10, NZ: 10})
	b.Voxel(1, 1, 1, 1).Voxel(5, 5, 5, 1).Voxel(8, 2, 7, 1)

	params := DefaultParams()
	params.Mask.MinComponentVoxels = 5
	m, st := BuildLabelMesh(b.Grid(0, 1), b.Mask(), 1, params)
	assert.Nil(t, m)
	assert.Equal(t, StatusEmptyRegion, st.Code)
	assert.Equal(t, 3, st.RawVoxels)

	var empty *mask.EmptyRegionError
	require.ErrorAs(t, st.Err, &empty)
	assert.Equal(t, int32(1), empty.Label)
}

func TestBuildLabelMeshMissingLabel(t *testing.T) {
	grid, m := scene()
	out, st := BuildLabelMesh(grid, m, 9, DefaultParams())
	assert.Nil(t, out)
	assert.Equal(t, StatusEmptyRegion, st.Code)
}

func TestBuildLabelMeshNoSurface(t *testing.T) {
	// A lone voxel survives cleaning but blurs below the iso value.
	b := phantom.New(volume.Dims{NX: 9, NY: 9, NZ: 9}).Voxel(4, 4, 4, 1)
	params := DefaultParams()
	params.Mask.MinComponentVoxels = 0

	out, st := BuildLabelMesh(b.Grid(0, 1), b.Mask(), 1, params)
	assert.Nil(t, out)
	assert.Equal(t, StatusEmptyRegion, st.Code)
	assert.Equal(t, 1, st.CleanedVoxels)
	assert.Zero(t, st.ExtractedTriangles)
}

func TestDimensionMismatch(t *testing.T) {
	grid, _ := scene()
	small := phantom.New(volume.Dims{NX: 24, NY: 24, NZ: 23}).Voxel(1, 1, 1, 1).Mask()

	out, st := BuildLabelMesh(grid, small, 1, DefaultParams())
	assert.Nil(t, out)
	assert.Equal(t, StatusDimensionMismatch, st.Code)
	var mismatch *volume.DimensionMismatchError
	assert.ErrorAs(t, st.Err, &mismatch)
	assert.Zero(t, st.RawVoxels)

	called := false
	res, err := BuildAllLabelMeshes(context.Background(), grid, small, DefaultParams(),
		func(Progress) { called = true }, nil)
	require.ErrorAs(t, err, &mismatch)
	assert.Nil(t, res)
	assert.False(t, called)

	// Same shape, different spacing.
	stretched := phantom.New(volume.Dims{NX: 24, NY: 24, NZ: 24}).WithSpacing(1, 1, 2).Voxel(1, 1, 1, 1).Mask()
	_, err = BuildAllLabelMeshes(context.Background(), grid, stretched, DefaultParams(), nil, nil)
	assert.ErrorAs(t, err, &mismatch)
}

func TestBuildAllLabelMeshes(t *testing.T) {
	grid, m := scene()
	params := DefaultParams()
	params.NumWorkers = 2

	var seen []Progress
	res, err := BuildAllLabelMeshes(context.Background(), grid, m, params,
		func(p Progress) { seen = append(seen, p) }, nil)
	require.NoError(t, err)
	require.Len(t, res, 3)

	for _, label := range []int32{1, 2} {
		r := res[label]
		assert.Equal(t, label, r.Label)
		require.Equal(t, StatusOK, r.Status.Code, "label %d: %v", label, r.Status.Err)
		assert.True(t, r.Mesh.IsWatertight(), "label %d", label)
	}
	assert.Greater(t, res[2].Mesh.Volume(), res[1].Mesh.Volume())

	speck := res[3]
	assert.Nil(t, speck.Mesh)
	assert.Equal(t, StatusEmptyRegion, speck.Status.Code)

	require.Len(t, seen, 3)
	for i, p := range seen {
		assert.Equal(t, i+1, p.Index)
		assert.Equal(t, 3, p.Total)
		assert.NotEmpty(t, p.Message)
	}
	assert.InDelta(t, 100, seen[2].Percent, 1e-9)
}

func TestBuildAllLabelMeshesMatchesSingleLabel(t *testing.T) {
	grid, m := scene()
	params := DefaultParams()
	res, err := BuildAllLabelMeshes(context.Background(), grid, m, params, nil, nil)
	require.NoError(t, err)

	single, st := BuildLabelMesh(grid, m, 2, params)
	require.True(t, st.OK())
	assert.Equal(t, single, res[2].Mesh)
}

func TestCancelBetweenLabels(t *testing.T) {
	grid, m := scene()
	params := DefaultParams()
	params.NumWorkers = 1

	completed := 0
	res, err := BuildAllLabelMeshes(context.Background(), grid, m, params,
		func(Progress) { completed++ },
		func() bool { return completed >= 1 })
	require.NoError(t, err)
	require.Len(t, res, 3)

	assert.Equal(t, 1, completed)
	assert.Equal(t, StatusOK, res[1].Status.Code)
	for _, label := range []int32{2, 3} {
		assert.Equal(t, StatusCanceled, res[label].Status.Code, "label %d", label)
		assert.Nil(t, res[label].Mesh)
		assert.True(t, errors.Is(res[label].Status.Err, context.Canceled))
	}
}

func TestCanceledContext(t *testing.T) {
	grid, m := scene()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := BuildAllLabelMeshes(ctx, grid, m, DefaultParams(), func(Progress) {
		t.Error("progress reported for a canceled batch")
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, res, 3)
	for label, r := range res {
		assert.Equal(t, StatusCanceled, r.Status.Code, "label %d", label)
	}
}

func TestVolumeConvergesAsSigmaDecreases(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping convergence test in short mode")
	}
	const r = 8.0
	b := phantom.New(volume.Dims{NX: 28, NY: 28, NZ: 28})
	b.Sphere(r3.Vec{X: 13.5, Y: 13.5, Z: 13.5}, r, 1)
	grid, m := b.Grid(0, 1), b.Mask()
	want := 4.0 / 3 * math.Pi * r * r * r

	params := DefaultParams()
	params.SmoothIterations = 0
	params.Decimate = mesh.DecimateOptions{TargetRatio: 1}

	var errs []float64
	for _, sigma := range []float64{1.5, 1.0, 0.5} {
		params.Sigma = sigma
		out, st := BuildLabelMesh(grid, m, 1, params)
		require.True(t, st.OK(), "sigma %g: %v", sigma, st.Err)
		errs = append(errs, math.Abs(out.Volume()-want)/want)
	}
	assert.Less(t, errs[1], errs[0])
	assert.Less(t, errs[2], errs[1])
	assert.Less(t, errs[2], 0.15)
}

func TestPartName(t *testing.T) {
	names := map[int32]string{2: "Liver", 3: ""}
	assert.Equal(t, "Region_1", PartName(1, names))
	assert.Equal(t, "Liver", PartName(2, names))
	assert.Equal(t, "Region_3", PartName(3, names))
	assert.Equal(t, "Region_7", PartName(7, nil))
}

func TestStatusCodeString(t *testing.T) {
	cases := map[StatusCode]string{
		StatusOK:                "ok",
		StatusEmptyRegion:       "empty region",
		StatusDimensionMismatch: "dimension mismatch",
		StatusCanceled:          "canceled",
		StatusFailed:            "failed",
		StatusCode(42):          "StatusCode(42)",
	}
	for code, want := range cases {
		if got := code.String(); got != want {
			t.Errorf("StatusCode(%d).String() = %q, want %q", int(code), got, want)
		}
	}
}

func BenchmarkBuildLabelMesh(b *testing.B) {
	ph := phantom.New(volume.Dims{NX: 32, NY: 32, NZ: 32})
	ph.Sphere(r3.Vec{X: 15.5, Y: 15.5, Z: 15.5}, 10, 1)
	grid, m := ph.Grid(0, 1), ph.Mask()
	params := DefaultParams()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		BuildLabelMesh(grid, m, 1, params)
	}
}

package field_test

import (
	"errors"
	"math"
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/edaniels/golog"
	"github.com/soypat/meshpose"
	"github.com/soypat/meshpose/field"
	"gonum.org/v1/gonum/spatial/r3"
)

func v3From(p r3.Vec) v3.Vec { return v3.Vec{X: p.X, Y: p.Y, Z: p.Z} }

func cubeMesh(t testing.TB, side float64) *meshpose.Mesh {
	t.Helper()
	h := side / 2
	verts := []r3.Vec{
		{X: -h, Y: -h, Z: -h},
		{X: h, Y: -h, Z: -h},
		{X: h, Y: h, Z: -h},
		{X: -h, Y: h, Z: -h},
		{X: -h, Y: -h, Z: h},
		{X: h, Y: -h, Z: h},
		{X: h, Y: h, Z: h},
		{X: -h, Y: h, Z: h},
	}
	tris := [][3]int{
		{0, 3, 2}, {0, 2, 1},
		{4, 5, 6}, {4, 6, 7},
		{0, 1, 5}, {0, 5, 4},
		{2, 3, 7}, {2, 7, 6},
		{0, 4, 7}, {0, 7, 3},
		{1, 2, 6}, {1, 6, 5},
	}
	m, err := meshpose.NewMesh(verts, tris)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

// sphereMesh tessellates a radius-r sphere centered at the origin into
// lat stacks and lon slices with outward wound triangles.
func sphereMesh(t testing.TB, r float64, lat, lon int) *meshpose.Mesh {
	t.Helper()
	verts := []r3.Vec{{Z: r}} // top pole
	for i := 1; i < lat; i++ {
		theta := math.Pi * float64(i) / float64(lat)
		for j := 0; j < lon; j++ {
			phi := 2 * math.Pi * float64(j) / float64(lon)
			verts = append(verts, r3.Vec{
				X: r * math.Sin(theta) * math.Cos(phi),
				Y: r * math.Sin(theta) * math.Sin(phi),
				Z: r * math.Cos(theta),
			})
		}
	}
	bottom := len(verts)
	verts = append(verts, r3.Vec{Z: -r})

	ring := func(i, j int) int { return 1 + (i-1)*lon + j%lon }
	var tris [][3]int
	for j := 0; j < lon; j++ {
		tris = append(tris, [3]int{0, ring(1, j), ring(1, j+1)})
	}
	for i := 1; i < lat-1; i++ {
		for j := 0; j < lon; j++ {
			a, b := ring(i, j), ring(i+1, j)
			c, d := ring(i+1, j+1), ring(i, j+1)
			tris = append(tris, [3]int{a, b, c}, [3]int{a, c, d})
		}
	}
	for j := 0; j < lon; j++ {
		tris = append(tris, [3]int{bottom, ring(lat-1, j+1), ring(lat-1, j)})
	}
	m, err := meshpose.NewMesh(verts, tris)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestSphereField(t *testing.T) {
	m := sphereMesh(t, 1, 12, 24)
	f, err := field.New(m, field.Config{Resolution: 0.1, Logger: golog.NewTestLogger(t)})
	if err != nil {
		t.Fatal(err)
	}
	// Every sample must stay close to the analytic distance |p| - r; the
	// tolerance covers the tessellation chord error.
	const tol = 0.06
	nx, ny, nz := f.Dims()
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				p := f.CellCenter(i, j, k)
				want := r3.Norm(p) - 1
				if got := f.At(i, j, k); math.Abs(got-want) > tol {
					t.Fatalf("sample at %v: got %g, want %g", p, got, want)
				}
			}
		}
	}
	// The centroid lies midway between voxel centers, so interpolating
	// across the medial axis flattens the minimum by about half a voxel;
	// only a one-voxel bound holds there.
	d, err := f.Distance(r3.Vec{})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(d+1) > 0.12 {
		t.Errorf("distance at center: got %g, want -1", d)
	}
	d, err = f.Distance(r3.Vec{X: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(d+0.5) > tol {
		t.Errorf("distance at (0.5,0,0): got %g, want -0.5", d)
	}
}

func TestSphereGradient(t *testing.T) {
	m := sphereMesh(t, 1, 12, 24)
	f, err := field.New(m, field.Config{Resolution: 0.1})
	if err != nil {
		t.Fatal(err)
	}
	// The gradient of a spherical field is radial.
	for _, p := range []r3.Vec{
		{X: 0.6},
		{Y: -0.6},
		{X: 0.4, Y: 0.4, Z: 0.4},
	} {
		g, err := f.Gradient(p)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(r3.Norm(g)-1) > 1e-6 {
			t.Errorf("gradient at %v not unit: %v", p, g)
		}
		radial := r3.Unit(p)
		if r3.Dot(g, radial) < 0.95 {
			t.Errorf("gradient at %v: got %v, want %v", p, g, radial)
		}
	}
}

func TestFieldRoundTrip(t *testing.T) {
	m := cubeMesh(t, 2)
	f, err := field.New(m, field.Config{Resolution: 0.25})
	if err != nil {
		t.Fatal(err)
	}
	// Querying exactly at a voxel center must return the stored sample
	// with no interpolation error at all.
	nx, ny, nz := f.Dims()
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				d, err := f.Distance(f.CellCenter(i, j, k))
				if err != nil {
					t.Fatal(err)
				}
				if d != f.At(i, j, k) {
					t.Fatalf("voxel (%d,%d,%d): query %v != stored %v", i, j, k, d, f.At(i, j, k))
				}
			}
		}
	}
}

func TestFieldCubeSigns(t *testing.T) {
	m := cubeMesh(t, 2)
	f, err := field.New(m, field.Config{Resolution: 0.2})
	if err != nil {
		t.Fatal(err)
	}
	nx, ny, nz := f.Dims()
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				p := f.CellCenter(i, j, k)
				linf := math.Max(math.Abs(p.X), math.Max(math.Abs(p.Y), math.Abs(p.Z)))
				d := f.At(i, j, k)
				switch {
				case linf < 1-0.5*f.Resolution() && d >= 0:
					t.Fatalf("interior voxel %v not negative: %g", p, d)
				case linf > 1+0.5*f.Resolution() && d <= 0:
					t.Fatalf("exterior voxel %v not positive: %g", p, d)
				}
			}
		}
	}
	// One-voxel bound at the center: the medial axis falls between voxel
	// centers and interpolation rounds the minimum off by half a voxel.
	d, err := f.Distance(r3.Vec{})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(d+1) > 0.12 {
		t.Errorf("distance at cube center: got %g, want -1", d)
	}
}

// boxDistance is the analytic signed distance from p to the surface of an
// origin-centered axis-aligned cube with half-extent h.
func boxDistance(p r3.Vec, h float64) float64 {
	q := r3.Vec{X: math.Abs(p.X) - h, Y: math.Abs(p.Y) - h, Z: math.Abs(p.Z) - h}
	out := r3.Vec{X: math.Max(q.X, 0), Y: math.Max(q.Y, 0), Z: math.Max(q.Z, 0)}
	return r3.Norm(out) + math.Min(math.Max(q.X, math.Max(q.Y, q.Z)), 0)
}

func TestFieldExactDistances(t *testing.T) {
	// Every stored sample of a cube field must equal the analytic box
	// distance. A lookup that settles for a non-nearest triangle shows up
	// as an inflated value on voxels facing a face interior, e.g. the
	// distance to a diagonal edge instead of the face plane.
	const side = 2.0
	f, err := field.New(cubeMesh(t, side), field.Config{Resolution: 0.25})
	if err != nil {
		t.Fatal(err)
	}
	nx, ny, nz := f.Dims()
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				p := f.CellCenter(i, j, k)
				want := boxDistance(p, side/2)
				if got := f.At(i, j, k); math.Abs(got-want) > 1e-6 {
					t.Fatalf("sample at %v: got %g, want %g", p, got, want)
				}
			}
		}
	}
}

func TestGradientMedialAxis(t *testing.T) {
	f, err := field.New(cubeMesh(t, 2), field.Config{Resolution: 0.25})
	if err != nil {
		t.Fatal(err)
	}
	// At the cube center the finite differences cancel by symmetry; no
	// direction is defined and the gradient degenerates to the zero vector.
	g, err := f.Gradient(r3.Vec{})
	if err != nil {
		t.Fatal(err)
	}
	if g != (r3.Vec{}) {
		t.Errorf("gradient at medial point: got %v, want zero vector", g)
	}
}

func TestFieldIdempotence(t *testing.T) {
	m := cubeMesh(t, 1)
	f1, err := field.New(m, field.Config{Resolution: 0.25})
	if err != nil {
		t.Fatal(err)
	}
	f2, err := field.New(m, field.Config{Resolution: 0.25})
	if err != nil {
		t.Fatal(err)
	}
	nx, ny, nz := f1.Dims()
	if x2, y2, z2 := f2.Dims(); nx != x2 || ny != y2 || nz != z2 {
		t.Fatalf("grid dims differ: %dx%dx%d vs %dx%dx%d", nx, ny, nz, x2, y2, z2)
	}
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				if f1.At(i, j, k) != f2.At(i, j, k) {
					t.Fatalf("voxel (%d,%d,%d) differs between identical builds", i, j, k)
				}
			}
		}
	}
}

func TestWorldToGrid(t *testing.T) {
	f, err := field.New(cubeMesh(t, 2), field.Config{Resolution: 0.25})
	if err != nil {
		t.Fatal(err)
	}
	nx, ny, nz := f.Dims()
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				gi, gj, gk, ok := f.WorldToGrid(f.CellCenter(i, j, k))
				if !ok || gi != i || gj != j || gk != k {
					t.Fatalf("voxel (%d,%d,%d) mapped to (%d,%d,%d) ok=%v", i, j, k, gi, gj, gk, ok)
				}
			}
		}
	}
	if _, _, _, ok := f.WorldToGrid(r3.Vec{X: 100}); ok {
		t.Error("point outside extent reported in grid")
	}
}

func TestFieldOutOfBounds(t *testing.T) {
	f, err := field.New(cubeMesh(t, 1), field.Config{Resolution: 0.25})
	if err != nil {
		t.Fatal(err)
	}
	far := r3.Vec{X: 100, Y: 100, Z: 100}
	_, err = f.Distance(far)
	var oob *field.OutOfBoundsError
	if !errors.As(err, &oob) {
		t.Fatalf("Distance: got %v, want OutOfBoundsError", err)
	}
	if oob.Point != far {
		t.Errorf("offending point: got %v, want %v", oob.Point, far)
	}
	if _, err = f.Gradient(far); !errors.As(err, &oob) {
		t.Fatalf("Gradient: got %v, want OutOfBoundsError", err)
	}
}

func TestFieldInvalidResolution(t *testing.T) {
	m := cubeMesh(t, 1)
	for _, res := range []float64{0, -0.1} {
		_, err := field.New(m, field.Config{Resolution: res})
		var invalid *field.InvalidResolutionError
		if !errors.As(err, &invalid) {
			t.Fatalf("resolution %g: got %v, want InvalidResolutionError", res, err)
		}
		if invalid.Resolution != res {
			t.Errorf("reported resolution: got %g, want %g", invalid.Resolution, res)
		}
	}
}

func TestFieldEmptyMesh(t *testing.T) {
	// A mesh whose only triangle is degenerate has nothing to voxelize.
	verts := []r3.Vec{{}, {X: 1}, {Y: 1}}
	m, err := meshpose.NewMesh(verts, [][3]int{{0, 0, 1}})
	if err != nil {
		t.Fatal(err)
	}
	_, err = field.New(m, field.Config{Resolution: 0.1})
	var empty *field.EmptyMeshError
	if !errors.As(err, &empty) {
		t.Fatalf("got %v, want EmptyMeshError", err)
	}
}

func TestSDFXAdapter(t *testing.T) {
	f, err := field.New(cubeMesh(t, 2), field.Config{Resolution: 0.25})
	if err != nil {
		t.Fatal(err)
	}
	s := f.SDFX()
	bbox := s.BoundingBox()
	want := f.Bounds()
	if bbox.Min.X != want.Min.X || bbox.Max.Z != want.Max.Z {
		t.Errorf("bounding box: got %+v, want %+v", bbox, want)
	}
	got := s.Evaluate(v3From(r3.Vec{}))
	d, err := f.Distance(r3.Vec{})
	if err != nil {
		t.Fatal(err)
	}
	if got != d {
		t.Errorf("in-bounds evaluate: got %g, want %g", got, d)
	}
	// Far points clamp to the grid extent instead of failing.
	if got := s.Evaluate(v3From(r3.Vec{X: 100, Y: 100, Z: 100})); got <= 0 {
		t.Errorf("clamped exterior evaluate: got %g, want positive", got)
	}
}

// Package field builds voxelized signed distance fields from triangle
// meshes. Distances are negative inside the solid and positive outside;
// the winding of the mesh decides containment, so non-convex solids are
// handled correctly. Queries interpolate trilinearly between voxel
// centers and never mutate the field, so a built Field is safe for
// concurrent readers.
package field

import (
	"fmt"
	"math"

	"github.com/chewxy/math32"
	"github.com/soypat/meshpose/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// Field is an immutable signed distance field sampled on a regular grid
// of voxel centers.
type Field struct {
	vals       []float32 // x-major, then y, then z.
	nx, ny, nz int
	res        float64
	bb         d3.Box
	grid2world d3.Transform
	world2grid d3.Transform
}

// snapEps absorbs round-trip error of the world/grid transforms so that
// grid-aligned queries return stored samples exactly.
const snapEps = 1e-9

// InvalidResolutionError is returned when a field is requested with a
// non-positive voxel resolution.
type InvalidResolutionError struct {
	Resolution float64
}

func (e *InvalidResolutionError) Error() string {
	return fmt.Sprintf("field resolution must be positive, got %g", e.Resolution)
}

// EmptyMeshError is returned when a field is requested for a mesh with no
// usable triangles.
type EmptyMeshError struct{}

func (e *EmptyMeshError) Error() string {
	return "mesh has no usable triangles"
}

// OutOfBoundsError is returned by queries at points outside the grid
// extent. Callers that prefer clamping must clamp before querying.
type OutOfBoundsError struct {
	Point r3.Vec
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("point (%g, %g, %g) outside field extent", e.Point.X, e.Point.Y, e.Point.Z)
}

// Dims returns the grid dimensions in voxels per axis.
func (f *Field) Dims() (nx, ny, nz int) { return f.nx, f.ny, f.nz }

// Resolution returns the voxel edge length.
func (f *Field) Resolution() float64 { return f.res }

// Origin returns the world position of the grid's minimum corner.
func (f *Field) Origin() r3.Vec { return f.bb.Min }

// Bounds returns the grid extent. Queries are defined on this box only.
func (f *Field) Bounds() r3.Box { return r3.Box(f.bb) }

// At returns the stored signed distance of voxel (i, j, k).
func (f *Field) At(i, j, k int) float64 {
	return float64(f.vals[f.idx(i, j, k)])
}

func (f *Field) idx(i, j, k int) int {
	return i + f.nx*(j+f.ny*k)
}

// CellCenter returns the world position of the sample point of voxel (i, j, k).
func (f *Field) CellCenter(i, j, k int) r3.Vec {
	return f.grid2world.Transform(r3.Vec{
		X: float64(i) + 0.5,
		Y: float64(j) + 0.5,
		Z: float64(k) + 0.5,
	})
}

// WorldToGrid returns the voxel containing the world point p. ok is false
// when p is outside the grid extent.
func (f *Field) WorldToGrid(p r3.Vec) (i, j, k int, ok bool) {
	if !f.bb.Contains(p) {
		return 0, 0, 0, false
	}
	g := f.world2grid.Transform(p)
	i = clampIdx(int(g.X), f.nx)
	j = clampIdx(int(g.Y), f.ny)
	k = clampIdx(int(g.Z), f.nz)
	return i, j, k, true
}

func clampIdx(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Distance returns the trilinearly interpolated signed distance at the
// world point p. It fails with *OutOfBoundsError outside the grid extent.
func (f *Field) Distance(p r3.Vec) (float64, error) {
	if !f.bb.Contains(p) {
		return 0, &OutOfBoundsError{Point: p}
	}
	return float64(f.interpolate(p)), nil
}

// Gradient returns the normalized finite-difference gradient of the
// field at p, pointing away from the surface. It fails with
// *OutOfBoundsError outside the grid extent. At points where the local
// differences cancel, such as on the medial axis of a symmetric solid,
// no direction is defined and the zero vector is returned with a nil
// error; callers needing a unit vector must check for it.
func (f *Field) Gradient(p r3.Vec) (r3.Vec, error) {
	if !f.bb.Contains(p) {
		return r3.Vec{}, &OutOfBoundsError{Point: p}
	}
	// Central differences with a half-voxel step. Sample points are
	// clamped to the extent so boundary queries degrade to one-sided
	// differences instead of failing.
	h := 0.5 * f.res
	var g [3]float32
	for axis := 0; axis < 3; axis++ {
		var step r3.Vec
		switch axis {
		case 0:
			step = r3.Vec{X: h}
		case 1:
			step = r3.Vec{Y: h}
		case 2:
			step = r3.Vec{Z: h}
		}
		plus := d3.Clamp(r3.Add(p, step), f.bb.Min, f.bb.Max)
		minus := d3.Clamp(r3.Sub(p, step), f.bb.Min, f.bb.Max)
		g[axis] = f.interpolate(plus) - f.interpolate(minus)
	}
	norm := math32.Sqrt(g[0]*g[0] + g[1]*g[1] + g[2]*g[2])
	if norm == 0 {
		return r3.Vec{}, nil
	}
	return r3.Vec{
		X: float64(g[0] / norm),
		Y: float64(g[1] / norm),
		Z: float64(g[2] / norm),
	}, nil
}

// interpolate evaluates the field at a point known to be inside the
// extent. The interpolation cell is clamped so points in the outer
// half-voxel margin take the boundary sample along that axis.
func (f *Field) interpolate(p r3.Vec) float32 {
	g := f.world2grid.Transform(p)
	i0, fx := splitCoord(g.X-0.5, f.nx)
	j0, fy := splitCoord(g.Y-0.5, f.ny)
	k0, fz := splitCoord(g.Z-0.5, f.nz)
	i1 := clampIdx(i0+1, f.nx)
	j1 := clampIdx(j0+1, f.ny)
	k1 := clampIdx(k0+1, f.nz)

	c000 := f.vals[f.idx(i0, j0, k0)]
	c100 := f.vals[f.idx(i1, j0, k0)]
	c010 := f.vals[f.idx(i0, j1, k0)]
	c110 := f.vals[f.idx(i1, j1, k0)]
	c001 := f.vals[f.idx(i0, j0, k1)]
	c101 := f.vals[f.idx(i1, j0, k1)]
	c011 := f.vals[f.idx(i0, j1, k1)]
	c111 := f.vals[f.idx(i1, j1, k1)]

	c00 := lerp(c000, c100, fx)
	c10 := lerp(c010, c110, fx)
	c01 := lerp(c001, c101, fx)
	c11 := lerp(c011, c111, fx)
	c0 := lerp(c00, c10, fy)
	c1 := lerp(c01, c11, fy)
	return lerp(c0, c1, fz)
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

// splitCoord splits a continuous sample coordinate into a base index and
// a fractional weight, snapping near-integral coordinates so grid-aligned
// queries hit stored samples exactly.
func splitCoord(u float64, n int) (int, float32) {
	i := int(math.Floor(u))
	frac := u - float64(i)
	if frac < snapEps {
		frac = 0
	} else if frac > 1-snapEps {
		i++
		frac = 0
	}
	if i < 0 {
		return 0, 0
	}
	if i >= n {
		return n - 1, 0
	}
	return i, float32(frac)
}
